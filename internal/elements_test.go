package internal

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// https://tools.ietf.org/html/rfc4918#section-9.6.2
const exampleDeleteMultistatusStr = `<?xml version="1.0" encoding="utf-8" ?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>http://www.example.com/container/resource3</d:href>
    <d:status>HTTP/1.1 423 Locked</d:status>
    <d:error><d:lock-token-submitted/></d:error>
  </d:response>
</d:multistatus>`

const examplePropfindMultistatusStr = `<?xml version="1.0" encoding="utf-8" ?>
<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/alice/home/</d:href>
    <d:propstat>
      <d:prop>
        <d:displayname>Home calendar</d:displayname>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <d:getetag>"abc"</d:getetag>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
    <d:propstat>
      <d:prop>
        <d:getlastmodified/>
      </d:prop>
      <d:status>HTTP/1.1 404 Not Found</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

func decodeMultistatus(t *testing.T, s string) *Multistatus {
	t.Helper()

	var ms Multistatus
	require.NoError(t, xml.NewDecoder(strings.NewReader(s)).Decode(&ms))

	return &ms
}

func TestMultistatus_Get_error(t *testing.T) {
	t.Parallel()

	ms := decodeMultistatus(t, exampleDeleteMultistatusStr)

	_, err := ms.Get("/container/resource3")
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusLocked, httpErr.Code)
}

func TestMultistatus_Get_missing(t *testing.T) {
	t.Parallel()

	ms := decodeMultistatus(t, examplePropfindMultistatusStr)

	_, err := ms.Get("/calendars/bob/")
	require.EqualError(t, err, `webdav: missing response for path "/calendars/bob"`)
}

func TestResponse_DecodeProp(t *testing.T) {
	t.Parallel()

	ms := decodeMultistatus(t, examplePropfindMultistatusStr)

	resp, err := ms.Get("/calendars/alice/home")
	require.NoError(t, err)

	p, err := resp.Path()
	require.NoError(t, err)
	assert.Equal(t, "/calendars/alice/home/", p)

	var (
		name    DisplayName
		resType ResourceType
		etag    GetETag
	)
	require.NoError(t, resp.DecodeProp(&name, &resType, &etag))
	assert.Equal(t, "Home calendar", name.Name)
	assert.True(t, resType.Is(CollectionName))
	assert.True(t, resType.Is(xml.Name{Space: "urn:ietf:params:xml:ns:caldav", Local: "calendar"}))
	assert.Equal(t, ETag("abc"), etag.ETag)

	var lastMod GetLastModified
	err = resp.DecodeProp(&lastMod)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var principal CurrentUserPrincipal
	err = resp.DecodeProp(&principal)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "missing property")
}

func TestResponse_EncodeProp(t *testing.T) {
	t.Parallel()

	resp := NewOKResponse("/calendars/alice/home/")
	require.NoError(t, resp.EncodeProp(http.StatusOK, &DisplayName{Name: "Home"}))
	require.NoError(t, resp.EncodeProp(http.StatusOK, NewResourceType(CollectionName)))
	require.NoError(t, resp.EncodeProp(http.StatusNotFound, &GetETag{}))

	require.Len(t, resp.Propstats, 2)
	assert.Equal(t, []xml.Name{DisplayNameName, ResourceTypeName}, resp.Propstats[0].Prop.Names())

	var buf bytes.Buffer
	require.NoError(t, xml.NewEncoder(&buf).Encode(NewMultistatus(*resp)))

	ms := decodeMultistatus(t, buf.String())
	got, err := ms.Get("/calendars/alice/home/")
	require.NoError(t, err)

	var name DisplayName
	require.NoError(t, got.DecodeProp(&name))
	assert.Equal(t, "Home", name.Name)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("HTTP/1.1 404 Not Found")))
	assert.Equal(t, Status{Code: 404, Text: "Not Found"}, s)
	require.Error(t, s.Err())

	b, err := (&Status{Code: http.StatusOK}).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK", string(b))

	require.Error(t, s.UnmarshalText([]byte("HTTP/1.1")))
	require.Error(t, s.UnmarshalText([]byte("HTTP/1.1 abc OK")))
}

func TestTimeRoundTrip(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	now := Time(time.Now().Truncate(time.Second))
	require.NoError(t, xml.NewEncoder(buf).Encode(&GetLastModified{LastModified: now}))

	var got GetLastModified
	require.NoError(t, xml.NewDecoder(buf).Decode(&got))
	assert.True(t, time.Time(now).Equal(time.Time(got.LastModified)))
}
