package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaldav/go-kaldav/internal"
)

func newTestCalendar(comps ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//kaldav//test//EN")
	cal.Children = append(cal.Children, comps...)
	return cal
}

func newTestEvent(uid, summary string, start time.Time) *ical.Calendar {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(time.Hour))
	event.Props.SetText(ical.PropSummary, summary)
	return newTestCalendar(event.Component)
}

func newTestTodo(uid, summary string) *ical.Calendar {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, uid)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	todo.Props.SetText(ical.PropSummary, summary)
	return newTestCalendar(todo)
}

func newTestBackend(t *testing.T, calendars ...Calendar) *MemoryBackend {
	t.Helper()

	b := NewMemoryBackend("/user/")
	for i := range calendars {
		require.NoError(t, b.CreateCalendar(context.Background(), &calendars[i]))
	}
	return b
}

func serve(t *testing.T, h http.Handler, method, target, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/xml")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeTestMultistatus(t *testing.T, resp *http.Response) *internal.Multistatus {
	t.Helper()

	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	var ms internal.Multistatus
	require.NoError(t, xml.NewDecoder(resp.Body).Decode(&ms))
	return &ms
}

const propFindSupportedCalendarComponentRequest = `
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
     <c:supported-calendar-component-set />
  </d:prop>
</d:propfind>
`

func TestPropFindSupportedCalendarComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		calendar Calendar
		want     []string
	}{
		{"default", Calendar{Path: "/user/calendars/cal"}, []string{"VEVENT"}},
		{"todo", Calendar{Path: "/user/calendars/cal", SupportedComponentSet: []string{"VTODO"}}, []string{"VTODO"}},
		{"both", Calendar{Path: "/user/calendars/cal", SupportedComponentSet: []string{"VEVENT", "VTODO"}}, []string{"VEVENT", "VTODO"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := &Handler{Backend: newTestBackend(t, tt.calendar)}
			resp := serve(t, h, "PROPFIND", tt.calendar.Path, propFindSupportedCalendarComponentRequest)
			ms := decodeTestMultistatus(t, resp)

			r, err := ms.Get(tt.calendar.Path)
			require.NoError(t, err)

			var set supportedCalendarComponentSet
			require.NoError(t, r.DecodeProp(&set))

			var got []string
			for _, c := range set.Comp {
				got = append(got, c.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

const propFindCalendarRequest = `
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
	 <d:displayname/>
	 <c:calendar-description/>
     <c:calendar-timezone />
	 <n:calendar-color
                xmlns:n="http://apple.com/ns/ical/"/>
  </d:prop>
</d:propfind>
`

func TestPropFindCalendar(t *testing.T) {
	t.Parallel()

	calendar := Calendar{
		Path:        "/user/calendars/cal/",
		Name:        "Test Calendar",
		Description: "This is a test calendar",
		Timezone:    "BEGIN:VCALENDARfoo",
		Color:       "#DEADBEEF",
	}

	h := &Handler{Backend: newTestBackend(t, calendar)}
	resp := serve(t, h, "PROPFIND", calendar.Path, propFindCalendarRequest)
	ms := decodeTestMultistatus(t, resp)

	require.Len(t, ms.Responses, 1)
	require.Len(t, ms.Responses[0].Propstats, 1)
	assert.Equal(t, http.StatusOK, ms.Responses[0].Propstats[0].Status.Code)
	assert.Len(t, ms.Responses[0].Propstats[0].Prop.Raw, 4)

	r := &ms.Responses[0]

	var name internal.DisplayName
	var desc calendarDescription
	var tz calendarTimezone
	var color calendarColor
	require.NoError(t, r.DecodeProp(&name, &desc, &tz, &color))

	assert.Equal(t, calendar.Name, name.Name)
	assert.Equal(t, calendar.Description, desc.Description)
	assert.Equal(t, calendar.Timezone, tz.Timezone)
	assert.Equal(t, calendar.Color, color.Color)
}

const propFindUserPrincipal = `<?xml version="1.0" encoding="UTF-8"?>
<A:propfind xmlns:A="DAV:" xmlns:B="urn:ietf:params:xml:ns:caldav">
  <A:prop>
    <A:current-user-principal/>
    <A:principal-URL/>
    <A:resourcetype/>
    <B:calendar-home-set/>
  </A:prop>
</A:propfind>
`

func TestPropFindRoot(t *testing.T) {
	t.Parallel()

	h := &Handler{Backend: newTestBackend(t)}
	resp := serve(t, h, "PROPFIND", "/", propFindUserPrincipal)
	ms := decodeTestMultistatus(t, resp)

	r, err := ms.Get("/")
	require.NoError(t, err)

	var principal internal.CurrentUserPrincipal
	var homeSet calendarHomeSet
	require.NoError(t, r.DecodeProp(&principal, &homeSet))
	assert.Equal(t, "/user/", principal.Href.Path)
	assert.Equal(t, "/user/calendars/", homeSet.Href.Path)

	// principal-URL isn't supported
	require.Len(t, r.Propstats, 2)
	assert.Equal(t, http.StatusNotFound, r.Propstats[1].Status.Code)
}

const reportCalendarData = `<?xml version="1.0" encoding="UTF-8"?>
<B:calendar-multiget xmlns:A="DAV:" xmlns:B="urn:ietf:params:xml:ns:caldav">
  <A:prop>
    <B:calendar-data/>
  </A:prop>
  <A:href>%s</A:href>
  <A:href>/user/calendars/b/missing.ics</A:href>
</B:calendar-multiget>
`

func TestMultiCalendarBackend(t *testing.T) {
	t.Parallel()

	calendarB := Calendar{Path: "/user/calendars/b/", SupportedComponentSet: []string{"VTODO"}}
	backend := newTestBackend(t, Calendar{Path: "/user/calendars/a/"}, calendarB)

	const objectPath = "/user/calendars/b/test.ics"
	_, err := backend.PutCalendarObject(context.Background(), objectPath, newTestTodo("46bbf47a-1861-41a3-ae06-8d8268c6d41e", "This is a todo"), nil)
	require.NoError(t, err)

	h := &Handler{Backend: backend}

	// The home set lists both calendars
	ms := decodeTestMultistatus(t, serve(t, h, "PROPFIND", "/user/calendars/", propFindUserPrincipal))
	for _, p := range []string{"/user/calendars/", "/user/calendars/a/", "/user/calendars/b/"} {
		_, err := ms.Get(p)
		assert.NoError(t, err, p)
	}

	// Depth 1 on a calendar lists its objects
	ms = decodeTestMultistatus(t, serve(t, h, "PROPFIND", calendarB.Path, propFindSupportedCalendarComponentRequest))
	require.Len(t, ms.Responses, 2)
	_, err = ms.Get(objectPath)
	require.NoError(t, err)

	// Multiget returns the data and a 404 for unknown objects
	ms = decodeTestMultistatus(t, serve(t, h, "REPORT", calendarB.Path, fmt.Sprintf(reportCalendarData, objectPath)))
	require.Len(t, ms.Responses, 2)

	r, err := ms.Get(objectPath)
	require.NoError(t, err)
	var data calendarDataResp
	require.NoError(t, r.DecodeProp(&data))
	assert.Contains(t, string(data.Data), "SUMMARY:This is a todo")

	_, err = ms.Get("/user/calendars/b/missing.ics")
	assert.True(t, internal.IsNotFound(err))
}

const calendarQueryRequest = `<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><d:getetag/></d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:prop-filter name="SUMMARY"><c:text-match><![CDATA[standup]]></c:text-match></c:prop-filter>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`

func TestCalendarQuery(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t, Calendar{Path: "/user/calendars/work/"})
	ctx := context.Background()
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	_, err := backend.PutCalendarObject(ctx, "/user/calendars/work/1.ics", newTestEvent("1", "Daily Standup", start), nil)
	require.NoError(t, err)
	_, err = backend.PutCalendarObject(ctx, "/user/calendars/work/2.ics", newTestEvent("2", "Retro", start), nil)
	require.NoError(t, err)

	h := &Handler{Backend: backend}
	ms := decodeTestMultistatus(t, serve(t, h, "REPORT", "/user/calendars/work/", calendarQueryRequest))

	require.Len(t, ms.Responses, 1)
	p, err := ms.Responses[0].Path()
	require.NoError(t, err)
	assert.Equal(t, "/user/calendars/work/1.ics", p)

	var etag internal.GetETag
	require.NoError(t, ms.Responses[0].DecodeProp(&etag))
	assert.NotEmpty(t, etag.ETag)
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	h := &Handler{Backend: newTestBackend(t, Calendar{Path: "/user/calendars/work/"})}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown method", "LOCK", "/user/calendars/work/", "", http.StatusMethodNotAllowed},
		{"missing object", http.MethodGet, "/user/calendars/work/nope.ics", "", http.StatusNotFound},
		{"bad depth", "PROPFIND", "/user/calendars/work/", propFindCalendarRequest, http.StatusBadRequest},
		{"unknown report", "REPORT", "/user/calendars/work/", `<d:sync-collection xmlns:d="DAV:"/>`, http.StatusBadRequest},
		{"query without filter", "REPORT", "/user/calendars/work/", `<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav"><d:prop><d:getetag/></d:prop></c:calendar-query>`, http.StatusBadRequest},
		{"mkcalendar outside home set", "MKCALENDAR", "/user/other/", "", http.StatusConflict},
		{"mkcalendar existing", "MKCALENDAR", "/user/calendars/work/", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/xml")
			if tt.name == "bad depth" {
				req.Header.Set("Depth", "2")
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandler_WellKnown(t *testing.T) {
	t.Parallel()

	h := &Handler{Backend: newTestBackend(t)}
	resp := serve(t, h, http.MethodGet, "/.well-known/caldav", "")

	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/user/", resp.Header.Get("Location"))
}

func TestHandler_Options(t *testing.T) {
	t.Parallel()

	h := &Handler{Backend: newTestBackend(t, Calendar{Path: "/user/calendars/work/"})}

	resp := serve(t, h, http.MethodOptions, "/user/calendars/work/", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("DAV"), "calendar-access")
	assert.Equal(t, "OPTIONS, PROPFIND, REPORT", resp.Header.Get("Allow"))

	resp = serve(t, h, http.MethodOptions, "/user/calendars/new/", "")
	assert.Equal(t, "OPTIONS, PUT, MKCALENDAR", resp.Header.Get("Allow"))
}
