package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kaldav/go-kaldav"
	"github.com/kaldav/go-kaldav/filter"
	"github.com/kaldav/go-kaldav/internal"
)

// calendarQueryFormat wraps a requested prop list and a rendered filter in a
// calendar-query REPORT body.
const calendarQueryFormat = `<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
    <d:prop>
        %s
    </d:prop>
    %s
</c:calendar-query>`

// Client provides access to a remote CalDAV server.
type Client struct {
	*kaldav.Client

	ic *internal.Client
}

// NewClient creates a client for the CalDAV server at endpoint.
func NewClient(c kaldav.HTTPClient, endpoint string) (*Client, error) {
	wc, err := kaldav.NewClient(c, endpoint)
	if err != nil {
		return nil, err
	}
	ic, err := internal.NewClient(c, endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{wc, ic}, nil
}

// SetLogger sets the logger requests are traced to at debug level.
func (c *Client) SetLogger(logger logrus.FieldLogger) {
	c.Client.SetLogger(logger)
	c.ic.SetLogger(logger)
}

// FindCalendarHomeSet returns the path of the collection holding the
// principal's calendars.
func (c *Client) FindCalendarHomeSet(ctx context.Context, principal string) (string, error) {
	propfind := internal.NewPropNamePropfind(calendarHomeSetName)
	resp, err := c.ic.PropfindFlat(ctx, principal, propfind)
	if err != nil {
		return "", err
	}

	var prop calendarHomeSet
	if err := resp.DecodeProp(&prop); err != nil {
		return "", err
	}

	return prop.Href.Path, nil
}

// FindCalendars lists the calendars of a calendar home set.
func (c *Client) FindCalendars(ctx context.Context, calendarHomeSet string) ([]Calendar, error) {
	propfind := internal.NewPropNamePropfind(
		internal.ResourceTypeName,
		internal.DisplayNameName,
		calendarDescriptionName,
		calendarColorName,
		calendarTimezoneName,
		maxResourceSizeName,
		supportedCalendarComponentSetName,
	)
	ms, err := c.ic.Propfind(ctx, calendarHomeSet, internal.DepthOne, propfind)
	if err != nil {
		return nil, err
	}

	l := make([]Calendar, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		path, err := resp.Path()
		if err != nil {
			return nil, err
		}

		var resType internal.ResourceType
		if err := resp.DecodeProp(&resType); err != nil {
			return nil, err
		}
		if !resType.Is(calendarName) {
			continue
		}

		var desc calendarDescription
		if err := resp.DecodeProp(&desc); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		var dispName internal.DisplayName
		if err := resp.DecodeProp(&dispName); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		var color calendarColor
		if err := resp.DecodeProp(&color); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		var tz calendarTimezone
		if err := resp.DecodeProp(&tz); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		var maxResSize maxResourceSize
		if err := resp.DecodeProp(&maxResSize); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}
		if maxResSize.Size < 0 {
			return nil, fmt.Errorf("caldav: max-resource-size must be a positive integer")
		}

		var supportedCompSet supportedCalendarComponentSet
		if err := resp.DecodeProp(&supportedCompSet); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		compNames := make([]string, 0, len(supportedCompSet.Comp))
		for _, comp := range supportedCompSet.Comp {
			compNames = append(compNames, comp.Name)
		}

		l = append(l, Calendar{
			Path:                  path,
			Name:                  dispName.Name,
			Description:           desc.Description,
			Color:                 color.Color,
			Timezone:              tz.Timezone,
			MaxResourceSize:       maxResSize.Size,
			SupportedComponentSet: compNames,
		})
	}

	return l, nil
}

// Search runs a calendar-query REPORT against the calendar and returns the
// hrefs of the matching objects, in the order the server listed them.
func (c *Client) Search(ctx context.Context, calendar string, f filter.Filter) ([]string, error) {
	body := fmt.Sprintf(calendarQueryFormat, "<d:resourcetype />", f.ToXML())

	text, err := c.ic.Report(ctx, calendar, internal.DepthOne, body)
	if err != nil {
		return nil, err
	}

	var ms internal.Multistatus
	if err := xml.Unmarshal([]byte(text), &ms); err != nil {
		return nil, fmt.Errorf("caldav: failed to decode calendar-query response: %w", err)
	}

	var hrefs []string
	for _, resp := range ms.Responses {
		for _, href := range resp.Hrefs {
			hrefs = append(hrefs, href.Path)
		}
	}
	return hrefs, nil
}

// Objects lists every calendar object of the calendar.
func (c *Client) Objects(ctx context.Context, calendar string) ([]string, error) {
	return c.Search(ctx, calendar, filter.New().Append(filter.NewCompFilter(ical.CompCalendar)))
}

// Events lists the calendar objects holding a VEVENT.
func (c *Client) Events(ctx context.Context, calendar string) ([]string, error) {
	return c.Search(ctx, calendar, componentFilter(ical.CompEvent))
}

// Tasks lists the calendar objects holding a VTODO.
func (c *Client) Tasks(ctx context.Context, calendar string) ([]string, error) {
	return c.Search(ctx, calendar, componentFilter(ical.CompToDo))
}

func componentFilter(name string) filter.Filter {
	return filter.New().Append(
		filter.NewCompFilter(ical.CompCalendar).Append(filter.NewCompFilter(name)),
	)
}

// QueryCalendar runs a calendar-query REPORT and returns the matching objects
// with their data.
func (c *Client) QueryCalendar(ctx context.Context, calendar string, f filter.Filter) ([]CalendarObject, error) {
	body := fmt.Sprintf(calendarQueryFormat, "<d:getetag /><d:getlastmodified /><c:calendar-data />", f.ToXML())

	req, err := c.ic.NewRawXMLRequest(ctx, "REPORT", calendar, body)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Depth", internal.DepthOne.String())

	ms, err := c.ic.DoMultiStatus(req)
	if err != nil {
		return nil, err
	}

	return decodeCalendarObjectList(ms)
}

// MultiGetCalendar fetches the objects at paths with a calendar-multiget
// REPORT.
func (c *Client) MultiGetCalendar(ctx context.Context, calendar string, paths []string) ([]CalendarObject, error) {
	propReq, err := internal.EncodeProp(
		internal.NewRawXMLElement(internal.GetETagName, nil, nil),
		internal.NewRawXMLElement(internal.GetLastModifiedName, nil, nil),
		internal.NewRawXMLElement(calendarDataName, nil, nil),
	)
	if err != nil {
		return nil, err
	}

	multiget := calendarMultiget{Prop: propReq}
	for _, p := range paths {
		multiget.Hrefs = append(multiget.Hrefs, internal.Href{Path: p})
	}

	req, err := c.ic.NewXMLRequest(ctx, "REPORT", calendar, &multiget)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Depth", internal.DepthOne.String())

	ms, err := c.ic.DoMultiStatus(req)
	if err != nil {
		return nil, err
	}

	return decodeCalendarObjectList(ms)
}

func decodeCalendarObjectList(ms *internal.Multistatus) ([]CalendarObject, error) {
	objs := make([]CalendarObject, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		path, err := resp.Path()
		if err != nil {
			return nil, err
		}

		var calData calendarDataResp
		if err := resp.DecodeProp(&calData); err != nil {
			return nil, err
		}

		var getLastMod internal.GetLastModified
		if err := resp.DecodeProp(&getLastMod); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		var getETag internal.GetETag
		if err := resp.DecodeProp(&getETag); err != nil && !internal.IsNotFound(err) {
			return nil, err
		}

		data, err := ical.NewDecoder(bytes.NewReader(calData.Data)).Decode()
		if err != nil {
			return nil, fmt.Errorf("caldav: failed to decode %v: %w", path, err)
		}

		objs = append(objs, CalendarObject{
			Path:          path,
			ModTime:       time.Time(getLastMod.LastModified),
			ContentLength: int64(len(calData.Data)),
			ETag:          string(getETag.ETag),
			Data:          data,
		})
	}

	return objs, nil
}

func populateCalendarObject(co *CalendarObject, h http.Header) error {
	if loc := h.Get("Location"); loc != "" {
		u, err := url.Parse(loc)
		if err != nil {
			return err
		}
		co.Path = u.Path
	}
	if etag := h.Get("ETag"); etag != "" {
		etag, err := strconv.Unquote(etag)
		if err != nil {
			return err
		}
		co.ETag = etag
	}
	if contentLength := h.Get("Content-Length"); contentLength != "" {
		n, err := strconv.ParseInt(contentLength, 10, 64)
		if err != nil {
			return err
		}
		co.ContentLength = n
	}
	if lastModified := h.Get("Last-Modified"); lastModified != "" {
		t, err := http.ParseTime(lastModified)
		if err != nil {
			return err
		}
		co.ModTime = t
	}

	return nil
}

// GetCalendarObject fetches a single calendar object.
func (c *Client) GetCalendarObject(ctx context.Context, path string) (*CalendarObject, error) {
	req, err := c.ic.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ical.MIMEType)

	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		return nil, fmt.Errorf("caldav: failed to decode %v: %w", path, err)
	}

	co := &CalendarObject{Path: resp.Request.URL.Path, Data: cal}
	if err := populateCalendarObject(co, resp.Header); err != nil {
		return nil, err
	}
	return co, nil
}

// PutCalendarObjectOptions holds the preconditions of a PUT.
type PutCalendarObjectOptions struct {
	// IfNoneMatch set to "*" refuses to overwrite an existing object.
	IfNoneMatch kaldav.ConditionalMatch
	// IfMatch only replaces the object if its ETag matches.
	IfMatch kaldav.ConditionalMatch
}

// PutCalendarObject stores cal at path.
func (c *Client) PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar, opts *PutCalendarObjectOptions) (*CalendarObject, error) {
	// Some servers want a Content-Length header, so the body isn't streamed.
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}

	req, err := c.ic.NewRequest(ctx, http.MethodPut, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ical.MIMEType)
	if opts != nil {
		if opts.IfNoneMatch.IsSet() {
			req.Header.Set("If-None-Match", string(opts.IfNoneMatch))
		}
		if opts.IfMatch.IsSet() {
			req.Header.Set("If-Match", string(opts.IfMatch))
		}
	}

	resp, err := c.ic.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	co := &CalendarObject{Path: req.URL.Path, Data: cal}
	if err := populateCalendarObject(co, resp.Header); err != nil {
		return nil, err
	}
	return co, nil
}

// CreateCalendarObject stores cal under a new name in the calendar. Object
// names are time-ordered UUIDs.
func (c *Client) CreateCalendarObject(ctx context.Context, calendar string, cal *ical.Calendar) (*CalendarObject, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	p := strings.TrimSuffix(calendar, "/") + "/" + id.String() + ".ics"
	return c.PutCalendarObject(ctx, p, cal, &PutCalendarObjectOptions{IfNoneMatch: "*"})
}

// NewCalendar creates a calendar collection at path with MKCALENDAR.
func (c *Client) NewCalendar(ctx context.Context, path string, mk *Mkcalendar) error {
	var body mkcalendarBody
	prop := &body.Set.Prop

	prop.DisplayName.Name = path
	if mk != nil {
		if mk.Name != "" {
			prop.DisplayName.Name = mk.Name
		}
		if mk.Description != "" {
			prop.Description = &calendarDescription{Description: mk.Description}
		}
		if mk.Color != "" {
			prop.CalendarColor = &calendarColor{Color: mk.Color}
		}
		if len(mk.SupportedComponents) > 0 {
			set := &supportedCalendarComponentSet{}
			for _, name := range mk.SupportedComponents {
				set.Comp = append(set.Comp, comp{Name: name})
			}
			prop.ComponentSet = set
		}
		if mk.Timezone != nil {
			var buf bytes.Buffer
			if err := ical.NewEncoder(&buf).Encode(mk.Timezone); err != nil {
				return fmt.Errorf("caldav: failed to encode calendar timezone: %w", err)
			}
			prop.Timezone = &mkcalendarTimezone{Timezone: buf.String()}
		}
	}

	req, err := c.ic.NewXMLRequest(ctx, "MKCALENDAR", path, &body)
	if err != nil {
		return err
	}

	resp, err := c.ic.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("caldav: MKCALENDAR %v: unexpected status %v", path, resp.Status)
	}
	return nil
}
