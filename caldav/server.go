package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/sirupsen/logrus"

	"github.com/kaldav/go-kaldav"
	"github.com/kaldav/go-kaldav/filter"
	"github.com/kaldav/go-kaldav/internal"
)

// maxReportSize bounds the body of REPORT requests.
const maxReportSize = 1 << 20

// Backend is a CalDAV server backend. Methods return errors created with
// kaldav.NewHTTPError or NewPreconditionError to pick the response status;
// other errors are answered with 500.
type Backend interface {
	CurrentUserPrincipal(ctx context.Context) (string, error)
	CalendarHomeSetPath(ctx context.Context) (string, error)

	CreateCalendar(ctx context.Context, calendar *Calendar) error
	ListCalendars(ctx context.Context) ([]Calendar, error)
	GetCalendar(ctx context.Context, path string) (*Calendar, error)

	GetCalendarObject(ctx context.Context, path string) (*CalendarObject, error)
	ListCalendarObjects(ctx context.Context, path string) ([]CalendarObject, error)
	QueryCalendarObjects(ctx context.Context, path string, f filter.Filter) ([]CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, calendar *ical.Calendar, opts *PutCalendarObjectOptions) (*CalendarObject, error)
	DeleteCalendarObject(ctx context.Context, path string) error
}

// Handler handles CalDAV HTTP requests. It can be used to create a CalDAV
// server.
type Handler struct {
	Backend Backend
	Logger  logrus.FieldLogger
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Backend == nil {
		http.Error(w, "caldav: no backend available", http.StatusInternalServerError)
		return
	}

	log := h.logger().WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})

	if r.URL.Path == "/.well-known/caldav" {
		principalPath, err := h.Backend.CurrentUserPrincipal(r.Context())
		if err != nil {
			log.WithError(err).Error("Failed to determine current user principal")
			http.Error(w, "caldav: failed to determine current user principal", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, principalPath, http.StatusMovedPermanently)
		return
	}

	var err error
	switch r.Method {
	case http.MethodOptions:
		err = h.handleOptions(w, r)
	case http.MethodGet, http.MethodHead:
		err = h.handleGetHead(w, r)
	case http.MethodPut:
		err = h.handlePut(w, r)
	case http.MethodDelete:
		err = h.handleDelete(w, r)
	case "PROPFIND":
		err = h.handlePropfind(w, r)
	case "REPORT":
		err = h.handleReport(w, r)
	case "MKCALENDAR":
		err = h.handleMkcalendar(w, r)
	default:
		err = internal.HTTPErrorf(http.StatusMethodNotAllowed, "caldav: unsupported method")
	}

	if err != nil {
		code := internal.HTTPErrorFromError(err).Code
		log = log.WithError(err).WithField("status", code)
		if code/100 == 5 {
			log.Error("Request failed")
		} else {
			log.Debug("Request failed")
		}
		internal.ServeError(w, err)
	}
}

func samePath(a, b string) bool {
	return path.Clean(a) == path.Clean(b)
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	homeSetPath, err := h.Backend.CalendarHomeSetPath(ctx)
	if err != nil {
		return err
	}
	principalPath, err := h.Backend.CurrentUserPrincipal(ctx)
	if err != nil {
		return err
	}

	var allow []string
	switch {
	case r.URL.Path == "/" || samePath(r.URL.Path, principalPath) || samePath(r.URL.Path, homeSetPath):
		allow = []string{http.MethodOptions, "PROPFIND"}
	default:
		allow, err = h.resourceMethods(ctx, r.URL.Path)
		if err != nil {
			return err
		}
	}

	w.Header().Add("DAV", "1, 3, calendar-access")
	w.Header().Add("Allow", strings.Join(allow, ", "))
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) resourceMethods(ctx context.Context, p string) ([]string, error) {
	_, err := h.Backend.GetCalendar(ctx, p)
	if err == nil {
		return []string{http.MethodOptions, "PROPFIND", "REPORT"}, nil
	} else if !internal.IsNotFound(err) {
		return nil, err
	}

	_, err = h.Backend.GetCalendarObject(ctx, p)
	if internal.IsNotFound(err) {
		return []string{http.MethodOptions, http.MethodPut, "MKCALENDAR"}, nil
	} else if err != nil {
		return nil, err
	}

	return []string{
		http.MethodOptions,
		http.MethodHead,
		http.MethodGet,
		http.MethodPut,
		http.MethodDelete,
		"PROPFIND",
	}, nil
}

func encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setObjectHeaders(h http.Header, co *CalendarObject) {
	if co.ETag != "" {
		h.Set("ETag", internal.ETag(co.ETag).String())
	}
	if !co.ModTime.IsZero() {
		h.Set("Last-Modified", co.ModTime.UTC().Format(http.TimeFormat))
	}
}

func (h *Handler) handleGetHead(w http.ResponseWriter, r *http.Request) error {
	co, err := h.Backend.GetCalendarObject(r.Context(), r.URL.Path)
	if err != nil {
		return err
	}

	b, err := encodeCalendar(co.Data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", ical.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	setObjectHeaders(w.Header(), co)

	if r.Method != http.MethodHead {
		w.Write(b)
	}
	return nil
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) error {
	t, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if t != ical.MIMEType {
		return NewPreconditionError(PreconditionSupportedCalendarData)
	}

	cal, err := ical.NewDecoder(r.Body).Decode()
	if err != nil {
		return NewPreconditionError(PreconditionValidCalendarData)
	}

	opts := PutCalendarObjectOptions{
		IfNoneMatch: kaldav.ConditionalMatch(r.Header.Get("If-None-Match")),
		IfMatch:     kaldav.ConditionalMatch(r.Header.Get("If-Match")),
	}
	co, err := h.Backend.PutCalendarObject(r.Context(), r.URL.Path, cal, &opts)
	if err != nil {
		return err
	}

	setObjectHeaders(w.Header(), co)
	if co.Path != "" && !samePath(co.Path, r.URL.Path) {
		w.Header().Set("Location", (&internal.Href{Path: co.Path}).String())
	}
	w.WriteHeader(http.StatusCreated)
	return nil
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := h.Backend.DeleteCalendarObject(r.Context(), r.URL.Path); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request) error {
	var propfind internal.Propfind
	if err := internal.DecodeXMLRequest(r, &propfind); err != nil {
		return err
	}

	depth := internal.DepthInfinity
	if s := r.Header.Get("Depth"); s != "" {
		var err error
		depth, err = internal.ParseDepth(s)
		if err != nil {
			return &internal.HTTPError{Code: http.StatusBadRequest, Err: err}
		}
	}

	ms, err := h.propfind(r.Context(), r.URL.Path, &propfind, depth)
	if err != nil {
		return err
	}

	return internal.ServeMultistatus(w, ms)
}

func (h *Handler) propfind(ctx context.Context, p string, propfind *internal.Propfind, depth internal.Depth) (*internal.Multistatus, error) {
	homeSetPath, err := h.Backend.CalendarHomeSetPath(ctx)
	if err != nil {
		return nil, err
	}
	principalPath, err := h.Backend.CurrentUserPrincipal(ctx)
	if err != nil {
		return nil, err
	}

	var resps []internal.Response
	add := func(resp *internal.Response, err error) error {
		if err != nil {
			return err
		}
		resps = append(resps, *resp)
		return nil
	}

	switch {
	case p == "/" || samePath(p, principalPath):
		href := principalPath
		if p == "/" {
			href = p
		}
		err = add(h.propfindUserPrincipal(href, propfind, principalPath, homeSetPath))
	case samePath(p, homeSetPath):
		err = add(h.propfindHomeSet(propfind, homeSetPath, principalPath))
		if err != nil || depth == internal.DepthZero {
			break
		}

		var cals []Calendar
		cals, err = h.Backend.ListCalendars(ctx)
		for i := 0; err == nil && i < len(cals); i++ {
			err = add(h.propfindCalendar(propfind, &cals[i], principalPath))
		}
	default:
		var cal *Calendar
		cal, err = h.Backend.GetCalendar(ctx, p)
		if internal.IsNotFound(err) {
			var co *CalendarObject
			co, err = h.Backend.GetCalendarObject(ctx, p)
			if err == nil {
				err = add(h.propfindCalendarObject(propfind, co))
			}
			break
		} else if err != nil {
			break
		}

		err = add(h.propfindCalendar(propfind, cal, principalPath))
		if err != nil || depth == internal.DepthZero {
			break
		}

		var cos []CalendarObject
		cos, err = h.Backend.ListCalendarObjects(ctx, cal.Path)
		for i := 0; err == nil && i < len(cos); i++ {
			err = add(h.propfindCalendarObject(propfind, &cos[i]))
		}
	}
	if err != nil {
		return nil, err
	}

	return internal.NewMultistatus(resps...), nil
}

func (h *Handler) propfindUserPrincipal(href string, propfind *internal.Propfind, principalPath, homeSetPath string) (*internal.Response, error) {
	props := map[xml.Name]internal.PropfindFunc{
		internal.CurrentUserPrincipalName: func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.CurrentUserPrincipal{Href: internal.Href{Path: principalPath}}, nil
		},
		calendarHomeSetName: func(*internal.RawXMLValue) (interface{}, error) {
			return &calendarHomeSet{Href: internal.Href{Path: homeSetPath}}, nil
		},
		internal.ResourceTypeName: func(*internal.RawXMLValue) (interface{}, error) {
			return internal.NewResourceType(internal.CollectionName), nil
		},
	}
	return internal.NewPropfindResponse(href, propfind, props)
}

func (h *Handler) propfindHomeSet(propfind *internal.Propfind, homeSetPath, principalPath string) (*internal.Response, error) {
	props := map[xml.Name]internal.PropfindFunc{
		internal.CurrentUserPrincipalName: func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.CurrentUserPrincipal{Href: internal.Href{Path: principalPath}}, nil
		},
		internal.ResourceTypeName: func(*internal.RawXMLValue) (interface{}, error) {
			return internal.NewResourceType(internal.CollectionName), nil
		},
	}
	return internal.NewPropfindResponse(homeSetPath, propfind, props)
}

func (h *Handler) propfindCalendar(propfind *internal.Propfind, cal *Calendar, principalPath string) (*internal.Response, error) {
	props := map[xml.Name]internal.PropfindFunc{
		internal.CurrentUserPrincipalName: func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.CurrentUserPrincipal{Href: internal.Href{Path: principalPath}}, nil
		},
		internal.ResourceTypeName: func(*internal.RawXMLValue) (interface{}, error) {
			return internal.NewResourceType(internal.CollectionName, calendarName), nil
		},
		internal.DisplayNameName: func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.DisplayName{Name: cal.Name}, nil
		},
		supportedCalendarDataName: func(*internal.RawXMLValue) (interface{}, error) {
			return &supportedCalendarData{
				Types: []calendarDataType{
					{ContentType: ical.MIMEType, Version: "2.0"},
				},
			}, nil
		},
		supportedCalendarComponentSetName: func(*internal.RawXMLValue) (interface{}, error) {
			components := []comp{}
			if cal.SupportedComponentSet != nil {
				for _, name := range cal.SupportedComponentSet {
					components = append(components, comp{Name: name})
				}
			} else {
				components = append(components, comp{Name: ical.CompEvent})
			}
			return &supportedCalendarComponentSet{Comp: components}, nil
		},
	}

	if cal.Description != "" {
		props[calendarDescriptionName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &calendarDescription{Description: cal.Description}, nil
		}
	}
	if cal.Color != "" {
		props[calendarColorName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &calendarColor{Color: cal.Color}, nil
		}
	}
	if cal.Timezone != "" {
		props[calendarTimezoneName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &calendarTimezone{Timezone: cal.Timezone}, nil
		}
	}
	if cal.MaxResourceSize > 0 {
		props[maxResourceSizeName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &maxResourceSize{Size: cal.MaxResourceSize}, nil
		}
	}

	// TODO: CALDAV:min-date-time, CALDAV:max-date-time, CALDAV:max-instances, CALDAV:max-attendees-per-instance

	return internal.NewPropfindResponse(cal.Path, propfind, props)
}

func (h *Handler) propfindCalendarObject(propfind *internal.Propfind, co *CalendarObject) (*internal.Response, error) {
	props := map[xml.Name]internal.PropfindFunc{
		internal.GetContentTypeName: func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.GetContentType{Type: ical.MIMEType}, nil
		},
		calendarDataName: func(*internal.RawXMLValue) (interface{}, error) {
			b, err := encodeCalendar(co.Data)
			if err != nil {
				return nil, err
			}
			return &calendarDataResp{Data: b}, nil
		},
	}

	if co.ContentLength > 0 {
		props[internal.GetContentLengthName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.GetContentLength{Length: co.ContentLength}, nil
		}
	}
	if !co.ModTime.IsZero() {
		props[internal.GetLastModifiedName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.GetLastModified{LastModified: internal.Time(co.ModTime)}, nil
		}
	}
	if co.ETag != "" {
		props[internal.GetETagName] = func(*internal.RawXMLValue) (interface{}, error) {
			return &internal.GetETag{ETag: internal.ETag(co.ETag)}, nil
		}
	}

	return internal.NewPropfindResponse(co.Path, propfind, props)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportSize))
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var report reportReq
	if err := internal.DecodeXMLRequest(r, &report); err != nil {
		return err
	}

	switch {
	case report.Query != nil:
		return h.handleQuery(w, r, report.Query, body)
	case report.Multiget != nil:
		return h.handleMultiget(w, r, report.Multiget)
	}
	return internal.HTTPErrorf(http.StatusBadRequest, "caldav: expected calendar-query or calendar-multiget element in REPORT request")
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request, query *calendarQuery, body []byte) error {
	f, err := filter.Decode(bytes.NewReader(body))
	if err != nil {
		return &internal.HTTPError{Code: http.StatusBadRequest, Err: err}
	}

	h.logger().WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"filter": f.ToXML(),
	}).Debug("Running calendar query")

	cos, err := h.Backend.QueryCalendarObjects(r.Context(), r.URL.Path, f)
	if err != nil {
		return err
	}

	propfind := internal.Propfind{
		Prop:     query.Prop,
		AllProp:  query.AllProp,
		PropName: query.PropName,
	}

	resps := make([]internal.Response, 0, len(cos))
	for i := range cos {
		resp, err := h.propfindCalendarObject(&propfind, &cos[i])
		if err != nil {
			return err
		}
		resps = append(resps, *resp)
	}

	return internal.ServeMultistatus(w, internal.NewMultistatus(resps...))
}

func (h *Handler) handleMultiget(w http.ResponseWriter, r *http.Request, multiget *calendarMultiget) error {
	propfind := internal.Propfind{
		Prop:     multiget.Prop,
		AllProp:  multiget.AllProp,
		PropName: multiget.PropName,
	}

	resps := make([]internal.Response, 0, len(multiget.Hrefs))
	for _, href := range multiget.Hrefs {
		co, err := h.Backend.GetCalendarObject(r.Context(), href.Path)
		if internal.IsNotFound(err) {
			resp := internal.NewOKResponse(href.Path)
			resp.Status = &internal.Status{Code: http.StatusNotFound}
			resps = append(resps, *resp)
			continue
		} else if err != nil {
			return err
		}

		resp, err := h.propfindCalendarObject(&propfind, co)
		if err != nil {
			return err
		}
		resps = append(resps, *resp)
	}

	return internal.ServeMultistatus(w, internal.NewMultistatus(resps...))
}

func (h *Handler) handleMkcalendar(w http.ResponseWriter, r *http.Request) error {
	homeSetPath, err := h.Backend.CalendarHomeSetPath(r.Context())
	if err != nil {
		return err
	}
	if !samePath(path.Dir(path.Clean(r.URL.Path)), homeSetPath) {
		return NewPreconditionError(PreconditionCalendarCollectionLocationOk)
	}

	cal := Calendar{Path: r.URL.Path}
	if r.ContentLength != 0 {
		var req mkcalendarReq
		if err := internal.DecodeXMLRequest(r, &req); err != nil {
			return err
		}
		if req.Set != nil {
			if err := decodeMkcalendarProps(&cal, &req.Set.Prop); err != nil {
				return &internal.HTTPError{Code: http.StatusBadRequest, Err: err}
			}
		}
	}

	if err := h.Backend.CreateCalendar(r.Context(), &cal); err != nil {
		return err
	}

	w.WriteHeader(http.StatusCreated)
	return nil
}

func decodeMkcalendarProps(cal *Calendar, prop *internal.Prop) error {
	if raw := prop.Get(internal.DisplayNameName); raw != nil {
		var v internal.DisplayName
		if err := raw.Decode(&v); err != nil {
			return err
		}
		cal.Name = v.Name
	}
	if raw := prop.Get(calendarDescriptionName); raw != nil {
		var v calendarDescription
		if err := raw.Decode(&v); err != nil {
			return err
		}
		cal.Description = v.Description
	}
	if raw := prop.Get(calendarColorName); raw != nil {
		var v calendarColor
		if err := raw.Decode(&v); err != nil {
			return err
		}
		cal.Color = v.Color
	}
	if raw := prop.Get(calendarTimezoneName); raw != nil {
		var v calendarTimezone
		if err := raw.Decode(&v); err != nil {
			return err
		}
		if _, err := ical.NewDecoder(strings.NewReader(v.Timezone)).Decode(); err != nil {
			return fmt.Errorf("caldav: invalid calendar-timezone: %w", err)
		}
		cal.Timezone = v.Timezone
	}
	if raw := prop.Get(supportedCalendarComponentSetName); raw != nil {
		var v supportedCalendarComponentSet
		if err := raw.Decode(&v); err != nil {
			return err
		}
		for _, c := range v.Comp {
			cal.SupportedComponentSet = append(cal.SupportedComponentSet, c.Name)
		}
	}
	return nil
}

// https://datatracker.ietf.org/doc/html/rfc4791#section-5.3.2.1
type PreconditionType string

const (
	PreconditionNoUIDConflict                PreconditionType = "no-uid-conflict"
	PreconditionSupportedCalendarData        PreconditionType = "supported-calendar-data"
	PreconditionSupportedCalendarComponent   PreconditionType = "supported-calendar-component"
	PreconditionValidCalendarData            PreconditionType = "valid-calendar-data"
	PreconditionValidCalendarObjectResource  PreconditionType = "valid-calendar-object-resource"
	PreconditionCalendarCollectionLocationOk PreconditionType = "calendar-collection-location-ok"
	PreconditionMaxResourceSize              PreconditionType = "max-resource-size"
	PreconditionMinDateTime                  PreconditionType = "min-date-time"
	PreconditionMaxDateTime                  PreconditionType = "max-date-time"
	PreconditionMaxInstances                 PreconditionType = "max-instances"
	PreconditionMaxAttendeesPerInstance      PreconditionType = "max-attendees-per-instance"
)

// NewPreconditionError returns the 409 error answering a failed CalDAV
// precondition. Its body names the precondition.
func NewPreconditionError(err PreconditionType) error {
	name := xml.Name{Space: namespace, Local: string(err)}
	elem := internal.NewRawXMLElement(name, nil, nil)
	return &internal.HTTPError{
		Code: http.StatusConflict,
		Err: &internal.Error{
			Raw: []internal.RawXMLValue{*elem},
		},
	}
}

// IsPreconditionError reports whether err was caused by the given failed
// precondition. It works on errors returned by both Client and Backend.
func IsPreconditionError(err error, precondition PreconditionType) bool {
	httpErr := internal.HTTPErrorFromError(err)
	if httpErr == nil {
		return false
	}

	var davErr *internal.Error
	if !errors.As(httpErr.Err, &davErr) {
		return false
	}
	for i := range davErr.Raw {
		if name, ok := davErr.Raw[i].XMLName(); ok && name == (xml.Name{Space: namespace, Local: string(precondition)}) {
			return true
		}
	}
	return false
}
