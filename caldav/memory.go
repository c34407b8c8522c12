package caldav

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/kaldav/go-kaldav"
	"github.com/kaldav/go-kaldav/filter"
)

// MemoryBackend is a Backend keeping a single user's calendars in memory. It
// is safe for concurrent use.
type MemoryBackend struct {
	principal string
	homeSet   string

	mu        sync.RWMutex
	calendars map[string]*memoryCalendar
	now       func() time.Time
}

type memoryCalendar struct {
	Calendar
	objects map[string]*CalendarObject
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend for the principal at
// principalPath. Calendars live under the "calendars/" collection of the
// principal.
func NewMemoryBackend(principalPath string) *MemoryBackend {
	principal := collectionPath(principalPath)
	return &MemoryBackend{
		principal: principal,
		homeSet:   principal + "calendars/",
		calendars: make(map[string]*memoryCalendar),
		now:       time.Now,
	}
}

func collectionPath(p string) string {
	p = path.Clean("/" + p)
	if p == "/" {
		return p
	}
	return p + "/"
}

func notFound(kind, p string) error {
	return kaldav.NewHTTPError(http.StatusNotFound, fmt.Errorf("caldav: %v %q not found", kind, p))
}

func (b *MemoryBackend) CurrentUserPrincipal(ctx context.Context) (string, error) {
	return b.principal, nil
}

func (b *MemoryBackend) CalendarHomeSetPath(ctx context.Context) (string, error) {
	return b.homeSet, nil
}

func (b *MemoryBackend) CreateCalendar(ctx context.Context, calendar *Calendar) error {
	p := collectionPath(calendar.Path)
	if path.Dir(path.Clean(p)) != path.Clean(b.homeSet) {
		return NewPreconditionError(PreconditionCalendarCollectionLocationOk)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.calendars[p]; ok {
		return kaldav.NewHTTPError(http.StatusMethodNotAllowed, fmt.Errorf("caldav: calendar %q already exists", p))
	}

	cal := *calendar
	cal.Path = p
	if cal.Name == "" {
		cal.Name = path.Base(path.Clean(p))
	}
	b.calendars[p] = &memoryCalendar{
		Calendar: cal,
		objects:  make(map[string]*CalendarObject),
	}
	return nil
}

func (b *MemoryBackend) ListCalendars(ctx context.Context) ([]Calendar, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l := make([]Calendar, 0, len(b.calendars))
	for _, cal := range b.calendars {
		l = append(l, cal.Calendar)
	}
	sort.Slice(l, func(i, j int) bool { return l[i].Path < l[j].Path })
	return l, nil
}

func (b *MemoryBackend) GetCalendar(ctx context.Context, p string) (*Calendar, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cal, ok := b.calendars[collectionPath(p)]
	if !ok {
		return nil, notFound("calendar", p)
	}
	c := cal.Calendar
	return &c, nil
}

// lookupCalendar returns the calendar owning the object at p. The caller must
// hold b.mu.
func (b *MemoryBackend) lookupCalendar(p string) (*memoryCalendar, string, error) {
	p = path.Clean("/" + p)
	cal, ok := b.calendars[collectionPath(path.Dir(p))]
	if !ok {
		return nil, p, notFound("calendar", path.Dir(p))
	}
	return cal, p, nil
}

func (b *MemoryBackend) GetCalendarObject(ctx context.Context, p string) (*CalendarObject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cal, p, err := b.lookupCalendar(p)
	if err != nil {
		return nil, notFound("calendar object", p)
	}
	co, ok := cal.objects[p]
	if !ok {
		return nil, notFound("calendar object", p)
	}
	obj := *co
	return &obj, nil
}

func (b *MemoryBackend) ListCalendarObjects(ctx context.Context, p string) ([]CalendarObject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cal, ok := b.calendars[collectionPath(p)]
	if !ok {
		return nil, notFound("calendar", p)
	}
	return cal.sortedObjects(), nil
}

func (cal *memoryCalendar) sortedObjects() []CalendarObject {
	l := make([]CalendarObject, 0, len(cal.objects))
	for _, co := range cal.objects {
		l = append(l, *co)
	}
	sort.Slice(l, func(i, j int) bool { return l[i].Path < l[j].Path })
	return l
}

func (b *MemoryBackend) QueryCalendarObjects(ctx context.Context, p string, f filter.Filter) ([]CalendarObject, error) {
	all, err := b.ListCalendarObjects(ctx, p)
	if err != nil {
		return nil, err
	}

	var l []CalendarObject
	for _, co := range all {
		ok, err := filter.Match(f, co.Data)
		if err != nil {
			return nil, fmt.Errorf("caldav: failed to match %v: %w", co.Path, err)
		}
		if ok {
			l = append(l, co)
		}
	}
	return l, nil
}

func (b *MemoryBackend) PutCalendarObject(ctx context.Context, p string, calendar *ical.Calendar, opts *PutCalendarObjectOptions) (*CalendarObject, error) {
	data, err := encodeCalendar(calendar)
	if err != nil {
		return nil, NewPreconditionError(PreconditionValidCalendarObjectResource)
	}
	compName, uid, err := objectIdentity(calendar)
	if err != nil {
		return nil, NewPreconditionError(PreconditionValidCalendarObjectResource)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cal, p, err := b.lookupCalendar(p)
	if err != nil {
		return nil, kaldav.NewHTTPError(http.StatusConflict, err)
	}

	if !cal.SupportsComponent(compName) {
		return nil, NewPreconditionError(PreconditionSupportedCalendarComponent)
	}
	if cal.MaxResourceSize > 0 && int64(len(data)) > cal.MaxResourceSize {
		return nil, NewPreconditionError(PreconditionMaxResourceSize)
	}
	for other, co := range cal.objects {
		if other == p {
			continue
		}
		if _, otherUID, err := objectIdentity(co.Data); err == nil && otherUID == uid {
			return nil, NewPreconditionError(PreconditionNoUIDConflict)
		}
	}

	if err := checkConditions(cal.objects[p], opts); err != nil {
		return nil, err
	}

	co := &CalendarObject{
		Path:          p,
		ModTime:       b.now().UTC().Truncate(time.Second),
		ContentLength: int64(len(data)),
		ETag:          uuid.NewSHA1(uuid.NameSpaceURL, data).String(),
		Data:          calendar,
	}
	cal.objects[p] = co

	obj := *co
	return &obj, nil
}

func checkConditions(existing *CalendarObject, opts *PutCalendarObjectOptions) error {
	if opts == nil {
		return nil
	}

	var etag string
	if existing != nil {
		etag = existing.ETag
	}

	if isSet, ok, err := opts.IfNoneMatch.MatchETag(etag); err != nil {
		return kaldav.NewHTTPError(http.StatusBadRequest, err)
	} else if isSet && existing != nil && ok {
		return kaldav.NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("caldav: If-None-Match condition failed"))
	}

	if isSet, ok, err := opts.IfMatch.MatchETag(etag); err != nil {
		return kaldav.NewHTTPError(http.StatusBadRequest, err)
	} else if isSet && (existing == nil || !ok) {
		return kaldav.NewHTTPError(http.StatusPreconditionFailed, fmt.Errorf("caldav: If-Match condition failed"))
	}

	return nil
}

// objectIdentity returns the component type and UID of a calendar object
// resource. Every non-timezone component must share both.
func objectIdentity(cal *ical.Calendar) (compName, uid string, err error) {
	if cal == nil || cal.Component == nil || cal.Name != ical.CompCalendar {
		return "", "", fmt.Errorf("caldav: expected a VCALENDAR")
	}

	for _, child := range cal.Children {
		if child.Name == ical.CompTimezone {
			continue
		}

		childUID, err := child.Props.Text(ical.PropUID)
		if err != nil {
			return "", "", err
		}
		switch {
		case compName == "":
			compName, uid = child.Name, childUID
		case child.Name != compName:
			return "", "", fmt.Errorf("caldav: mixed %v and %v components", compName, child.Name)
		case childUID != uid:
			return "", "", fmt.Errorf("caldav: components with different UIDs")
		}
	}

	if compName == "" {
		return "", "", fmt.Errorf("caldav: calendar has no component")
	}
	if strings.TrimSpace(uid) == "" {
		return "", "", fmt.Errorf("caldav: %v has no UID", compName)
	}
	return compName, uid, nil
}

func (b *MemoryBackend) DeleteCalendarObject(ctx context.Context, p string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cal, p, err := b.lookupCalendar(p)
	if err != nil {
		return notFound("calendar object", p)
	}
	if _, ok := cal.objects[p]; !ok {
		return notFound("calendar object", p)
	}
	delete(cal.objects, p)
	return nil
}
