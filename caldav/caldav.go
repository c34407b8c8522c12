// Package caldav provides a CalDAV client and server.
//
// CalDAV is defined in RFC 4791. Queries are expressed with the filter trees
// of package filter, either built directly or compiled from the filter/dsl
// syntax.
package caldav

import (
	"time"

	"github.com/emersion/go-ical"
)

// Calendar is a calendar collection.
type Calendar struct {
	Path                  string
	Name                  string
	Description           string
	Color                 string
	Timezone              string
	MaxResourceSize       int64
	SupportedComponentSet []string
}

// SupportsComponent reports whether objects of the named component type can
// be stored in the calendar. An empty set accepts events only.
func (cal *Calendar) SupportsComponent(name string) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return name == ical.CompEvent
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == name {
			return true
		}
	}
	return false
}

// CalendarObject is a calendar object resource, usually an .ics file.
type CalendarObject struct {
	Path          string
	ModTime       time.Time
	ContentLength int64
	ETag          string
	Data          *ical.Calendar
}

// Mkcalendar describes a calendar collection to create with the MKCALENDAR
// method of RFC 4791 section 5.3.1.
type Mkcalendar struct {
	// Name is the display name. It defaults to the collection path.
	Name        string
	Description string
	Color       string
	// Timezone holds a VCALENDAR with a single VTIMEZONE.
	Timezone            *ical.Calendar
	SupportedComponents []string
}
