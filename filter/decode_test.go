package filter_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaldav/go-kaldav/filter"
)

func calendarQuery(f filter.Filter) string {
	return `<?xml version="1.0" encoding="utf-8" ?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><d:getetag /></d:prop>
  ` + f.ToXML() + `
</c:calendar-query>`
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter filter.Filter
	}{
		{
			name:   "empty",
			filter: filter.New(),
		},
		{
			name:   "events",
			filter: filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(filter.NewCompFilter("VEVENT"))),
		},
		{
			name: "time range",
			filter: filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(
				filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{
					Start: time.Date(2006, time.January, 4, 0, 0, 0, 0, time.UTC),
				}),
			)),
		},
		{
			name: "mixed children",
			filter: filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(
				filter.NewCompFilter("VTODO").
					PropFilter(filter.NewPropFilter("COMPLETED").IsNotDefined(true)).
					PropFilter(filter.NewPropFilter("STATUS").TextMatch(
						filter.NewTextMatch("CANCELLED").NegateCondition(true).Collation("i;octet"),
					)).
					Append(filter.NewCompFilter("VALARM").IsNotDefined(true)).
					TimeRange(filter.TimeRange{End: time.Date(2007, time.March, 1, 12, 0, 0, 0, time.UTC)}),
			)),
		},
		{
			name: "param filter",
			filter: filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(
				filter.NewCompFilter("VEVENT").PropFilter(
					filter.NewPropFilter("ATTENDEE").
						TextMatch(filter.NewTextMatch("mailto:lisa@example.com")).
						Append(filter.NewParamFilter("PARTSTAT").Append(filter.NewTextMatch("NEEDS-ACTION"))),
				),
			)),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := filter.Decode(strings.NewReader(calendarQuery(tt.filter)))
			require.NoError(t, err)
			assert.Equal(t, tt.filter.ToXML(), got.ToXML())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		err   string
	}{
		{
			name:  "no filter",
			input: `<c:calendar-query xmlns:c="urn:ietf:params:xml:ns:caldav"></c:calendar-query>`,
			err:   "filter: no filter element found",
		},
		{
			name:  "missing name",
			input: `<c:filter xmlns:c="urn:ietf:params:xml:ns:caldav"><c:comp-filter /></c:filter>`,
			err:   `filter: missing name attribute on "comp-filter"`,
		},
		{
			name: "bad date",
			input: `<c:filter xmlns:c="urn:ietf:params:xml:ns:caldav"><c:comp-filter name="VEVENT">` +
				`<c:time-range start="2006-01-04" /></c:comp-filter></c:filter>`,
			err: `filter: invalid time-range date "2006-01-04"`,
		},
		{
			name: "two top-level comp-filters",
			input: `<c:filter xmlns:c="urn:ietf:params:xml:ns:caldav">` +
				`<c:comp-filter name="A" /><c:comp-filter name="B" /></c:filter>`,
			err: "filter: more than one top-level comp-filter",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := filter.Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestDecode_SkipsUnknownElements(t *testing.T) {
	t.Parallel()

	input := `<c:filter xmlns:c="urn:ietf:params:xml:ns:caldav" xmlns:x="urn:example">` +
		`<c:comp-filter name="VCALENDAR"><x:ext><c:comp-filter name="HIDDEN" /></x:ext>` +
		`<c:comp-filter name="VEVENT" /></c:comp-filter></c:filter>`

	got, err := filter.Decode(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t,
		`<c:filter><c:comp-filter name="VCALENDAR"><c:comp-filter name="VEVENT" /></c:comp-filter></c:filter>`,
		got.ToXML())
}
