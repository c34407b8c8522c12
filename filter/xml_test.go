package filter_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kaldav/go-kaldav/filter"
)

func date(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func TestToXML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		node     filter.Renderer
		expected string
	}{
		{
			name:     "empty filter",
			node:     filter.New(),
			expected: `<c:filter></c:filter>`,
		},
		{
			name:     "single comp-filter",
			node:     filter.New().Append(filter.NewCompFilter("VEVENT")),
			expected: `<c:filter><c:comp-filter name="VEVENT" /></c:filter>`,
		},
		{
			name: "nested comp-filter",
			node: filter.New().Append(
				filter.NewCompFilter("VCALENDAR").Append(filter.NewCompFilter("VEVENT")),
			),
			expected: `<c:filter><c:comp-filter name="VCALENDAR"><c:comp-filter name="VEVENT" /></c:comp-filter></c:filter>`,
		},
		{
			name:     "empty prop-filter",
			node:     filter.NewPropFilter("SUMMARY"),
			expected: `<c:prop-filter name="SUMMARY" />`,
		},
		{
			name:     "prop-filter is-not-defined",
			node:     filter.NewPropFilter("COMPLETED").IsNotDefined(true),
			expected: `<c:prop-filter name="COMPLETED"><c:is-not-defined /></c:prop-filter>`,
		},
		{
			name:     "comp-filter is-not-defined",
			node:     filter.NewCompFilter("VALARM").IsNotDefined(true),
			expected: `<c:comp-filter name="VALARM"><c:is-not-defined /></c:comp-filter>`,
		},
		{
			name:     "is-not-defined cleared",
			node:     filter.NewCompFilter("VALARM").IsNotDefined(true).IsNotDefined(false),
			expected: `<c:comp-filter name="VALARM" />`,
		},
		{
			name: "is-not-defined renders before children",
			node: filter.NewPropFilter("URL").
				TextMatch(filter.NewTextMatch("x")).
				IsNotDefined(true),
			expected: `<c:prop-filter name="URL"><c:is-not-defined /><c:text-match><![CDATA[x]]></c:text-match></c:prop-filter>`,
		},
		{
			name:     "unbounded time-range",
			node:     filter.TimeRange{},
			expected: `<c:time-range start="-infinity" end="+infinity" />`,
		},
		{
			name:     "time-range with start",
			node:     filter.TimeRange{Start: date(2006, time.January, 4, 0)},
			expected: `<c:time-range start="20060104T000000Z" end="+infinity" />`,
		},
		{
			name:     "time-range with end",
			node:     filter.TimeRange{End: date(2006, time.January, 5, 0)},
			expected: `<c:time-range start="-infinity" end="20060105T000000Z" />`,
		},
		{
			name: "time-range converted to UTC",
			node: filter.TimeRange{
				Start: time.Date(2006, time.January, 4, 2, 30, 0, 0, time.FixedZone("CET", 3600)),
				End:   date(2006, time.January, 5, 0),
			},
			expected: `<c:time-range start="20060104T013000Z" end="20060105T000000Z" />`,
		},
		{
			name:     "default text-match",
			node:     filter.NewTextMatch("x"),
			expected: `<c:text-match><![CDATA[x]]></c:text-match>`,
		},
		{
			name:     "zero text-match",
			node:     filter.TextMatch{}.Text("https://example.org"),
			expected: `<c:text-match><![CDATA[https://example.org]]></c:text-match>`,
		},
		{
			name:     "text-match attributes",
			node:     filter.NewTextMatch("https://example.org").NegateCondition(true).Collation("i;octet"),
			expected: `<c:text-match collation="i;octet" negate-condition="yes"><![CDATA[https://example.org]]></c:text-match>`,
		},
		{
			name:     "text-match negate false",
			node:     filter.NewTextMatch("x").NegateCondition(false),
			expected: `<c:text-match><![CDATA[x]]></c:text-match>`,
		},
		{
			name:     "empty param-filter",
			node:     filter.NewParamFilter("PARTSTAT"),
			expected: `<c:param-filter name="PARTSTAT"></c:param-filter>`,
		},
		{
			name: "param-filter with text-match",
			node: filter.NewPropFilter("ATTENDEE").Append(
				filter.NewParamFilter("PARTSTAT").Append(filter.NewTextMatch("NEEDS-ACTION")),
			),
			expected: `<c:prop-filter name="ATTENDEE"><c:param-filter name="PARTSTAT"><c:text-match><![CDATA[NEEDS-ACTION]]></c:text-match></c:param-filter></c:prop-filter>`,
		},
		{
			name: "siblings keep insertion order",
			node: filter.NewCompFilter("VEVENT").
				TimeRange(filter.TimeRange{}).
				PropFilter(filter.NewPropFilter("UID")).
				Append(filter.NewCompFilter("VALARM")),
			expected: `<c:comp-filter name="VEVENT"><c:time-range start="-infinity" end="+infinity" /><c:prop-filter name="UID" /><c:comp-filter name="VALARM" /></c:comp-filter>`,
		},
		{
			name:     "filter append replaces",
			node:     filter.New().Append(filter.NewCompFilter("A")).Append(filter.NewCompFilter("B")),
			expected: `<c:filter><c:comp-filter name="B" /></c:filter>`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, tt.node.ToXML())
		})
	}
}

func TestToXML_NoEscaping(t *testing.T) {
	t.Parallel()

	tm := filter.NewTextMatch(`a < b & "c"`)
	assert.Equal(t, `<c:text-match><![CDATA[a < b & "c"]]></c:text-match>`, tm.ToXML())
}

func TestBuilders_DoNotShareChildren(t *testing.T) {
	t.Parallel()

	base := filter.NewCompFilter("VCALENDAR").Append(filter.NewCompFilter("VEVENT"))
	events := base.Append(filter.NewCompFilter("VALARM"))
	todos := base.Append(filter.NewCompFilter("VTODO"))

	assert.Len(t, base.Children(), 1)
	assert.Equal(t,
		`<c:comp-filter name="VCALENDAR"><c:comp-filter name="VEVENT" /><c:comp-filter name="VALARM" /></c:comp-filter>`,
		events.ToXML())
	assert.Equal(t,
		`<c:comp-filter name="VCALENDAR"><c:comp-filter name="VEVENT" /><c:comp-filter name="VTODO" /></c:comp-filter>`,
		todos.ToXML())
}

func TestAccessors_ReturnCopies(t *testing.T) {
	t.Parallel()

	vevent := filter.NewCompFilter("VEVENT").PropFilter(filter.NewPropFilter("UID"))
	root := filter.New().Append(filter.NewCompFilter("VCALENDAR").Append(vevent))
	want := root.ToXML()

	vevent.Children()[0] = filter.NewCompFilter("VTODO")
	assert.Equal(t, want, root.ToXML())
	assert.Equal(t, `<c:comp-filter name="VEVENT"><c:prop-filter name="UID" /></c:comp-filter>`, vevent.ToXML())

	attendee := filter.NewPropFilter("ATTENDEE").Append(filter.NewParamFilter("PARTSTAT").Append(filter.NewTextMatch("NEEDS-ACTION")))
	wantProp := attendee.ToXML()
	attendee.Children()[0] = filter.NewParamFilter("ROLE")
	assert.Equal(t, wantProp, attendee.ToXML())

	partstat := filter.NewParamFilter("PARTSTAT").Append(filter.NewTextMatch("ACCEPTED"))
	wantParam := partstat.ToXML()
	partstat.Params()[0] = filter.NewTextMatch("DECLINED")
	assert.Equal(t, wantParam, partstat.ToXML())
}

// The nesting depth of the XML equals the depth of the tree.
func TestToXML_Depth(t *testing.T) {
	t.Parallel()

	cf := filter.NewCompFilter("L0")
	for _, name := range []string{"L1", "L2", "L3", "L4"} {
		cf = filter.NewCompFilter(name).Append(cf)
	}

	xml := filter.New().Append(cf).ToXML()
	assert.Equal(t, 5, strings.Count(xml, "<c:comp-filter "))
	assert.Equal(t, 4, strings.Count(xml, "</c:comp-filter>"))
	assert.True(t, strings.HasPrefix(xml, `<c:filter><c:comp-filter name="L4"><c:comp-filter name="L3">`))
}
