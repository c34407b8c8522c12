package filter

import (
	"strings"
	"time"
)

// DateFormat is the "date with UTC time" format used by time-range attributes.
const DateFormat = "20060102T150405Z"

const (
	negativeInfinity = "-infinity"
	positiveInfinity = "+infinity"
)

var (
	_ Renderer = Filter{}
	_ Renderer = CompFilter{}
	_ Renderer = PropFilter{}
	_ Renderer = ParamFilter{}
	_ Renderer = TextMatch{}
	_ Renderer = TimeRange{}
	_ Renderer = isNotDefined{}
)

// isNotDefined renders the CALDAV:is-not-defined marker.
//
// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7.4
type isNotDefined struct{}

func (isNotDefined) ToXML() string {
	return `<c:is-not-defined />`
}

// ToXML implements Renderer.
func (f Filter) ToXML() string {
	var sb strings.Builder
	sb.WriteString(`<c:filter>`)
	if f.comp != nil {
		sb.WriteString(f.comp.ToXML())
	}
	sb.WriteString(`</c:filter>`)
	return sb.String()
}

// ToXML implements Renderer.
func (cf CompFilter) ToXML() string {
	if !cf.isNotDefined && len(cf.children) == 0 {
		return `<c:comp-filter name="` + cf.name + `" />`
	}

	var sb strings.Builder
	sb.WriteString(`<c:comp-filter name="` + cf.name + `">`)
	if cf.isNotDefined {
		sb.WriteString(isNotDefined{}.ToXML())
	}
	for _, child := range cf.children {
		sb.WriteString(child.ToXML())
	}
	sb.WriteString(`</c:comp-filter>`)
	return sb.String()
}

// ToXML implements Renderer.
func (pf PropFilter) ToXML() string {
	if !pf.isNotDefined && len(pf.children) == 0 {
		return `<c:prop-filter name="` + pf.name + `" />`
	}

	var sb strings.Builder
	sb.WriteString(`<c:prop-filter name="` + pf.name + `">`)
	if pf.isNotDefined {
		sb.WriteString(isNotDefined{}.ToXML())
	}
	for _, child := range pf.children {
		sb.WriteString(child.ToXML())
	}
	sb.WriteString(`</c:prop-filter>`)
	return sb.String()
}

// ToXML implements Renderer. A param-filter is never collapsed to a
// self-closing element.
func (pf ParamFilter) ToXML() string {
	var sb strings.Builder
	sb.WriteString(`<c:param-filter name="` + pf.name + `">`)
	for _, p := range pf.params {
		sb.WriteString(p.ToXML())
	}
	sb.WriteString(`</c:param-filter>`)
	return sb.String()
}

// ToXML implements Renderer.
func (tm TextMatch) ToXML() string {
	var sb strings.Builder
	sb.WriteString(`<c:text-match`)
	if tm.collation != "" {
		sb.WriteString(` collation="` + tm.collation + `"`)
	}
	if tm.negateCondition {
		sb.WriteString(` negate-condition="yes"`)
	}
	sb.WriteString(`><![CDATA[` + tm.text + `]]></c:text-match>`)
	return sb.String()
}

// ToXML implements Renderer.
func (tr TimeRange) ToXML() string {
	start := formatDate(tr.Start, negativeInfinity)
	end := formatDate(tr.End, positiveInfinity)
	return `<c:time-range start="` + start + `" end="` + end + `" />`
}

func formatDate(t time.Time, unset string) string {
	if t.IsZero() {
		return unset
	}
	return t.UTC().Format(DateFormat)
}
