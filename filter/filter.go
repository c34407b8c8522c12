// Package filter builds CalDAV query filters and renders them to XML.
//
// The filter element is defined in RFC 4791 section 9.7. A filter is a tree
// of component, property and parameter filters built with value-receiver
// methods: every call returns a new node and never modifies the receiver.
//
//	f := filter.New().Append(
//		filter.NewCompFilter("VCALENDAR").Append(
//			filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: start}),
//		),
//	)
//	body := f.ToXML()
//
// Names, text and collations are written to the XML as-is. Callers must not
// pass strings containing XML markup or the CDATA terminator "]]>".
package filter

import (
	"slices"
	"time"
)

// Renderer is implemented by every node that can be written as a CalDAV XML
// fragment.
type Renderer interface {
	ToXML() string
}

// CompFilterChild is a node that can be nested in a CompFilter: a CompFilter,
// a PropFilter or a TimeRange.
type CompFilterChild interface {
	Renderer
	compFilterChild()
}

// PropFilterChild is a node that can be nested in a PropFilter: a
// ParamFilter, a TextMatch or a TimeRange.
type PropFilterChild interface {
	Renderer
	propFilterChild()
}

// Param is a node that can be nested in a ParamFilter. Only TextMatch
// implements it.
type Param interface {
	Renderer
	param()
}

// Filter is the root of a calendar query filter. It holds at most one
// component filter.
//
// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7
type Filter struct {
	comp *CompFilter
}

// New returns an empty filter.
func New() Filter {
	return Filter{}
}

// Append sets the top-level component filter, replacing any previous one.
func (f Filter) Append(comp CompFilter) Filter {
	f.comp = &comp
	return f
}

// CompFilter returns the top-level component filter, if any.
func (f Filter) CompFilter() (CompFilter, bool) {
	if f.comp == nil {
		return CompFilter{}, false
	}
	return *f.comp, true
}

// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7.1
type CompFilter struct {
	name         string
	isNotDefined bool
	children     []CompFilterChild
}

func NewCompFilter(name string) CompFilter {
	return CompFilter{name: name}
}

// Append adds a nested component filter.
func (cf CompFilter) Append(child CompFilter) CompFilter {
	cf.children = append(slices.Clip(cf.children), child)
	return cf
}

// IsNotDefined sets or clears the is-not-defined marker.
func (cf CompFilter) IsNotDefined(v bool) CompFilter {
	cf.isNotDefined = v
	return cf
}

func (cf CompFilter) PropFilter(child PropFilter) CompFilter {
	cf.children = append(slices.Clip(cf.children), child)
	return cf
}

func (cf CompFilter) TimeRange(child TimeRange) CompFilter {
	cf.children = append(slices.Clip(cf.children), child)
	return cf
}

func (cf CompFilter) Name() string     { return cf.name }
func (cf CompFilter) NotDefined() bool { return cf.isNotDefined }

// Children returns a copy of the nested nodes in insertion order.
func (cf CompFilter) Children() []CompFilterChild {
	return slices.Clone(cf.children)
}

// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7.2
type PropFilter struct {
	name         string
	isNotDefined bool
	children     []PropFilterChild
}

func NewPropFilter(name string) PropFilter {
	return PropFilter{name: name}
}

// Append adds a parameter filter.
func (pf PropFilter) Append(child ParamFilter) PropFilter {
	pf.children = append(slices.Clip(pf.children), child)
	return pf
}

// IsNotDefined sets or clears the is-not-defined marker.
func (pf PropFilter) IsNotDefined(v bool) PropFilter {
	pf.isNotDefined = v
	return pf
}

func (pf PropFilter) TextMatch(child TextMatch) PropFilter {
	pf.children = append(slices.Clip(pf.children), child)
	return pf
}

func (pf PropFilter) TimeRange(child TimeRange) PropFilter {
	pf.children = append(slices.Clip(pf.children), child)
	return pf
}

func (pf PropFilter) Name() string     { return pf.name }
func (pf PropFilter) NotDefined() bool { return pf.isNotDefined }

// Children returns a copy of the nested nodes in insertion order.
func (pf PropFilter) Children() []PropFilterChild {
	return slices.Clone(pf.children)
}

// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7.3
type ParamFilter struct {
	name   string
	params []Param
}

func NewParamFilter(name string) ParamFilter {
	return ParamFilter{name: name}
}

func (pf ParamFilter) Append(p Param) ParamFilter {
	pf.params = append(slices.Clip(pf.params), p)
	return pf
}

func (pf ParamFilter) Name() string { return pf.name }

// Params returns a copy of the nested nodes in insertion order.
func (pf ParamFilter) Params() []Param {
	return slices.Clone(pf.params)
}

// TextMatch is a substring test. The zero value matches the empty string
// with the server's default collation.
//
// https://datatracker.ietf.org/doc/html/rfc4791#section-9.7.5
type TextMatch struct {
	text            string
	collation       string
	negateCondition bool
}

func NewTextMatch(text string) TextMatch {
	return TextMatch{text: text}
}

func (tm TextMatch) Collation(collation string) TextMatch {
	tm.collation = collation
	return tm
}

func (tm TextMatch) NegateCondition(v bool) TextMatch {
	tm.negateCondition = v
	return tm
}

func (tm TextMatch) Text(text string) TextMatch {
	tm.text = text
	return tm
}

// Value returns the text to match.
func (tm TextMatch) Value() string { return tm.text }

// CollationName returns the collation, or an empty string if unset.
func (tm TextMatch) CollationName() string { return tm.collation }

func (tm TextMatch) Negated() bool { return tm.negateCondition }

// TimeRange restricts matching to a UTC interval. A zero Start or End leaves
// that side of the interval open.
//
// https://datatracker.ietf.org/doc/html/rfc4791#section-9.9
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (CompFilter) compFilterChild() {}
func (PropFilter) compFilterChild() {}
func (TimeRange) compFilterChild()  {}

func (ParamFilter) propFilterChild() {}
func (TextMatch) propFilterChild()   {}
func (TimeRange) propFilterChild()   {}

func (TextMatch) param() {}
