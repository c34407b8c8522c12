package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Collations defined in RFC 4790 and required by RFC 4791 section 7.5.1.
const (
	CollationOctet        = "i;octet"
	CollationASCIICasemap = "i;ascii-casemap"
)

// Match reports whether the calendar matches the filter. A filter without a
// component filter matches every calendar.
func Match(f Filter, cal *ical.Calendar) (bool, error) {
	if cal == nil || cal.Component == nil {
		return false, fmt.Errorf("filter: cannot match an empty calendar")
	}
	cf, ok := f.CompFilter()
	if !ok {
		return true, nil
	}
	return MatchComponent(cf, cal.Component)
}

// MatchComponent reports whether comp matches the component filter.
func MatchComponent(cf CompFilter, comp *ical.Component) (bool, error) {
	if comp.Name != strings.ToUpper(cf.name) {
		return cf.isNotDefined, nil
	}
	if cf.isNotDefined {
		return false, nil
	}

	for _, child := range cf.children {
		var (
			ok  bool
			err error
		)
		switch child := child.(type) {
		case CompFilter:
			ok, err = matchCompFilter(child, comp)
		case PropFilter:
			ok, err = matchPropFilter(child, comp)
		case TimeRange:
			ok, err = matchCompTimeRange(child, comp)
		default:
			panic(fmt.Sprintf("filter: unexpected comp-filter child %T", child))
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// matchCompFilter matches a nested component filter against the children of
// comp: at least one child must match, or none may exist if is-not-defined
// is set.
func matchCompFilter(cf CompFilter, comp *ical.Component) (bool, error) {
	found := false
	for _, child := range comp.Children {
		if child.Name != strings.ToUpper(cf.name) {
			continue
		}
		found = true
		if cf.isNotDefined {
			return false, nil
		}
		ok, err := MatchComponent(cf, child)
		if err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	if !found {
		return cf.isNotDefined, nil
	}
	return false, nil
}

func matchPropFilter(pf PropFilter, comp *ical.Component) (bool, error) {
	props := comp.Props[strings.ToUpper(pf.name)]
	if len(props) == 0 {
		return pf.isNotDefined, nil
	}
	if pf.isNotDefined {
		return false, nil
	}

	for i := range props {
		ok, err := matchProp(pf, &props[i])
		if err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchProp(pf PropFilter, prop *ical.Prop) (bool, error) {
	for _, child := range pf.children {
		var (
			ok  bool
			err error
		)
		switch child := child.(type) {
		case ParamFilter:
			ok = matchParamFilter(child, prop)
		case TextMatch:
			ok = matchTextMatch(child, prop.Value)
		case TimeRange:
			ok, err = matchPropTimeRange(child, prop)
		default:
			panic(fmt.Sprintf("filter: unexpected prop-filter child %T", child))
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchParamFilter(pf ParamFilter, prop *ical.Prop) bool {
	values := prop.Params[strings.ToUpper(pf.name)]
	if len(values) == 0 {
		return false
	}

	for _, p := range pf.params {
		tm, ok := p.(TextMatch)
		if !ok {
			panic(fmt.Sprintf("filter: unexpected param-filter child %T", p))
		}

		matched := false
		for _, v := range values {
			if matchTextMatch(tm, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchTextMatch(tm TextMatch, value string) bool {
	text := tm.text
	if tm.collation != CollationOctet {
		// i;ascii-casemap, the default, only folds ASCII letters
		text = asciiUpper(text)
		value = asciiUpper(value)
	}

	match := strings.Contains(value, text)
	if tm.negateCondition {
		match = !match
	}
	return match
}

func asciiUpper(s string) string {
	return strings.Map(func(r rune) rune {
		if 'a' <= r && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, s)
}

// matchCompTimeRange implements the table in RFC 4791 section 9.9. Start is
// inclusive and end is exclusive.
func matchCompTimeRange(tr TimeRange, comp *ical.Component) (bool, error) {
	rset, err := comp.RecurrenceSet(time.UTC)
	if err != nil {
		return false, err
	}
	if rset != nil {
		// TODO: only occurrence starts are compared, an occurrence starting
		// before the range and ending inside it is missed.
		first := rset.After(tr.Start, true)
		if first.IsZero() {
			return false, nil
		}
		return tr.End.IsZero() || first.Before(tr.End), nil
	}

	// TODO: handle VTODO, VJOURNAL and VFREEBUSY
	if comp.Name != ical.CompEvent {
		return false, nil
	}
	event := ical.Event{Component: comp}

	start, err := event.DateTimeStart(time.UTC)
	if err != nil {
		return false, err
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		return false, err
	}

	if start.Equal(end) {
		return (tr.Start.IsZero() || !start.Before(tr.Start)) &&
			(tr.End.IsZero() || start.Before(tr.End)), nil
	}
	return (tr.End.IsZero() || start.Before(tr.End)) &&
		(tr.Start.IsZero() || end.After(tr.Start)), nil
}

func matchPropTimeRange(tr TimeRange, prop *ical.Prop) (bool, error) {
	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return false, err
	}
	return (tr.Start.IsZero() || !t.Before(tr.Start)) &&
		(tr.End.IsZero() || t.Before(tr.End)), nil
}
