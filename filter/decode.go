package filter

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const namespace = "urn:ietf:params:xml:ns:caldav"

// Decode reads the first CALDAV:filter element from r, typically the body of
// a calendar-query REPORT request, and rebuilds the filter tree. Child order
// is preserved and unknown elements are skipped.
func Decode(r io.Reader) (Filter, error) {
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return Filter{}, fmt.Errorf("filter: no filter element found")
		} else if err != nil {
			return Filter{}, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || !isCalDAV(start.Name, "filter") {
			continue
		}
		return decodeFilter(d)
	}
}

func isCalDAV(name xml.Name, local string) bool {
	return name.Space == namespace && name.Local == local
}

func decodeFilter(d *xml.Decoder) (Filter, error) {
	f := New()
	seen := false
	err := decodeChildren(d, func(start xml.StartElement) error {
		if !isCalDAV(start.Name, "comp-filter") {
			return d.Skip()
		}
		if seen {
			return fmt.Errorf("filter: more than one top-level comp-filter")
		}
		seen = true
		cf, err := decodeCompFilter(d, start)
		if err != nil {
			return err
		}
		f = f.Append(cf)
		return nil
	})
	return f, err
}

func decodeCompFilter(d *xml.Decoder, start xml.StartElement) (CompFilter, error) {
	name, err := nameAttr(start)
	if err != nil {
		return CompFilter{}, err
	}

	cf := NewCompFilter(name)
	err = decodeChildren(d, func(start xml.StartElement) error {
		switch {
		case isCalDAV(start.Name, "is-not-defined"):
			cf = cf.IsNotDefined(true)
			return d.Skip()
		case isCalDAV(start.Name, "comp-filter"):
			child, err := decodeCompFilter(d, start)
			if err != nil {
				return err
			}
			cf = cf.Append(child)
		case isCalDAV(start.Name, "prop-filter"):
			child, err := decodePropFilter(d, start)
			if err != nil {
				return err
			}
			cf = cf.PropFilter(child)
		case isCalDAV(start.Name, "time-range"):
			tr, err := decodeTimeRange(d, start)
			if err != nil {
				return err
			}
			cf = cf.TimeRange(tr)
		default:
			return d.Skip()
		}
		return nil
	})
	return cf, err
}

func decodePropFilter(d *xml.Decoder, start xml.StartElement) (PropFilter, error) {
	name, err := nameAttr(start)
	if err != nil {
		return PropFilter{}, err
	}

	pf := NewPropFilter(name)
	err = decodeChildren(d, func(start xml.StartElement) error {
		switch {
		case isCalDAV(start.Name, "is-not-defined"):
			pf = pf.IsNotDefined(true)
			return d.Skip()
		case isCalDAV(start.Name, "param-filter"):
			child, err := decodeParamFilter(d, start)
			if err != nil {
				return err
			}
			pf = pf.Append(child)
		case isCalDAV(start.Name, "text-match"):
			tm, err := decodeTextMatch(d, start)
			if err != nil {
				return err
			}
			pf = pf.TextMatch(tm)
		case isCalDAV(start.Name, "time-range"):
			tr, err := decodeTimeRange(d, start)
			if err != nil {
				return err
			}
			pf = pf.TimeRange(tr)
		default:
			return d.Skip()
		}
		return nil
	})
	return pf, err
}

func decodeParamFilter(d *xml.Decoder, start xml.StartElement) (ParamFilter, error) {
	name, err := nameAttr(start)
	if err != nil {
		return ParamFilter{}, err
	}

	pf := NewParamFilter(name)
	err = decodeChildren(d, func(start xml.StartElement) error {
		if !isCalDAV(start.Name, "text-match") {
			return d.Skip()
		}
		tm, err := decodeTextMatch(d, start)
		if err != nil {
			return err
		}
		pf = pf.Append(tm)
		return nil
	})
	return pf, err
}

func decodeTextMatch(d *xml.Decoder, start xml.StartElement) (TextMatch, error) {
	var tm TextMatch
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "collation":
			tm = tm.Collation(attr.Value)
		case "negate-condition":
			switch attr.Value {
			case "yes":
				tm = tm.NegateCondition(true)
			case "no":
			default:
				return TextMatch{}, fmt.Errorf("filter: invalid negate-condition value %q", attr.Value)
			}
		}
	}

	var sb strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return TextMatch{}, err
		}
		switch tok := tok.(type) {
		case xml.CharData:
			sb.Write(tok)
		case xml.StartElement:
			return TextMatch{}, fmt.Errorf("filter: unexpected element %q in text-match", tok.Name.Local)
		case xml.EndElement:
			return tm.Text(sb.String()), nil
		}
	}
}

func decodeTimeRange(d *xml.Decoder, start xml.StartElement) (TimeRange, error) {
	var tr TimeRange
	for _, attr := range start.Attr {
		var err error
		switch attr.Name.Local {
		case "start":
			tr.Start, err = parseDate(attr.Value)
		case "end":
			tr.End, err = parseDate(attr.Value)
		}
		if err != nil {
			return TimeRange{}, err
		}
	}
	return tr, d.Skip()
}

func parseDate(s string) (time.Time, error) {
	switch s {
	case "", negativeInfinity, positiveInfinity:
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("filter: invalid time-range date %q: %w", s, err)
	}
	return t, nil
}

func nameAttr(start xml.StartElement) (string, error) {
	for _, attr := range start.Attr {
		if attr.Name.Local == "name" {
			return attr.Value, nil
		}
	}
	return "", fmt.Errorf("filter: missing name attribute on %q", start.Name.Local)
}

// decodeChildren calls fn for each child element until the end of the current
// element. fn must consume the child, either by decoding it or by skipping it.
func decodeChildren(d *xml.Decoder, fn func(start xml.StartElement) error) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if err := fn(tok); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}
