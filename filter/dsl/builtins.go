package dsl

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kaldav/go-kaldav/filter"
)

// timeLayouts are the layouts accepted by time::parse, tried in order.
var timeLayouts = []string{
	filter.DateFormat,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type builtin struct {
	eval    func(ev *evaluator, args []any) (any, error)
	gen     func(g *generator, args []Value) (string, error)
	minArgs int
	maxArgs int
}

func (b builtin) checkArity(n int) error {
	switch {
	case b.minArgs == b.maxArgs && n != b.minArgs:
		return fmt.Errorf("expected %d argument(s), got %d", b.minArgs, n)
	case n < b.minArgs || n > b.maxArgs:
		return fmt.Errorf("expected %d to %d arguments, got %d", b.minArgs, b.maxArgs, n)
	}

	return nil
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"Filter::new": {
			eval: func(*evaluator, []any) (any, error) { return filter.New(), nil },
			gen:  constant("filter.New()"),
		},
		"CompFilter::new": {
			minArgs: 1, maxArgs: 1,
			eval: stringConstructor(func(s string) any { return filter.NewCompFilter(s) }),
			gen:  call("filter.NewCompFilter"),
		},
		"PropFilter::new": {
			minArgs: 1, maxArgs: 1,
			eval: stringConstructor(func(s string) any { return filter.NewPropFilter(s) }),
			gen:  call("filter.NewPropFilter"),
		},
		"ParamFilter::new": {
			minArgs: 1, maxArgs: 1,
			eval: stringConstructor(func(s string) any { return filter.NewParamFilter(s) }),
			gen:  call("filter.NewParamFilter"),
		},
		"TextMatch::new": {
			minArgs: 1, maxArgs: 1,
			eval: stringConstructor(func(s string) any { return filter.NewTextMatch(s) }),
			gen:  call("filter.NewTextMatch"),
		},
		"TextMatch::default": {
			eval: func(*evaluator, []any) (any, error) { return filter.TextMatch{}, nil },
			gen:  constant("filter.TextMatch{}"),
		},
		"TimeRange::default": {
			eval: func(*evaluator, []any) (any, error) { return filter.TimeRange{}, nil },
			gen:  constant("filter.TimeRange{}"),
		},
		"Some": {
			minArgs: 1, maxArgs: 1,
			eval: func(_ *evaluator, args []any) (any, error) { return args[0], nil },
			gen: func(g *generator, args []Value) (string, error) {
				return g.value(args[0])
			},
		},
		"time::utc": {
			minArgs: 3, maxArgs: 6,
			eval: evalUTC,
			gen:  genUTC,
		},
		"time::parse": {
			minArgs: 1, maxArgs: 1,
			eval: func(_ *evaluator, args []any) (any, error) {
				s, ok := args[0].(string)
				if !ok {
					return nil, fmt.Errorf("expected string, got %s", typeName(args[0]))
				}

				return parseTime(s)
			},
			gen: genParse,
		},
		"time::now": {
			eval: func(ev *evaluator, _ []any) (any, error) { return ev.now().UTC(), nil },
			gen: func(g *generator, _ []Value) (string, error) {
				g.usesTime = true
				return "time.Now().UTC()", nil
			},
		},
	}
}

func stringConstructor(fn func(string) any) func(*evaluator, []any) (any, error) {
	return func(_ *evaluator, args []any) (any, error) {
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", typeName(args[0]))
		}

		return fn(s), nil
	}
}

func evalUTC(_ *evaluator, args []any) (any, error) {
	var parts [6]int

	for i, arg := range args {
		n, ok := arg.(int64)
		if !ok {
			return nil, fmt.Errorf("argument %d: expected integer, got %s", i+1, typeName(arg))
		}

		parts[i] = int(n)
	}

	for i, r := range utcRanges {
		if i+1 < len(args) && (parts[i+1] < r.min || parts[i+1] > r.max) {
			return nil, fmt.Errorf("%s %d out of range [%d, %d]", r.name, parts[i+1], r.min, r.max)
		}
	}

	t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC)
	if t.Day() != parts[2] {
		return nil, fmt.Errorf("day %d out of range for %s %d", parts[2], time.Month(parts[1]), parts[0])
	}

	return t, nil
}

// utcRanges bounds the arguments of time::utc after the year.
var utcRanges = []struct {
	name     string
	min, max int
}{
	{"month", 1, 12},
	{"day", 1, 31},
	{"hour", 0, 23},
	{"minute", 0, 59},
	{"second", 0, 59},
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

func constant(src string) func(*generator, []Value) (string, error) {
	return func(*generator, []Value) (string, error) {
		return src, nil
	}
}

func call(fn string) func(*generator, []Value) (string, error) {
	return func(g *generator, args []Value) (string, error) {
		arg, err := g.value(args[0])
		if err != nil {
			return "", err
		}

		return fn + "(" + arg + ")", nil
	}
}

func genUTC(g *generator, args []Value) (string, error) {
	parts := []string{"0", "0", "0", "0", "0", "0"}

	for i, arg := range args {
		src, err := g.value(arg)
		if err != nil {
			return "", err
		}

		parts[i] = src
	}

	g.usesTime = true

	return fmt.Sprintf("time.Date(%s, time.Month(%s), %s, %s, %s, %s, 0, time.UTC)",
		parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]), nil
}

// genParse resolves a literal date at generation time so that the generated
// code cannot fail.
func genParse(g *generator, args []Value) (string, error) {
	lit, ok := args[0].(*Literal)
	if !ok || lit.Kind != StringLiteral {
		return "", fmt.Errorf("time::parse needs a string literal in generated code")
	}

	s, err := strconv.Unquote(lit.Raw)
	if err != nil {
		return "", err
	}

	t, err := parseTime(s)
	if err != nil {
		return "", err
	}

	g.usesTime = true

	return fmt.Sprintf("time.Date(%d, time.%s, %d, %d, %d, %d, 0, time.UTC)",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second()), nil
}
