package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kaldav/go-kaldav/filter"
	"github.com/kaldav/go-kaldav/internal/errors"
)

// Option configures the evaluation of an expression.
type Option func(*evaluator)

// WithVar makes value available to the expression under name. A name may be
// qualified, as in "cal::start".
func WithVar(name string, value any) Option {
	return func(ev *evaluator) {
		ev.vars[name] = value
	}
}

// WithClock overrides the clock used by time::now().
func WithClock(now func() time.Time) Option {
	return func(ev *evaluator) {
		ev.now = now
	}
}

// Compile parses query and builds the filter it describes.
func Compile(query string, opts ...Option) (filter.Filter, error) {
	expr, err := Parse(query)
	if err != nil {
		return filter.Filter{}, err
	}

	return expr.Eval(opts...)
}

// MustCompile is like Compile but panics if the expression cannot be
// compiled. It simplifies initialization of package-level filters.
func MustCompile(query string, opts ...Option) filter.Filter {
	f, err := Compile(query, opts...)
	if err != nil {
		panic(err)
	}

	return f
}

// Eval applies the expression's top-level entry to filter.New().
func (e *Expr) Eval(opts ...Option) (filter.Filter, error) {
	ev := &evaluator{
		query: e.Query,
		vars:  make(map[string]any),
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(ev)
	}

	out, err := ev.entry(filter.New(), e.Entry)
	if err != nil {
		return filter.Filter{}, err
	}

	return out.(filter.Filter), nil
}

type evaluator struct {
	vars  map[string]any
	now   func() time.Time
	query string
}

// entry evaluates the entry's value, chains its children onto it and passes
// the result to the entry's method on recv.
func (ev *evaluator) entry(recv any, e *Entry) (any, error) {
	arg, err := ev.value(e.Value)
	if err != nil {
		return nil, err
	}

	for _, child := range e.Children {
		if arg, err = ev.entry(arg, child); err != nil {
			return nil, err
		}
	}

	return ev.call(recv, e.Field, arg, e.Position)
}

func (ev *evaluator) value(v Value) (any, error) {
	switch v := v.(type) {
	case *Literal:
		return ev.literal(v)
	case *Path:
		return ev.path(v)
	case *Call:
		return ev.builtin(v)
	case *Struct:
		return ev.structLiteral(v)
	}

	return nil, ev.errorf(v.Pos(), "unsupported value %s", v)
}

func (ev *evaluator) literal(l *Literal) (any, error) {
	switch l.Kind {
	case StringLiteral:
		s, err := strconv.Unquote(l.Raw)
		if err != nil {
			return nil, ev.wrap(l.Position, err, "invalid string %s", l.Raw)
		}

		return s, nil
	case BoolLiteral:
		return l.Raw == "true", nil
	case NumberLiteral:
		n, err := parseNumber(l.Raw)
		if err != nil {
			return nil, ev.wrap(l.Position, err, "invalid number %s", l.Raw)
		}

		return n, nil
	}

	return nil, ev.errorf(l.Position, "unsupported literal %s", l.Raw)
}

func (ev *evaluator) path(p *Path) (any, error) {
	name := p.String()

	if v, ok := ev.vars[name]; ok {
		return normalize(v), nil
	}

	switch name {
	case "None", "nil":
		return nil, nil
	}

	return nil, ev.errorf(p.Position, "undefined variable %q", name)
}

func (ev *evaluator) builtin(c *Call) (any, error) {
	name := c.Func.String()

	b, ok := builtins[name]
	if !ok {
		return nil, ev.errorf(c.Position, "unknown function %s", name)
	}

	if err := b.checkArity(len(c.Args)); err != nil {
		return nil, ev.wrap(c.Position, err, "%s", name)
	}

	args := make([]any, len(c.Args))
	for i, arg := range c.Args {
		v, err := ev.value(arg)
		if err != nil {
			return nil, err
		}

		args[i] = v
	}

	out, err := b.eval(ev, args)
	if err != nil {
		return nil, ev.wrap(c.Position, err, "%s", name)
	}

	return out, nil
}

func (ev *evaluator) structLiteral(s *Struct) (any, error) {
	if s.Type != "TimeRange" {
		return nil, ev.errorf(s.Position, "unknown struct type %s", s.Type)
	}

	var tr filter.TimeRange

	for _, field := range s.Fields {
		v, err := ev.value(field.Value)
		if err != nil {
			return nil, err
		}

		t, err := asTime(v)
		if err != nil {
			return nil, ev.wrap(field.Position, err, "TimeRange field %s", field.Name)
		}

		switch field.Name {
		case "start":
			tr.Start = t
		case "end":
			tr.End = t
		default:
			return nil, ev.errorf(field.Position, "unknown TimeRange field %q", field.Name)
		}
	}

	return tr, nil
}

// call invokes the builder method named method on recv with arg.
func (ev *evaluator) call(recv any, method string, arg any, pos int) (any, error) {
	key := methodKey(method)

	var (
		out any
		err error
	)

	switch r := recv.(type) {
	case filter.Filter:
		if key == "append" {
			out, err = apply(r.Append, arg)
		}
	case filter.CompFilter:
		switch key {
		case "append":
			out, err = apply(r.Append, arg)
		case "isnotdefined":
			out, err = apply(r.IsNotDefined, arg)
		case "propfilter":
			out, err = apply(r.PropFilter, arg)
		case "timerange":
			out, err = apply(r.TimeRange, arg)
		}
	case filter.PropFilter:
		switch key {
		case "append":
			out, err = apply(r.Append, arg)
		case "isnotdefined":
			out, err = apply(r.IsNotDefined, arg)
		case "textmatch":
			out, err = apply(r.TextMatch, arg)
		case "timerange":
			out, err = apply(r.TimeRange, arg)
		}
	case filter.ParamFilter:
		if key == "append" {
			out, err = apply(func(tm filter.TextMatch) filter.ParamFilter { return r.Append(tm) }, arg)
		}
	case filter.TextMatch:
		switch key {
		case "collation":
			out, err = apply(r.Collation, arg)
		case "negatecondition":
			out, err = apply(r.NegateCondition, arg)
		case "text":
			out, err = apply(r.Text, arg)
		}
	default:
		return nil, ev.errorf(pos, "%s has no method %s", typeName(recv), method)
	}

	if err != nil {
		return nil, ev.wrap(pos, err, "%s.%s", typeName(recv), method)
	}

	if out == nil {
		return nil, ev.errorf(pos, "%s has no method %s", typeName(recv), method)
	}

	return out, nil
}

// apply calls setter with arg converted to T.
func apply[T, R any](setter func(T) R, arg any) (any, error) {
	v, ok := arg.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("expected %s, got %s", typeName(zero), typeName(arg))
	}

	return setter(v), nil
}

// parseNumber reads a number literal as decimal, ignoring '_' separators.
// Leading zeros do not make it octal. Integers are returned as int64, anything
// with a '.' as float64.
func parseNumber(raw string) (any, error) {
	raw = strings.ReplaceAll(raw, "_", "")
	if !strings.Contains(raw, ".") {
		return strconv.ParseInt(raw, 10, 64)
	}

	return strconv.ParseFloat(raw, 64)
}

func (ev *evaluator) errorf(pos int, format string, args ...any) error {
	return errors.New(&EvalError{
		Message:  fmt.Sprintf(format, args...),
		Query:    ev.query,
		Position: pos,
	})
}

func (ev *evaluator) wrap(pos int, cause error, format string, args ...any) error {
	return errors.New(&EvalError{
		Cause:    cause,
		Message:  fmt.Sprintf(format, args...),
		Query:    ev.query,
		Position: pos,
	})
}

// methodKey folds snake_case and camelCase method names to one key.
func methodKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}

// normalize converts caller-provided variables to the types the evaluator
// works with.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case *time.Time:
		if v == nil {
			return nil
		}

		return *v
	case time.Month:
		return int64(v)
	}

	return v
}

func asTime(v any) (time.Time, error) {
	switch v := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	}

	return time.Time{}, fmt.Errorf("expected time or None, got %s", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case string:
		return "string"
	case bool:
		return "bool"
	case int64:
		return "integer"
	case float64:
		return "float"
	case time.Time:
		return "time"
	case filter.Filter:
		return "Filter"
	case filter.CompFilter:
		return "CompFilter"
	case filter.PropFilter:
		return "PropFilter"
	case filter.ParamFilter:
		return "ParamFilter"
	case filter.TextMatch:
		return "TextMatch"
	case filter.TimeRange:
		return "TimeRange"
	}

	return fmt.Sprintf("%T", v)
}
