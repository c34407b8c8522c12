package dsl

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"strconv"
	"strings"

	"github.com/kaldav/go-kaldav/internal/errors"
)

// goMethods maps method keys to the Go builder method names.
var goMethods = map[string]string{
	"append":          "Append",
	"isnotdefined":    "IsNotDefined",
	"propfilter":      "PropFilter",
	"timerange":       "TimeRange",
	"textmatch":       "TextMatch",
	"collation":       "Collation",
	"negatecondition": "NegateCondition",
	"text":            "Text",
}

// Generate translates the expression into a Go expression of type
// filter.Filter that calls the builder methods in the order the expression
// nests them. Variables become Go identifiers, so `cal::start` is emitted as
// `cal.start`. Types are left to the Go compiler.
func Generate(expr *Expr) (string, error) {
	g := &generator{query: expr.Query}
	return g.entry("filter.New()", expr.Entry)
}

// GenerateFile returns a gofmt'ed Go source file in package pkg declaring a
// function name that returns the filter described by expr.
func GenerateFile(pkg, name string, expr *Expr) ([]byte, error) {
	if !token.IsIdentifier(pkg) {
		return nil, errors.Errorf("invalid package name %q", pkg)
	}

	if !token.IsIdentifier(name) {
		return nil, errors.Errorf("invalid function name %q", name)
	}

	g := &generator{query: expr.Query}

	body, err := g.entry("filter.New()", expr.Entry)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	buf.WriteString("// Code generated by kaldav filter gen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", pkg)
	buf.WriteString("import (\n")

	if g.usesTime {
		buf.WriteString("\t\"time\"\n\n")
	}

	buf.WriteString("\t\"github.com/kaldav/go-kaldav/filter\"\n)\n\n")
	fmt.Fprintf(&buf, "// %s returns the filter\n//\n", name)

	for _, line := range strings.Split(strings.TrimSpace(expr.Query), "\n") {
		fmt.Fprintf(&buf, "//\t%s\n", strings.TrimRight(line, " \t\r"))
	}

	fmt.Fprintf(&buf, "func %s() filter.Filter {\n\treturn %s\n}\n", name, body)

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.WithStackTrace(err)
	}

	return src, nil
}

type generator struct {
	query    string
	usesTime bool
}

func (g *generator) entry(recv string, e *Entry) (string, error) {
	arg, err := g.value(e.Value)
	if err != nil {
		return "", err
	}

	for _, child := range e.Children {
		if arg, err = g.entry(arg, child); err != nil {
			return "", err
		}
	}

	method, ok := goMethods[methodKey(e.Field)]
	if !ok {
		return "", g.errorf(e.Position, "unknown method %s", e.Field)
	}

	return recv + "." + method + "(" + arg + ")", nil
}

func (g *generator) value(v Value) (string, error) {
	switch v := v.(type) {
	case *Literal:
		switch v.Kind {
		case NumberLiteral:
			n, err := parseNumber(v.Raw)
			if err != nil {
				return "", g.errorf(v.Position, "invalid number %s", v.Raw)
			}

			if i, ok := n.(int64); ok {
				return strconv.FormatInt(i, 10), nil
			}

			return strconv.FormatFloat(n.(float64), 'g', -1, 64), nil
		case BoolLiteral:
			return v.Raw, nil
		}

		s, err := strconv.Unquote(v.Raw)
		if err != nil {
			return "", g.errorf(v.Position, "invalid string %s", v.Raw)
		}

		return strconv.Quote(s), nil
	case *Path:
		if isNone(v) {
			g.usesTime = true
			return "time.Time{}", nil
		}

		return strings.Join(v.Segments, "."), nil
	case *Call:
		name := v.Func.String()

		b, ok := builtins[name]
		if !ok {
			return "", g.errorf(v.Position, "unknown function %s", name)
		}

		if err := b.checkArity(len(v.Args)); err != nil {
			return "", g.errorf(v.Position, "%s: %v", name, err)
		}

		src, err := b.gen(g, v.Args)
		if err != nil {
			var evalErr *EvalError
			if errors.As(err, &evalErr) {
				return "", err
			}

			return "", g.errorf(v.Position, "%s: %v", name, err)
		}

		return src, nil
	case *Struct:
		return g.structLiteral(v)
	}

	return "", g.errorf(v.Pos(), "unsupported value %s", v)
}

func (g *generator) structLiteral(s *Struct) (string, error) {
	if s.Type != "TimeRange" {
		return "", g.errorf(s.Position, "unknown struct type %s", s.Type)
	}

	var fields []string

	for _, field := range s.Fields {
		var name string

		switch field.Name {
		case "start":
			name = "Start"
		case "end":
			name = "End"
		default:
			return "", g.errorf(field.Position, "unknown TimeRange field %q", field.Name)
		}

		if p, ok := field.Value.(*Path); ok && isNone(p) {
			continue
		}

		src, err := g.value(field.Value)
		if err != nil {
			return "", err
		}

		fields = append(fields, name+": "+src)
	}

	return "filter.TimeRange{" + strings.Join(fields, ", ") + "}", nil
}

func (g *generator) errorf(pos int, format string, args ...any) error {
	return errors.New(&EvalError{
		Message:  fmt.Sprintf(format, args...),
		Query:    g.query,
		Position: pos,
	})
}

func isNone(p *Path) bool {
	name := p.String()
	return name == "None" || name == "nil"
}
