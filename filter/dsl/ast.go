package dsl

import (
	"strings"
)

// AppendField is the method name inferred for entries without an explicit
// field, such as `CompFilter::new("VEVENT") { ... }`.
const AppendField = "append"

// Expr is a parsed filter expression: a single top-level entry applied to
// Filter::new().
type Expr struct {
	Entry *Entry
	Query string
}

func (e *Expr) String() string {
	return e.Entry.String()
}

// Entry is one builder call `.Field(Value Children...)`. Each child entry is
// chained onto Value inside the call's argument, in source order.
type Entry struct {
	Field    string
	Value    Value
	Children []*Entry
	// Position is the offset of the field name, or of the value when the
	// field was inferred.
	Position int
	// Inferred is true when Field was synthesized as "append".
	Inferred bool
}

func (e *Entry) String() string {
	var sb strings.Builder
	if !e.Inferred {
		sb.WriteString(e.Field + ": ")
	}

	sb.WriteString(e.Value.String())

	if len(e.Children) > 0 {
		children := make([]string, len(e.Children))
		for i, child := range e.Children {
			children[i] = child.String()
		}

		sb.WriteString(" { " + strings.Join(children, ", ") + " }")
	}

	return sb.String()
}

// Value is the argument of an entry.
type Value interface {
	// valueNode is a marker method to distinguish value nodes.
	valueNode()
	// Pos returns the byte offset of the value in the query.
	Pos() int
	// String returns the value in DSL syntax.
	String() string
}

// LiteralKind is the lexical kind of a Literal.
type LiteralKind int

const (
	StringLiteral LiteralKind = iota
	NumberLiteral
	BoolLiteral
)

// Literal is a string, number or boolean written in the source.
type Literal struct {
	// Raw is the literal as written, including quotes for strings.
	Raw      string
	Kind     LiteralKind
	Position int
}

func (l *Literal) valueNode()     {}
func (l *Literal) Pos() int       { return l.Position }
func (l *Literal) String() string { return l.Raw }

// Path is a bare, possibly qualified name such as `None` or `Foo::Bar`.
type Path struct {
	Segments []string
	Position int
}

func (p *Path) valueNode()     {}
func (p *Path) Pos() int       { return p.Position }
func (p *Path) String() string { return strings.Join(p.Segments, "::") }

// Call is a function-style invocation `Path(args...)`.
type Call struct {
	Func     *Path
	Args     []Value
	Position int
}

func (c *Call) valueNode() {}
func (c *Call) Pos() int   { return c.Position }

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = arg.String()
	}

	return c.Func.String() + "(" + strings.Join(args, ", ") + ")"
}

// Field is a `name: value` pair of a struct literal.
type Field struct {
	Name     string
	Value    Value
	Position int
}

// Struct is a struct-literal-style invocation `Type { field: value, ... }`.
type Struct struct {
	Type     string
	Fields   []Field
	Position int
}

func (s *Struct) valueNode() {}
func (s *Struct) Pos() int   { return s.Position }

func (s *Struct) String() string {
	if len(s.Fields) == 0 {
		return s.Type + " {}"
	}

	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.Name + ": " + f.Value.String()
	}

	return s.Type + " { " + strings.Join(fields, ", ") + " }"
}
