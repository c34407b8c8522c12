// Package dsl parses a nested notation for CalDAV filters and turns it into
// a filter.Filter, either at run time (Compile) or ahead of time as Go
// source (Generate).
//
// # Overview
//
// The package follows a three-stage design:
//  1. Lexer: tokenizes the expression
//  2. Parser: builds an Expr from the tokens
//  3. Evaluator or generator: calls the filter builders in the order the
//     expression nests them
//
// # Syntax
//
//	Entry := [Field ':'] Value ['{' Entry {',' Entry} [','] '}'] [',']
//	Value := Literal | Path | Path '(' [Value {',' Value}] ')' | Ident '{' [Ident ':' Value {',' ...}] '}'
//
// An entry whose value starts with a qualified path (`CompFilter::new(...)`)
// may omit the field; it is then an "append". Any other entry names the
// builder method to call, as in `is_not_defined: true`. Every entry inside a
// block is applied to the value of the enclosing entry before that value is
// handed to its parent, so
//
//	CompFilter::new("VCALENDAR") {
//		CompFilter::new("VEVENT") {
//			time_range: TimeRange { start: time::utc(2006, 1, 4), end: None },
//		}
//	}
//
// is the same as
//
//	filter.New().Append(
//		filter.NewCompFilter("VCALENDAR").Append(
//			filter.NewCompFilter("VEVENT").TimeRange(filter.TimeRange{Start: start}),
//		),
//	)
//
// Method names are written in snake_case; camelCase is accepted as well.
//
// # Functions
//
//	Filter::new()                 empty filter
//	CompFilter::new(name)         component filter
//	PropFilter::new(name)         property filter
//	ParamFilter::new(name)        parameter filter
//	TextMatch::new(text)          text match
//	TextMatch::default()          text match on the empty string
//	TimeRange::default()          unbounded time range
//	Some(x)                       x
//	time::utc(y, m, d[, h, mi, s]) UTC date
//	time::parse(s)                date in basic, RFC 3339 or YYYY-MM-DD form
//	time::now()                   current time
//
// Bare paths resolve to variables supplied with WithVar, then to None or
// nil (an unset time) and the booleans true and false.
//
// # Errors
//
// Syntax errors are returned as *ParseError, with the offset, line and
// column of the offending token. FormatDiagnostic renders them with the
// source line and a caret. Type errors found while building the filter are
// returned as *EvalError.
package dsl
