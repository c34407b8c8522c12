package dsl

import (
	"fmt"
	"strings"

	"github.com/kaldav/go-kaldav/internal/errors"
)

// ErrorCode categorizes parse errors for hint lookup.
type ErrorCode int

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeEmptyExpression
	ErrorCodeIllegalToken
	ErrorCodeUnexpectedToken
	ErrorCodeUnexpectedEOF
	ErrorCodeMissingColon
	ErrorCodeMissingClosingBrace
	ErrorCodeMissingClosingParen
	ErrorCodeTrailingTokens
)

// ParseError is a syntax error in a filter expression. Position and Length
// delimit the offending span of Query.
type ParseError struct {
	Message      string
	Query        string
	TokenLiteral string
	Position     int
	Length       int
	Code         ErrorCode
}

func (e *ParseError) Error() string {
	line, col := e.LineColumn()
	return fmt.Sprintf("filter: parse error at %d:%d: %s", line, col, e.Message)
}

// LineColumn returns the 1-based line and column of Position.
func (e *ParseError) LineColumn() (line, column int) {
	return lineColumn(e.Query, e.Position)
}

func newParseError(query string, tok Token, code ErrorCode, format string, args ...any) error {
	length := len(tok.Literal)
	if length == 0 {
		length = 1
	}

	return errors.New(&ParseError{
		Message:      fmt.Sprintf(format, args...),
		Query:        query,
		TokenLiteral: tok.Literal,
		Position:     tok.Position,
		Length:       length,
		Code:         code,
	})
}

// EvalError is returned when a well-formed expression cannot be turned into
// a filter, for instance when a method receives an argument of the wrong
// type.
type EvalError struct {
	Cause    error
	Message  string
	Query    string
	Position int
}

func (e *EvalError) Error() string {
	line, col := lineColumn(e.Query, e.Position)
	if e.Cause != nil {
		return fmt.Sprintf("filter: evaluation error at %d:%d: %s: %v", line, col, e.Message, e.Cause)
	}

	return fmt.Sprintf("filter: evaluation error at %d:%d: %s", line, col, e.Message)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}

func lineColumn(query string, position int) (line, column int) {
	if position > len(query) {
		position = len(query)
	}

	before := query[:position]
	line = strings.Count(before, "\n") + 1
	column = position - strings.LastIndex(before, "\n")

	return line, column
}
