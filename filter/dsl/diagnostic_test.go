package dsl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaldav/go-kaldav/filter/dsl"
)

func TestFormatDiagnostic_MissingColon(t *testing.T) {
	t.Parallel()

	err := &dsl.ParseError{
		Message:      `expected ':' after field "is_not_defined", got IDENT 'true'`,
		Query:        `CompFilter::new("VEVENT") { is_not_defined true }`,
		TokenLiteral: "true",
		Position:     43,
		Length:       4,
		Code:         dsl.ErrorCodeMissingColon,
	}

	expected := `Filter parsing error: expected ':' after field "is_not_defined", got IDENT 'true'
 --> <filter>:1:44

     CompFilter::new("VEVENT") { is_not_defined true }
                                                ^^^^

  hint: Setters are written 'field: value'. Child nodes start with a path, e.g. 'CompFilter::new("VEVENT")'.
`

	assert.Equal(t, expected, dsl.FormatDiagnostic(err, false))
}

func TestFormatDiagnostic_MultiLine(t *testing.T) {
	t.Parallel()

	_, err := dsl.Parse("CompFilter::new(\"VCALENDAR\") {\n  CompFilter::new(\"VEVENT\")\n  CompFilter::new(\"VTODO\")\n}")
	require.Error(t, err)

	var parseErr *dsl.ParseError
	require.ErrorAs(t, err, &parseErr)

	out := dsl.FormatDiagnostic(parseErr, false)
	assert.Contains(t, out, " --> <filter>:3:3\n")
	assert.Contains(t, out, "       CompFilter::new(\"VTODO\")\n")
	assert.Contains(t, out, "       ^^^^^^^^^^\n")
	assert.NotContains(t, out, "hint:")
}

func TestFormatDiagnostic_EndOfInput(t *testing.T) {
	t.Parallel()

	_, err := dsl.Parse(`CompFilter::new("VEVENT") {`)
	require.Error(t, err)

	var parseErr *dsl.ParseError
	require.ErrorAs(t, err, &parseErr)

	out := dsl.FormatDiagnostic(parseErr, false)
	assert.Contains(t, out, "                               ^\n")
	assert.Contains(t, out, "hint: Every '{'")
}

func TestFormatDiagnostic_Color(t *testing.T) {
	t.Parallel()

	err := &dsl.ParseError{
		Message:  "empty filter expression",
		Query:    "",
		Position: 0,
		Length:   1,
		Code:     dsl.ErrorCodeEmptyExpression,
	}

	out := dsl.FormatDiagnostic(err, true)
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "empty filter expression")

	plain := dsl.FormatDiagnostic(err, false)
	assert.NotContains(t, plain, "\x1b[")
}

func TestHint(t *testing.T) {
	t.Parallel()

	assert.Contains(t, dsl.Hint(dsl.ErrorCodeIllegalToken, `"abc`), "double quote")
	assert.Contains(t, dsl.Hint(dsl.ErrorCodeIllegalToken, "="), "Valid punctuation")
	assert.Contains(t, dsl.Hint(dsl.ErrorCodeTrailingTokens, ","), "exactly one top-level entry")
	assert.Empty(t, dsl.Hint(dsl.ErrorCodeEmptyExpression, ""))
}
