package dsl

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// FormatDiagnostic renders a parse error as a compiler-style message with
// the offending source line and a caret under the error position.
func FormatDiagnostic(err *ParseError, useColor bool) string {
	bold := color.New(color.Bold)
	arrow := color.New(color.Bold, color.FgBlue)
	caret := color.New(color.Bold, color.FgRed)
	hintLabel := color.New(color.Bold, color.FgCyan)

	for _, c := range []*color.Color{bold, arrow, caret, hintLabel} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	line, col := err.LineColumn()
	source := sourceLine(err.Query, line)

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s\n", bold.Sprint("Filter parsing error:"), err.Message)
	fmt.Fprintf(&sb, "%s<filter>:%d:%d\n", arrow.Sprint(" --> "), line, col)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "     %s\n", source)

	width := err.Length
	if rest := len(source) - (col - 1); width > rest && rest > 0 {
		width = rest
	}

	if width < 1 {
		width = 1
	}

	fmt.Fprintf(&sb, "     %s%s\n", strings.Repeat(" ", col-1), caret.Sprint(strings.Repeat("^", width)))

	if hint := Hint(err.Code, err.TokenLiteral); hint != "" {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "  %s %s\n", hintLabel.Sprint("hint:"), hint)
	}

	return sb.String()
}

// Hint returns a one-line suggestion for a parse error, or an empty string.
func Hint(code ErrorCode, token string) string {
	switch code {
	case ErrorCodeMissingColon:
		return "Setters are written 'field: value'. Child nodes start with a path, e.g. 'CompFilter::new(\"VEVENT\")'."
	case ErrorCodeMissingClosingBrace:
		return "Every '{' opening a child block or struct literal needs a matching '}'."
	case ErrorCodeMissingClosingParen:
		return "Every '(' opening an argument list needs a matching ')'."
	case ErrorCodeTrailingTokens:
		return "A filter expression has exactly one top-level entry. Nest siblings inside its '{ ... }' block."
	case ErrorCodeUnexpectedEOF:
		return "The expression is incomplete. Make sure all brackets are closed."
	case ErrorCodeIllegalToken:
		if strings.HasPrefix(token, `"`) {
			return "Close the string with a double quote."
		}

		return "Valid punctuation is '::', ':', ',', '{', '}', '(' and ')'."
	case ErrorCodeUnexpectedToken:
		if token == ":" {
			return "A ':' must follow a field name, e.g. 'is_not_defined: true'."
		}

		return ""
	case ErrorCodeEmptyExpression, ErrorCodeUnknown:
		return ""
	}

	return ""
}

func sourceLine(query string, line int) string {
	lines := strings.Split(query, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}

	return strings.TrimRight(lines[line-1], "\r")
}
