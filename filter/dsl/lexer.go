package dsl

import (
	"unicode"
)

// Lexer tokenizes a filter expression.
type Lexer struct {
	input        string // The input string being tokenized
	position     int    // Current position in input (points to current char)
	readPosition int    // Current reading position in input (after current char)
	ch           byte   // Current char under examination
}

// NewLexer creates a new Lexer for the given input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()

	return l
}

// NextToken reads and returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	start := l.position

	switch {
	case l.ch == 0 && l.position >= len(l.input):
		return NewToken(EOF, "", start)
	case l.ch == ':':
		if l.peekChar() == ':' {
			l.readChar()
			l.readChar()

			return NewToken(PATHSEP, "::", start)
		}

		return l.single(COLON)
	case l.ch == ',':
		return l.single(COMMA)
	case l.ch == '{':
		return l.single(LBRACE)
	case l.ch == '}':
		return l.single(RBRACE)
	case l.ch == '(':
		return l.single(LPAREN)
	case l.ch == ')':
		return l.single(RPAREN)
	case l.ch == '"':
		return l.readString()
	case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peekChar())):
		return l.readNumber()
	case isIdentStart(l.ch):
		return l.readIdentifier()
	}

	return l.single(ILLEGAL)
}

// Tokens returns every token of the input, up to and including EOF or the
// first ILLEGAL token.
func (l *Lexer) Tokens() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)

		if tok.Type == EOF || tok.Type == ILLEGAL {
			return tokens
		}
	}
}

func (l *Lexer) single(t TokenType) Token {
	tok := NewToken(t, string(l.ch), l.position)
	l.readChar()

	return tok
}

// readChar advances the lexer's position and updates the current character.
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input) + 1

		return
	}

	l.ch = l.input[l.readPosition]
	l.position = l.readPosition
	l.readPosition++
}

// peekChar returns the next character without advancing the position.
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}

	return l.input[l.readPosition]
}

// skipWhitespaceAndComments skips blanks and "//" line comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.position < len(l.input) && unicode.IsSpace(rune(l.ch)) {
			l.readChar()
		}

		if l.ch != '/' || l.peekChar() != '/' {
			return
		}

		for l.position < len(l.input) && l.ch != '\n' {
			l.readChar()
		}
	}
}

func (l *Lexer) readIdentifier() Token {
	start := l.position
	for isIdentChar(l.ch) {
		l.readChar()
	}

	return NewToken(IDENT, l.input[start:l.position], start)
}

// readNumber reads an integer or a decimal number with an optional leading
// minus sign.
func (l *Lexer) readNumber() Token {
	start := l.position
	if l.ch == '-' {
		l.readChar()
	}

	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}

	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()

		for isDigit(l.ch) {
			l.readChar()
		}
	}

	return NewToken(NUMBER, l.input[start:l.position], start)
}

// readString reads a double-quoted string. The literal keeps the quotes and
// escape sequences; an unterminated string is ILLEGAL.
func (l *Lexer) readString() Token {
	start := l.position
	l.readChar()

	for l.position < len(l.input) && l.ch != '"' {
		if l.ch == '\\' {
			l.readChar()
		}

		l.readChar()
	}

	if l.position >= len(l.input) {
		return NewToken(ILLEGAL, l.input[start:], start)
	}

	l.readChar()

	return NewToken(STRING, l.input[start:l.position], start)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
