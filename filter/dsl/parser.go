package dsl

import (
	"strings"
)

// Parser builds an Expr from the token stream of a Lexer.
type Parser struct {
	lexer     *Lexer
	query     string
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given lexer.
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{
		lexer: lexer,
		query: lexer.input,
	}

	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()

	return p
}

// Parse parses a filter expression in one step.
func Parse(query string) (*Expr, error) {
	return NewParser(NewLexer(query)).ParseExpression()
}

// ParseExpression parses exactly one top-level entry, optionally followed by
// a comma.
func (p *Parser) ParseExpression() (*Expr, error) {
	if p.curTokenIs(EOF) {
		return nil, p.errorAt(p.curToken, ErrorCodeEmptyExpression, "empty filter expression")
	}

	entry, err := p.parseEntry()
	if err != nil {
		return nil, err
	}

	if p.curTokenIs(COMMA) {
		p.nextToken()
	}

	if !p.curTokenIs(EOF) {
		if p.curTokenIs(ILLEGAL) {
			return nil, p.illegal()
		}

		return nil, p.errorAt(p.curToken, ErrorCodeTrailingTokens,
			"unexpected %s after expression, only one top-level entry is allowed", describe(p.curToken))
	}

	return &Expr{Entry: entry, Query: p.query}, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// parseEntry parses `[field ':'] value ['{' entries '}']`. The field is
// inferred as "append" when the entry starts with a qualified path.
func (p *Parser) parseEntry() (*Entry, error) {
	if !p.curTokenIs(IDENT) {
		return nil, p.unexpected("field name or path")
	}

	entry := &Entry{Position: p.curToken.Position}

	if p.peekTokenIs(PATHSEP) {
		entry.Field = AppendField
		entry.Inferred = true
	} else {
		entry.Field = p.curToken.Literal

		if !p.peekTokenIs(COLON) {
			p.nextToken()
			if p.curTokenIs(ILLEGAL) {
				return nil, p.illegal()
			}

			return nil, p.errorAt(p.curToken, ErrorCodeMissingColon,
				"expected ':' after field %q, got %s", entry.Field, describe(p.curToken))
		}

		p.nextToken()
		p.nextToken()
	}

	value, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	entry.Value = value

	if p.curTokenIs(LBRACE) {
		children, err := p.parseChildren()
		if err != nil {
			return nil, err
		}

		entry.Children = children
	}

	return entry, nil
}

// parseChildren parses a brace-delimited, comma-separated list of entries.
// The current token must be the opening brace.
func (p *Parser) parseChildren() ([]*Entry, error) {
	open := p.curToken
	p.nextToken()

	var children []*Entry

	for !p.curTokenIs(RBRACE) {
		if p.curTokenIs(EOF) {
			return nil, p.errorAt(open, ErrorCodeMissingClosingBrace, "unclosed '{'")
		}

		child, err := p.parseEntry()
		if err != nil {
			return nil, err
		}

		children = append(children, child)

		switch {
		case p.curTokenIs(COMMA):
			p.nextToken()
		case p.curTokenIs(RBRACE):
		case p.curTokenIs(EOF):
			return nil, p.errorAt(open, ErrorCodeMissingClosingBrace, "unclosed '{'")
		default:
			return nil, p.unexpected("',' or '}'")
		}
	}

	p.nextToken()

	return children, nil
}

// parseValue parses a literal, a path, a call or a struct literal. On return
// curToken is the first token after the value.
func (p *Parser) parseValue() (Value, error) {
	tok := p.curToken

	switch tok.Type {
	case STRING:
		p.nextToken()
		return &Literal{Raw: tok.Literal, Kind: StringLiteral, Position: tok.Position}, nil
	case NUMBER:
		p.nextToken()
		return &Literal{Raw: tok.Literal, Kind: NumberLiteral, Position: tok.Position}, nil
	case IDENT:
	default:
		return nil, p.unexpected("value")
	}

	if tok.Literal == "true" || tok.Literal == "false" {
		p.nextToken()
		return &Literal{Raw: tok.Literal, Kind: BoolLiteral, Position: tok.Position}, nil
	}

	if p.peekTokenIs(LBRACE) {
		p.nextToken()
		return p.parseStruct(tok)
	}

	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(LPAREN) {
		return path, nil
	}

	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}

	return &Call{Func: path, Args: args, Position: path.Position}, nil
}

// parsePath parses `ident ('::' ident)*`.
func (p *Parser) parsePath() (*Path, error) {
	path := &Path{
		Segments: []string{p.curToken.Literal},
		Position: p.curToken.Position,
	}

	p.nextToken()

	for p.curTokenIs(PATHSEP) {
		p.nextToken()

		if !p.curTokenIs(IDENT) {
			return nil, p.unexpected("identifier after '::'")
		}

		path.Segments = append(path.Segments, p.curToken.Literal)
		p.nextToken()
	}

	return path, nil
}

// parseArgs parses a parenthesized, comma-separated argument list. The
// current token must be the opening parenthesis.
func (p *Parser) parseArgs() ([]Value, error) {
	open := p.curToken
	p.nextToken()

	var args []Value

	for !p.curTokenIs(RPAREN) {
		if p.curTokenIs(EOF) {
			return nil, p.errorAt(open, ErrorCodeMissingClosingParen, "unclosed '('")
		}

		arg, err := p.parseValue()
		if err != nil {
			return nil, err
		}

		args = append(args, arg)

		switch {
		case p.curTokenIs(COMMA):
			p.nextToken()
		case p.curTokenIs(RPAREN):
		case p.curTokenIs(EOF):
			return nil, p.errorAt(open, ErrorCodeMissingClosingParen, "unclosed '('")
		default:
			return nil, p.unexpected("',' or ')'")
		}
	}

	p.nextToken()

	return args, nil
}

// parseStruct parses `Type { field: value, ... }`. The current token must be
// the opening brace and typ the type name before it.
func (p *Parser) parseStruct(typ Token) (Value, error) {
	open := p.curToken
	p.nextToken()

	st := &Struct{Type: typ.Literal, Position: typ.Position}

	for !p.curTokenIs(RBRACE) {
		if p.curTokenIs(EOF) {
			return nil, p.errorAt(open, ErrorCodeMissingClosingBrace, "unclosed '{' in %s literal", typ.Literal)
		}

		if !p.curTokenIs(IDENT) {
			return nil, p.unexpected("field name")
		}

		name := p.curToken

		if !p.peekTokenIs(COLON) {
			p.nextToken()
			return nil, p.errorAt(p.curToken, ErrorCodeMissingColon,
				"expected ':' after field %q, got %s", name.Literal, describe(p.curToken))
		}

		p.nextToken()
		p.nextToken()

		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}

		st.Fields = append(st.Fields, Field{Name: name.Literal, Value: value, Position: name.Position})

		switch {
		case p.curTokenIs(COMMA):
			p.nextToken()
		case p.curTokenIs(RBRACE):
		case p.curTokenIs(EOF):
			return nil, p.errorAt(open, ErrorCodeMissingClosingBrace, "unclosed '{' in %s literal", typ.Literal)
		default:
			return nil, p.unexpected("',' or '}'")
		}
	}

	p.nextToken()

	return st, nil
}

func (p *Parser) unexpected(expected string) error {
	switch p.curToken.Type {
	case ILLEGAL:
		return p.illegal()
	case EOF:
		return p.errorAt(p.curToken, ErrorCodeUnexpectedEOF, "unexpected end of input, expected %s", expected)
	default:
		return p.errorAt(p.curToken, ErrorCodeUnexpectedToken, "expected %s, got %s", expected, describe(p.curToken))
	}
}

func (p *Parser) illegal() error {
	if strings.HasPrefix(p.curToken.Literal, `"`) {
		return p.errorAt(p.curToken, ErrorCodeIllegalToken, "unterminated string")
	}

	return p.errorAt(p.curToken, ErrorCodeIllegalToken, "illegal character %q", p.curToken.Literal)
}

func (p *Parser) errorAt(tok Token, code ErrorCode, format string, args ...any) error {
	return newParseError(p.query, tok, code, format, args...)
}

func describe(tok Token) string {
	switch tok.Type {
	case EOF:
		return "end of input"
	case IDENT, STRING, NUMBER, ILLEGAL:
		return tok.Type.String() + " '" + tok.Literal + "'"
	}

	return tok.Type.String()
}
