package dsl

// TokenType identifies the kind of a lexical token.
type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	IDENT  // CompFilter, is_not_defined, None
	STRING // "VEVENT"
	NUMBER // 2006, -1, 0.5

	PATHSEP // ::
	COLON   // :
	COMMA   // ,
	LBRACE  // {
	RBRACE  // }
	LPAREN  // (
	RPAREN  // )
)

var tokenNames = map[TokenType]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",
	IDENT:   "IDENT",
	STRING:  "STRING",
	NUMBER:  "NUMBER",
	PATHSEP: "'::'",
	COLON:   "':'",
	COMMA:   "','",
	LBRACE:  "'{'",
	RBRACE:  "'}'",
	LPAREN:  "'('",
	RPAREN:  "')'",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is a lexical token. Position is the byte offset of the token in the
// input and Literal is the exact source text.
type Token struct {
	Literal  string
	Type     TokenType
	Position int
}

// NewToken creates a new token.
func NewToken(tokenType TokenType, literal string, position int) Token {
	return Token{Type: tokenType, Literal: literal, Position: position}
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Position + len(t.Literal)
}
