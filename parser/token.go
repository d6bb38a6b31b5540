package parser

// TokenType represents the type of token scanned from rule text.
type TokenType uint8

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals
	IDENT  // o, amount, Contains
	STRING // "quoted" or 'quoted'
	NUMBER // 123 or 123.45
	TRUE   // true
	FALSE  // false

	// Symbols
	ARROW    // =>
	DOT      // .
	COMMA    // ,
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]
	QUESTION // ?
	COLON    // :

	// Operators
	OR      // ||
	AND     // &&
	EQ      // ==
	NE      // !=
	LT      // <
	LE      // <=
	GT      // >
	GE      // >=
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	BANG    // !
)

var tokenNames = map[TokenType]string{
	EOF:     "EOF",
	ILLEGAL: "ILLEGAL",

	IDENT:  "IDENT",
	STRING: "STRING",
	NUMBER: "NUMBER",
	TRUE:   "true",
	FALSE:  "false",

	ARROW:    "=>",
	DOT:      ".",
	COMMA:    ",",
	LPAREN:   "(",
	RPAREN:   ")",
	LBRACKET: "[",
	RBRACKET: "]",
	QUESTION: "?",
	COLON:    ":",

	OR:      "||",
	AND:     "&&",
	EQ:      "==",
	NE:      "!=",
	LT:      "<",
	LE:      "<=",
	GT:      ">",
	GE:      ">=",
	PLUS:    "+",
	MINUS:   "-",
	STAR:    "*",
	SLASH:   "/",
	PERCENT: "%",
	BANG:    "!",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a lexical token. Like the rule source it indexes into, it
// stores byte offsets rather than a copy of its text.
type Token struct {
	Type   TokenType
	Start  int // Byte offset into source
	End    int // End offset (exclusive)
	Line   int // Line number (1-indexed)
	Column int // Column number (1-indexed)
}

// String materializes the token text from the source.
func (t Token) String(source string) string {
	if t.Start >= len(source) || t.End > len(source) || t.End < t.Start {
		return ""
	}
	return source[t.Start:t.End]
}
