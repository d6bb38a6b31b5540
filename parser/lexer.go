package parser

// Lexer tokenizes rule text in a single pass with no backtracking.
type Lexer struct {
	source string
	pos    int     // Current byte position
	line   int     // Current line (1-indexed)
	column int     // Current column (1-indexed)
	tokens []Token // Token buffer
}

// NewLexer creates a new lexer for the given rule text.
func NewLexer(source string) *Lexer {
	return &Lexer{
		source: source,
		line:   1,
		column: 1,
		tokens: make([]Token, 0, len(source)/3+4),
	}
}

// ScanAll lexes the entire source and returns all tokens, terminated by EOF.
// Characters that cannot start a token, and unterminated strings, produce
// ILLEGAL tokens; the parser reports them.
func (l *Lexer) ScanAll() []Token {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.source) {
			break
		}
		l.tokens = append(l.tokens, l.scanToken())
	}

	l.tokens = append(l.tokens, Token{
		Type:   EOF,
		Start:  l.pos,
		End:    l.pos,
		Line:   l.line,
		Column: l.column,
	})

	return l.tokens
}

// scanToken scans the next token from the current position.
func (l *Lexer) scanToken() Token {
	start := l.pos
	startLine := l.line
	startCol := l.column

	ch := l.advance()
	tok := func(t TokenType) Token {
		return Token{t, start, l.pos, startLine, startCol}
	}

	switch {
	case isDigit(ch):
		return l.scanNumber(start, startLine, startCol)

	case ch == '"' || ch == '\'':
		return l.scanString(ch, start, startLine, startCol)

	case isIdentStart(ch):
		return l.scanIdent(start, startLine, startCol)

	case ch == '.':
		return tok(DOT)
	case ch == ',':
		return tok(COMMA)
	case ch == '(':
		return tok(LPAREN)
	case ch == ')':
		return tok(RPAREN)
	case ch == '[':
		return tok(LBRACKET)
	case ch == ']':
		return tok(RBRACKET)
	case ch == '?':
		return tok(QUESTION)
	case ch == ':':
		return tok(COLON)
	case ch == '+':
		return tok(PLUS)
	case ch == '-':
		return tok(MINUS)
	case ch == '*':
		return tok(STAR)
	case ch == '/':
		return tok(SLASH)
	case ch == '%':
		return tok(PERCENT)

	// = must be followed by = or >
	case ch == '=':
		switch l.peek() {
		case '=':
			l.advance()
			return tok(EQ)
		case '>':
			l.advance()
			return tok(ARROW)
		}
		return tok(ILLEGAL)

	case ch == '!':
		if l.peek() == '=' {
			l.advance()
			return tok(NE)
		}
		return tok(BANG)

	case ch == '<':
		if l.peek() == '=' {
			l.advance()
			return tok(LE)
		}
		return tok(LT)

	case ch == '>':
		if l.peek() == '=' {
			l.advance()
			return tok(GE)
		}
		return tok(GT)

	case ch == '&':
		if l.peek() == '&' {
			l.advance()
			return tok(AND)
		}
		return tok(ILLEGAL)

	case ch == '|':
		if l.peek() == '|' {
			l.advance()
			return tok(OR)
		}
		return tok(ILLEGAL)

	default:
		return tok(ILLEGAL)
	}
}

// scanNumber scans a number: [0-9]+(\.[0-9]+)?
// A leading minus is lexed as an operator and folded by the parser.
func (l *Lexer) scanNumber(start, line, col int) Token {
	for isDigit(l.peek()) {
		l.advance()
	}

	// Only consume '.' when a digit follows, so 1.Abs() stays a method call
	if l.peek() == '.' && l.pos+1 < len(l.source) && isDigit(l.source[l.pos+1]) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	return Token{NUMBER, start, l.pos, line, col}
}

// scanString scans a string delimited by quote. Backslash escapes the next byte.
func (l *Lexer) scanString(quote byte, start, line, col int) Token {
	for l.pos < len(l.source) {
		ch := l.source[l.pos]
		if ch == quote {
			l.advance()
			return Token{STRING, start, l.pos, line, col}
		}
		if ch == '\\' && l.pos+1 < len(l.source) {
			l.advance()
		}
		l.advance()
	}

	// Reached end of input without the closing quote
	return Token{ILLEGAL, start, l.pos, line, col}
}

// scanIdent scans an identifier or the boolean keywords.
func (l *Lexer) scanIdent(start, line, col int) Token {
	for isIdentPart(l.peek()) {
		l.advance()
	}

	switch l.source[start:l.pos] {
	case "true":
		return Token{TRUE, start, l.pos, line, col}
	case "false":
		return Token{FALSE, start, l.pos, line, col}
	}
	return Token{IDENT, start, l.pos, line, col}
}

// skipWhitespace skips whitespace and updates line/column tracking.
func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.source) {
		ch := l.source[l.pos]
		if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			break
		}
		l.advance()
	}
}

// Helper methods

func (l *Lexer) peek() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() byte {
	if l.pos >= len(l.source) {
		return 0
	}
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isIdentStart accepts ASCII letters, underscore and UTF-8 lead bytes.
func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
