package parser

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{
			name:  "arrow",
			input: "o => o",
			want:  []TokenType{IDENT, ARROW, IDENT, EOF},
		},
		{
			name:  "comparison operators",
			input: "== != < <= > >=",
			want:  []TokenType{EQ, NE, LT, LE, GT, GE, EOF},
		},
		{
			name:  "logical operators",
			input: "&& || !",
			want:  []TokenType{AND, OR, BANG, EOF},
		},
		{
			name:  "arithmetic",
			input: "+ - * / %",
			want:  []TokenType{PLUS, MINUS, STAR, SLASH, PERCENT, EOF},
		},
		{
			name:  "member call",
			input: `o.description.Contains("x")`,
			want:  []TokenType{IDENT, DOT, IDENT, DOT, IDENT, LPAREN, STRING, RPAREN, EOF},
		},
		{
			name:  "index",
			input: `o.attributes['k']`,
			want:  []TokenType{IDENT, DOT, IDENT, LBRACKET, STRING, RBRACKET, EOF},
		},
		{
			name:  "booleans",
			input: "true false truthy",
			want:  []TokenType{TRUE, FALSE, IDENT, EOF},
		},
		{
			name:  "ternary",
			input: "a ? b : c",
			want:  []TokenType{IDENT, QUESTION, IDENT, COLON, IDENT, EOF},
		},
		{
			name:  "single ampersand is illegal",
			input: "a & b",
			want:  []TokenType{IDENT, ILLEGAL, IDENT, EOF},
		},
		{
			name:  "unterminated string",
			input: `"abc`,
			want:  []TokenType{ILLEGAL, EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := NewLexer(tt.input).ScanAll()

			got := make([]TokenType, len(tokens))
			for i, tok := range tokens {
				got[i] = tok.Type
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"123", "123"},
		{"123.45", "123.45"},
		{"0.50", "0.50"},
		{"1.Abs", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens := NewLexer(tt.input).ScanAll()
			assert.Equal(t, NUMBER, tokens[0].Type)
			assert.Equal(t, tt.want, tokens[0].String(tt.input))
		})
	}
}

func TestLexerPositions(t *testing.T) {
	input := "o =>\n  o.amount"
	tokens := NewLexer(input).ScanAll()

	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)

	// second "o" sits on line 2 after two spaces
	assert.Equal(t, IDENT, tokens[2].Type)
	assert.Equal(t, 2, tokens[2].Line)
	assert.Equal(t, 3, tokens[2].Column)
	assert.Equal(t, "amount", tokens[4].String(input))
}
