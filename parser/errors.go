package parser

import (
	"fmt"

	"github.com/budgetlog/logbook/ast"
)

// ParseError represents a syntax error in rule text.
type ParseError struct {
	Pos     ast.Position
	Source  string // The complete rule text
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s in rule: %s", e.Pos.Line, e.Pos.Column, e.Message, e.Source)
}

// GetPosition returns where in the rule text the error was detected.
func (e *ParseError) GetPosition() ast.Position {
	return e.Pos
}

// GetSource returns the rule text that failed to parse.
func (e *ParseError) GetSource() string {
	return e.Source
}

func (p *Parser) errorf(tok Token, format string, args ...any) *ParseError {
	return &ParseError{
		Pos:     ast.Position{Offset: tok.Start, Line: tok.Line, Column: tok.Column},
		Source:  p.source,
		Message: fmt.Sprintf(format, args...),
	}
}

// unexpected builds the error for a token that does not fit the grammar.
func (p *Parser) unexpected(tok Token, expected string) *ParseError {
	switch tok.Type {
	case EOF:
		return p.errorf(tok, "unexpected end of rule, expected %s", expected)
	case ILLEGAL:
		text := tok.String(p.source)
		if len(text) > 0 && (text[0] == '"' || text[0] == '\'') {
			return p.errorf(tok, "unterminated string literal")
		}
		return p.errorf(tok, "illegal character %q", text)
	}
	return p.errorf(tok, "unexpected %q, expected %s", tok.String(p.source), expected)
}
