package ast

import "fmt"

// Position represents a location in rule source text.
type Position struct {
	Offset int // Byte offset
	Line   int // Line number (1-indexed)
	Column int // Column number (1-indexed)
}

// String returns a human-readable representation of the position.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// GoString returns a Go-syntax representation of the position.
func (p Position) GoString() string {
	return fmt.Sprintf("Position{Line: %d, Column: %d}", p.Line, p.Column)
}
