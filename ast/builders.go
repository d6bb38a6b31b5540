package ast

import (
	"github.com/shopspring/decimal"
)

// NewString creates a string literal.
func NewString(s string) *Literal {
	return &Literal{Kind: StringLiteral, String: s}
}

// NewNumber creates a number literal.
func NewNumber(d decimal.Decimal) *Literal {
	return &Literal{Kind: NumberLiteral, Number: d}
}

// NewBool creates a boolean literal.
func NewBool(b bool) *Literal {
	return &Literal{Kind: BoolLiteral, Bool: b}
}

// NewParam creates a reference to the parameter at index.
func NewParam(name string, index int) *Param {
	return &Param{Name: name, Index: index}
}

// NewMember builds a member chain from a root node.
//
//	ast.NewMember(ast.NewParam("o", 0), "account", "name") // o.account.name
func NewMember(target Node, names ...string) Node {
	n := target
	for _, name := range names {
		n = &Member{Pos: target.Position(), Target: n, Name: name}
	}
	return n
}

// NewBinary creates a binary operation.
func NewBinary(op Operator, left, right Node) *Binary {
	return &Binary{Pos: left.Position(), Op: op, Left: left, Right: right}
}

// NewCall creates a method call on target, or a global call when target is nil.
func NewCall(target Node, method string, args ...Node) *Call {
	var pos Position
	if target != nil {
		pos = target.Position()
	}
	return &Call{Pos: pos, Target: target, Method: method, Args: args}
}

// NewCaptured creates a node holding a value bound at parse time.
func NewCaptured(name string, value any) *Captured {
	return &Captured{Name: name, Value: value}
}

// IsTrue reports whether n is the literal true.
func IsTrue(n Node) bool {
	l, ok := n.(*Literal)
	return ok && l.Kind == BoolLiteral && l.Bool
}
