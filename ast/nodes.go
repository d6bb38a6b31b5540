// Package ast defines the syntax tree of rule expressions.
//
// A rule is a lambda over one or two parameters whose body is built from member
// accesses, method calls, operators and literals:
//
//	o => o.description.Contains("LIDL") && o.amount < 0
//	(a, b) => a.amount == -b.amount && a.account.bank == b.account.bank
//
// Parameters are resolved to positional Param nodes by the parser, and free
// identifiers are resolved to Captured nodes holding the value bound at parse
// time. Nodes are immutable once built; transformations produce new trees.
package ast

import (
	"github.com/shopspring/decimal"
)

// Node is implemented by every expression node.
type Node interface {
	Position() Position
	node()
}

// Operator identifies a unary or binary operator.
type Operator uint8

const (
	OpOr Operator = iota
	OpAnd
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNot
	OpNeg
)

var operatorSymbols = map[Operator]string{
	OpOr:  "||",
	OpAnd: "&&",
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpNot: "!",
	OpNeg: "-",
}

func (op Operator) String() string {
	if s, ok := operatorSymbols[op]; ok {
		return s
	}
	return "?"
}

// Precedence returns the binding strength of a binary operator (higher binds tighter).
func (op Operator) Precedence() int {
	switch op {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	case OpEq, OpNe:
		return 3
	case OpLt, OpLe, OpGt, OpGe:
		return 4
	case OpAdd, OpSub:
		return 5
	case OpMul, OpDiv, OpMod:
		return 6
	default:
		return 7
	}
}

// IsComparison reports whether op yields a boolean from two operands of equal kind.
func (op Operator) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// Lambda is a parameterised expression. Top-level rules are lambdas, and so
// are the arguments of collection methods like Any and All.
type Lambda struct {
	Pos    Position
	Params []*Param
	Body   Node
}

// Param references a lambda parameter by its position in the enclosing scope chain.
// Index 0 is the first parameter of the outermost lambda.
type Param struct {
	Pos   Position
	Name  string
	Index int
}

// Member accesses a named member of Target.
type Member struct {
	Pos    Position
	Target Node
	Name   string
}

// Index looks up Key in a map-valued Target.
type Index struct {
	Pos    Position
	Target Node
	Key    Node
}

// Call invokes Method on Target. A nil Target denotes a global function.
type Call struct {
	Pos    Position
	Target Node
	Method string
	Args   []Node
}

// Binary applies a binary operator.
type Binary struct {
	Pos   Position
	Op    Operator
	Left  Node
	Right Node
}

// Unary applies a prefix operator.
type Unary struct {
	Pos     Position
	Op      Operator
	Operand Node
}

// Conditional is the ternary cond ? then : else.
type Conditional struct {
	Pos  Position
	Cond Node
	Then Node
	Else Node
}

// LiteralKind distinguishes literal values.
type LiteralKind uint8

const (
	StringLiteral LiteralKind = iota
	NumberLiteral
	BoolLiteral
)

// Literal is a constant written in the rule text.
type Literal struct {
	Pos    Position
	Kind   LiteralKind
	String string
	Number decimal.Decimal
	Bool   bool
}

// Captured is a free identifier whose value was bound when the rule was parsed.
// Its value is never re-evaluated, even after the rule is retargeted.
type Captured struct {
	Pos   Position
	Name  string
	Value any
}

func (n *Lambda) Position() Position      { return n.Pos }
func (n *Param) Position() Position       { return n.Pos }
func (n *Member) Position() Position      { return n.Pos }
func (n *Index) Position() Position       { return n.Pos }
func (n *Call) Position() Position        { return n.Pos }
func (n *Binary) Position() Position      { return n.Pos }
func (n *Unary) Position() Position       { return n.Pos }
func (n *Conditional) Position() Position { return n.Pos }
func (n *Literal) Position() Position     { return n.Pos }
func (n *Captured) Position() Position    { return n.Pos }

func (*Lambda) node()      {}
func (*Param) node()       {}
func (*Member) node()      {}
func (*Index) node()       {}
func (*Call) node()        {}
func (*Binary) node()      {}
func (*Unary) node()       {}
func (*Conditional) node() {}
func (*Literal) node()     {}
func (*Captured) node()    {}
