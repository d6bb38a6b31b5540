package ast

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// String renders n back to rule syntax.
func String(n Node) string {
	return Format(n, nil)
}

// Format renders n back to rule syntax. Parameters whose index is covered by
// names are printed with that name instead of their own, which keeps the output
// consistent for trees assembled from separately parsed rules.
func Format(n Node, names []string) string {
	p := &printer{names: names}
	p.print(n, 0)
	return p.buf.String()
}

type printer struct {
	buf   strings.Builder
	names []string
}

const (
	precTernary = 0
	precUnary   = 7
	precPostfix = 8
)

func precedenceOf(n Node) int {
	switch n := n.(type) {
	case *Binary:
		return n.Op.Precedence()
	case *Unary:
		return precUnary
	case *Conditional, *Lambda:
		return precTernary
	default:
		return precPostfix
	}
}

// print writes n, parenthesising it when it binds looser than minPrec.
func (p *printer) print(n Node, minPrec int) {
	if n == nil {
		return
	}
	paren := precedenceOf(n) < minPrec
	if paren {
		p.buf.WriteByte('(')
	}

	switch n := n.(type) {
	case *Lambda:
		p.printLambda(n)
	case *Param:
		p.buf.WriteString(p.paramName(n))
	case *Member:
		p.print(n.Target, precPostfix)
		p.buf.WriteByte('.')
		p.buf.WriteString(n.Name)
	case *Index:
		p.print(n.Target, precPostfix)
		p.buf.WriteByte('[')
		p.print(n.Key, 0)
		p.buf.WriteByte(']')
	case *Call:
		if n.Target != nil {
			p.print(n.Target, precPostfix)
			p.buf.WriteByte('.')
		}
		p.buf.WriteString(n.Method)
		p.buf.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				p.buf.WriteString(", ")
			}
			p.print(a, 0)
		}
		p.buf.WriteByte(')')
	case *Binary:
		prec := n.Op.Precedence()
		p.print(n.Left, prec)
		p.buf.WriteByte(' ')
		p.buf.WriteString(n.Op.String())
		p.buf.WriteByte(' ')
		// Right operands of the same precedence need parentheses to keep
		// left associativity, except for the associative && and ||.
		rightPrec := prec + 1
		if n.Op == OpAnd || n.Op == OpOr {
			rightPrec = prec
		}
		p.print(n.Right, rightPrec)
	case *Unary:
		p.buf.WriteString(n.Op.String())
		p.print(n.Operand, precUnary)
	case *Conditional:
		p.print(n.Cond, 1)
		p.buf.WriteString(" ? ")
		p.print(n.Then, 1)
		p.buf.WriteString(" : ")
		p.print(n.Else, 0)
	case *Literal:
		p.buf.WriteString(literalString(n))
	case *Captured:
		p.buf.WriteString(n.Name)
	default:
		fmt.Fprintf(&p.buf, "<%T>", n)
	}

	if paren {
		p.buf.WriteByte(')')
	}
}

func (p *printer) printLambda(n *Lambda) {
	if len(n.Params) == 1 {
		p.buf.WriteString(p.paramName(n.Params[0]))
	} else {
		p.buf.WriteByte('(')
		for i, param := range n.Params {
			if i > 0 {
				p.buf.WriteString(", ")
			}
			p.buf.WriteString(p.paramName(param))
		}
		p.buf.WriteByte(')')
	}
	p.buf.WriteString(" => ")
	p.print(n.Body, 0)
}

func (p *printer) paramName(n *Param) string {
	if n.Index < len(p.names) && p.names[n.Index] != "" {
		return p.names[n.Index]
	}
	return n.Name
}

func literalString(n *Literal) string {
	switch n.Kind {
	case StringLiteral:
		return strconv.Quote(n.String)
	case NumberLiteral:
		return n.Number.String()
	default:
		return strconv.FormatBool(n.Bool)
	}
}

// ValueString renders a captured value the way it would be written as a literal.
func ValueString(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case decimal.Decimal:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return fmt.Sprintf("Date(%q)", v.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%v", v)
	}
}
