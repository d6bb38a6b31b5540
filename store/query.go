package store

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/ast"
	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

// Query is how a predicate runs against the store: Where selects
// candidate rows in SQL and Host filters the loaded candidates.
type Query struct {
	Where string
	Args  []any
	Host  operation.Predicate
}

func (q Query) String() string {
	return fmt.Sprintf("WHERE %s %v; host %s", q.Where, q.Args, q.Host)
}

// Plan splits p into SQL and an in-process residual. The storage part of
// p is rewritten onto RecordSchema and rendered clause by clause; the
// first clause SQL cannot express, and every clause after it, moves to
// the residual. Number comparisons run in SQL on floats, so they only
// narrow the candidates and are evaluated again by the host.
func Plan(p operation.Predicate) (Query, error) {
	storage, host := expr.Partition(p)
	if storage.IsTrue() {
		return Query{Where: "1", Host: host}, nil
	}
	rec, err := expr.Retarget(storage, RecordSchema, Mapping)
	if err != nil {
		return Query{}, err
	}

	var (
		parts []string
		args  []any
	)
	recheck, _ := expr.SplitAt(storage, 0)
	for i, clause := range rec.Clauses() {
		f, err := render(clause)
		if err != nil {
			_, rest := expr.SplitAt(storage, i)
			host = expr.Combine(rest, host)
			break
		}
		if f.loose {
			recheck = expr.Combine(recheck, clauseAt(storage, i))
		}
		parts = append(parts, f.sql)
		args = append(args, f.args...)
	}
	host = expr.Combine(recheck, host)
	if len(parts) == 0 {
		return Query{Where: "1", Host: host}, nil
	}
	return Query{Where: strings.Join(parts, " AND "), Args: args, Host: host}, nil
}

func clauseAt(p operation.Predicate, i int) operation.Predicate {
	_, tail := expr.SplitAt(p, i)
	head, _ := expr.SplitAt(tail, 1)
	return head
}

var errUnsupported = errors.New("no SQL form")

func unsupported(n ast.Node) error {
	return fmt.Errorf("%w: %T at %s", errUnsupported, n, n.Position())
}

// fragment is a piece of SQL with its bind parameters in text order.
// A loose fragment selects a superset of the rows the rule selects.
// Number fragments are either a column or a constant; arithmetic is left
// to the host.
type fragment struct {
	sql    string
	args   []any
	kind   expr.Kind
	loose  bool
	column bool
	number *decimal.Decimal
}

func numberConstant(d decimal.Decimal) fragment {
	return fragment{kind: expr.KindNumber, number: &d}
}

func param(v any, kind expr.Kind) fragment {
	return fragment{sql: "?", args: []any{v}, kind: kind}
}

func boolean(b bool) fragment {
	if b {
		return fragment{sql: "1", kind: expr.KindBool}
	}
	return fragment{sql: "0", kind: expr.KindBool}
}

// sqlf formats a fragment of the given kind from parts. Each %s in format
// takes the next part; the parts' parameters are concatenated in order.
func sqlf(kind expr.Kind, format string, parts ...fragment) fragment {
	texts := make([]any, len(parts))
	var args []any
	for i, p := range parts {
		texts[i] = p.sql
		args = append(args, p.args...)
	}
	return fragment{sql: fmt.Sprintf(format, texts...), args: args, kind: kind}
}

func render(n ast.Node) (fragment, error) {
	switch n := n.(type) {
	case *ast.Literal:
		switch n.Kind {
		case ast.StringLiteral:
			return param(n.String, expr.KindString), nil
		case ast.NumberLiteral:
			return numberConstant(n.Number), nil
		default:
			return boolean(n.Bool), nil
		}
	case *ast.Captured:
		return renderValue(n)
	case *ast.Member:
		return renderColumn(n)
	case *ast.Unary:
		return renderUnary(n)
	case *ast.Binary:
		return renderBinary(n)
	case *ast.Call:
		return renderCall(n)
	case *ast.Conditional:
		cond, err := render(n.Cond)
		if err != nil {
			return fragment{}, err
		}
		then, err := render(n.Then)
		if err != nil {
			return fragment{}, err
		}
		els, err := render(n.Else)
		if err != nil {
			return fragment{}, err
		}
		if cond.loose || then.loose || els.loose || then.kind == expr.KindNumber {
			return fragment{}, unsupported(n)
		}
		return sqlf(then.kind, "(CASE WHEN %s THEN %s ELSE %s END)", cond, then, els), nil
	}
	return fragment{}, unsupported(n)
}

func renderValue(n *ast.Captured) (fragment, error) {
	switch v := n.Value.(type) {
	case string:
		return param(v, expr.KindString), nil
	case decimal.Decimal:
		return numberConstant(v), nil
	case bool:
		return boolean(v), nil
	case time.Time:
		return param(formatTime(v), expr.KindTime), nil
	}
	return fragment{}, unsupported(n)
}

func renderColumn(n *ast.Member) (fragment, error) {
	path, root, ok := ast.Path(n)
	if !ok || root.Index != 0 {
		return fragment{}, unsupported(n)
	}
	f, ok := RecordSchema.Field(path)
	if !ok || f.HostOnly || strings.Contains(path, ".") {
		return fragment{}, unsupported(n)
	}
	switch f.Kind {
	case expr.KindNumber:
		return fragment{sql: "CAST(" + f.Name + " AS REAL)", kind: f.Kind, column: true}, nil
	case expr.KindString, expr.KindTime, expr.KindStrings:
		return fragment{sql: f.Name, kind: f.Kind}, nil
	}
	return fragment{}, unsupported(n)
}

func renderUnary(n *ast.Unary) (fragment, error) {
	operand, err := render(n.Operand)
	if err != nil {
		return fragment{}, err
	}
	switch {
	case n.Op == ast.OpNot && !operand.loose:
		return sqlf(expr.KindBool, "(NOT %s)", operand), nil
	case n.Op == ast.OpNeg && operand.number != nil:
		return numberConstant(operand.number.Neg()), nil
	case n.Op == ast.OpNeg && operand.column:
		f := sqlf(expr.KindNumber, "(-%s)", operand)
		f.column = true
		return f, nil
	}
	return fragment{}, unsupported(n)
}

var comparisons = map[ast.Operator]string{
	ast.OpEq: "=",
	ast.OpNe: "<>",
	ast.OpLt: "<",
	ast.OpLe: "<=",
	ast.OpGt: ">",
	ast.OpGe: ">=",
}

func renderBinary(n *ast.Binary) (fragment, error) {
	left, err := render(n.Left)
	if err != nil {
		return fragment{}, err
	}
	right, err := render(n.Right)
	if err != nil {
		return fragment{}, err
	}

	switch n.Op {
	case ast.OpAnd:
		f := sqlf(expr.KindBool, "(%s AND %s)", left, right)
		f.loose = left.loose || right.loose
		return f, nil
	case ast.OpOr:
		f := sqlf(expr.KindBool, "(%s OR %s)", left, right)
		f.loose = left.loose || right.loose
		return f, nil
	case ast.OpAdd:
		if left.kind == expr.KindString && right.kind == expr.KindString {
			return sqlf(expr.KindString, "(%s || %s)", left, right), nil
		}
	}
	op, ok := comparisons[n.Op]
	if !ok || left.kind != right.kind || left.loose || right.loose {
		// Division by zero and mixed concatenation differ between SQL and rules.
		return fragment{}, unsupported(n)
	}
	if left.kind == expr.KindNumber {
		return renderNumberComparison(n, left, right)
	}
	return sqlf(expr.KindBool, "(%s "+op+" %s)", left, right), nil
}

// flipped maps a comparison to the one that holds with its operands swapped.
var flipped = map[ast.Operator]ast.Operator{
	ast.OpEq: ast.OpEq,
	ast.OpLt: ast.OpGt,
	ast.OpLe: ast.OpGe,
	ast.OpGt: ast.OpLt,
	ast.OpGe: ast.OpLe,
}

// renderNumberComparison compares a column with a constant inside a
// tolerance that covers float rounding. The result is loose.
func renderNumberComparison(n *ast.Binary, left, right fragment) (fragment, error) {
	op := n.Op
	if left.number != nil && right.column {
		f, ok := flipped[op]
		if !ok {
			return fragment{}, unsupported(n)
		}
		left, right, op = right, left, f
	}
	if !left.column || right.number == nil {
		return fragment{}, unsupported(n)
	}
	v := right.number.InexactFloat64()
	margin := math.Abs(v)*1e-9 + 1e-9

	var f fragment
	switch op {
	case ast.OpEq:
		f = sqlf(expr.KindBool, "(%s BETWEEN ? AND ?)", left)
		f.args = append(f.args, v-margin, v+margin)
	case ast.OpLt, ast.OpLe:
		f = sqlf(expr.KindBool, "(%s <= ?)", left)
		f.args = append(f.args, v+margin)
	case ast.OpGt, ast.OpGe:
		f = sqlf(expr.KindBool, "(%s >= ?)", left)
		f.args = append(f.args, v-margin)
	default:
		return fragment{}, unsupported(n)
	}
	f.loose = true
	return f, nil
}

func renderCall(n *ast.Call) (fragment, error) {
	name := strings.ToLower(n.Method)
	if n.Target == nil {
		return renderGlobal(n, name)
	}
	target, err := render(n.Target)
	if err != nil {
		return fragment{}, err
	}
	args := make([]fragment, len(n.Args))
	for i, a := range n.Args {
		if args[i], err = render(a); err != nil {
			return fragment{}, err
		}
	}

	switch target.kind {
	case expr.KindString:
		switch {
		case name == "contains" && len(args) == 1:
			return sqlf(expr.KindBool, "(instr(%s, %s) > 0)", target, args[0]), nil
		case name == "startswith" && len(args) == 1:
			return sqlf(expr.KindBool, "(substr(%s, 1, length(%s)) = %s)", target, args[0], args[0]), nil
		case name == "endswith" && len(args) == 1:
			return sqlf(expr.KindBool, "(length(%s) = 0 OR substr(%s, -length(%s)) = %s)", args[0], target, args[0], args[0]), nil
		case name == "length" && len(args) == 0:
			f := sqlf(expr.KindNumber, "length(%s)", target)
			f.column = true
			return f, nil
		}
	case expr.KindNumber:
		if name == "abs" && len(args) == 0 && target.column {
			f := sqlf(expr.KindNumber, "abs(%s)", target)
			f.column = true
			return f, nil
		}
	case expr.KindStrings:
		if name == "contains" && len(args) == 1 {
			return sqlf(expr.KindBool, "(instr(%s, '"+tagSeparator+"' || %s || '"+tagSeparator+"') > 0)", target, args[0]), nil
		}
	}
	// Case mapping and trimming are not Unicode aware in SQLite.
	return fragment{}, unsupported(n)
}

func renderGlobal(n *ast.Call, name string) (fragment, error) {
	if len(n.Args) != 1 {
		return fragment{}, unsupported(n)
	}
	switch name {
	case "date":
		var text string
		switch a := n.Args[0].(type) {
		case *ast.Literal:
			text = a.String
		case *ast.Captured:
			s, ok := a.Value.(string)
			if !ok {
				return fragment{}, unsupported(n)
			}
			text = s
		default:
			return fragment{}, unsupported(n)
		}
		t, err := expr.ParseDate(text)
		if err != nil {
			return fragment{}, unsupported(n)
		}
		return param(formatTime(t), expr.KindTime), nil
	case "abs":
		arg, err := render(n.Args[0])
		if err != nil {
			return fragment{}, err
		}
		if !arg.column {
			return fragment{}, unsupported(n)
		}
		f := sqlf(expr.KindNumber, "abs(%s)", arg)
		f.column = true
		return f, nil
	}
	return fragment{}, unsupported(n)
}
