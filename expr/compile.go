package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/ast"
)

// frame holds the parameter values of one evaluation, indexed like ast.Param.Index.
type frame []any

type evalFunc func(frame) any

// typed is a compiled sub-expression with its static kind.
type typed struct {
	kind Kind
	elem *typeInfo // element schema for KindObject and KindList
	eval evalFunc
	// constant is set for literals and captured values so methods like
	// Matches and Date can do their work once at compile time.
	constant any
	isConst  bool
}

type paramType struct {
	kind Kind
	elem *typeInfo
}

type compiler struct {
	source string
	params []paramType
	// hostOnly is set once the current clause touches a member or method
	// the storage layer cannot evaluate.
	hostOnly bool
}

func newCompiler(source string, params ...paramType) *compiler {
	return &compiler{source: source, params: params}
}

func (c *compiler) errorf(n ast.Node, format string, args ...any) *CompileError {
	return &CompileError{
		Pos:     n.Position(),
		Source:  c.source,
		Message: fmt.Sprintf(format, args...),
	}
}

// compileAs compiles n and checks its kind.
func (c *compiler) compileAs(n ast.Node, want Kind, what string) (typed, error) {
	t, err := c.compile(n)
	if err != nil {
		return typed{}, err
	}
	if t.kind != want {
		return typed{}, c.errorf(n, "%s must be %s, got %s", what, want, t.kind)
	}
	return t, nil
}

func (c *compiler) compile(n ast.Node) (typed, error) {
	switch n := n.(type) {
	case *ast.Literal:
		return compileLiteral(n), nil
	case *ast.Captured:
		return c.compileCaptured(n)
	case *ast.Param:
		return c.compileParam(n)
	case *ast.Member:
		return c.compileMember(n)
	case *ast.Index:
		return c.compileIndex(n)
	case *ast.Call:
		return c.compileCall(n)
	case *ast.Unary:
		return c.compileUnary(n)
	case *ast.Binary:
		return c.compileBinary(n)
	case *ast.Conditional:
		return c.compileConditional(n)
	case *ast.Lambda:
		return typed{}, c.errorf(n, "lambda is only allowed as a method argument")
	}
	return typed{}, c.errorf(n, "unsupported expression %T", n)
}

func constant(kind Kind, v any) typed {
	return typed{kind: kind, eval: func(frame) any { return v }, constant: v, isConst: true}
}

func compileLiteral(n *ast.Literal) typed {
	switch n.Kind {
	case ast.StringLiteral:
		return constant(KindString, n.String)
	case ast.NumberLiteral:
		return constant(KindNumber, n.Number)
	default:
		return constant(KindBool, n.Bool)
	}
}

func (c *compiler) compileCaptured(n *ast.Captured) (typed, error) {
	switch v := n.Value.(type) {
	case string:
		return constant(KindString, v), nil
	case decimal.Decimal:
		return constant(KindNumber, v), nil
	case bool:
		return constant(KindBool, v), nil
	case time.Time:
		return constant(KindTime, v), nil
	case []string:
		return constant(KindStrings, v), nil
	case map[string]string:
		return constant(KindMap, v), nil
	}
	return typed{}, c.errorf(n, "variable %q has unsupported type %T", n.Name, n.Value)
}

func (c *compiler) compileParam(n *ast.Param) (typed, error) {
	if n.Index >= len(c.params) {
		return typed{}, c.errorf(n, "parameter %q is not bound", n.Name)
	}
	pt := c.params[n.Index]
	idx := n.Index
	return typed{kind: pt.kind, elem: pt.elem, eval: func(f frame) any { return f[idx] }}, nil
}

// bind declares a lambda parameter for the duration of a nested compile.
func (c *compiler) bind(index int, pt paramType) (restore func()) {
	saved := append([]paramType(nil), c.params...)
	for len(c.params) <= index {
		c.params = append(c.params, paramType{})
	}
	c.params[index] = pt
	return func() { c.params = saved }
}

func (c *compiler) compileMember(n *ast.Member) (typed, error) {
	target, err := c.compile(n.Target)
	if err != nil {
		return typed{}, err
	}

	switch target.kind {
	case KindObject:
		f, ok := target.elem.field(n.Name)
		if !ok {
			return typed{}, c.errorf(n, "%s has no member %q", target.elem.name, n.Name)
		}
		if f.HostOnly {
			c.hostOnly = true
		}
		get := f.get
		return typed{kind: f.Kind, elem: f.elem, eval: func(fr frame) any {
			return get(target.eval(fr))
		}}, nil

	case KindTime:
		part, ok := timeMembers[strings.ToLower(n.Name)]
		if !ok {
			return typed{}, c.errorf(n, "time has no member %q", n.Name)
		}
		return typed{kind: KindNumber, eval: func(fr frame) any {
			return decimal.NewFromInt(int64(part(target.eval(fr).(time.Time))))
		}}, nil
	}

	return typed{}, c.errorf(n, "%s has no member %q", target.kind, n.Name)
}

var timeMembers = map[string]func(time.Time) int{
	"year":      func(t time.Time) int { return t.Year() },
	"month":     func(t time.Time) int { return int(t.Month()) },
	"day":       func(t time.Time) int { return t.Day() },
	"hour":      func(t time.Time) int { return t.Hour() },
	"dayofweek": func(t time.Time) int { return int(t.Weekday()) },
}

func (c *compiler) compileIndex(n *ast.Index) (typed, error) {
	target, err := c.compile(n.Target)
	if err != nil {
		return typed{}, err
	}
	if target.kind != KindMap {
		return typed{}, c.errorf(n, "cannot index %s", target.kind)
	}
	key, err := c.compileAs(n.Key, KindString, "map key")
	if err != nil {
		return typed{}, err
	}
	return typed{kind: KindString, eval: func(f frame) any {
		m, _ := target.eval(f).(map[string]string)
		return m[key.eval(f).(string)]
	}}, nil
}

func (c *compiler) compileUnary(n *ast.Unary) (typed, error) {
	switch n.Op {
	case ast.OpNot:
		operand, err := c.compileAs(n.Operand, KindBool, "operand of !")
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindBool, eval: func(f frame) any { return !operand.eval(f).(bool) }}, nil
	case ast.OpNeg:
		operand, err := c.compileAs(n.Operand, KindNumber, "operand of -")
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindNumber, eval: func(f frame) any { return operand.eval(f).(decimal.Decimal).Neg() }}, nil
	}
	return typed{}, c.errorf(n, "unsupported unary operator %s", n.Op)
}

func (c *compiler) compileBinary(n *ast.Binary) (typed, error) {
	if n.Op == ast.OpAnd || n.Op == ast.OpOr {
		left, err := c.compileAs(n.Left, KindBool, "operand of "+n.Op.String())
		if err != nil {
			return typed{}, err
		}
		right, err := c.compileAs(n.Right, KindBool, "operand of "+n.Op.String())
		if err != nil {
			return typed{}, err
		}
		if n.Op == ast.OpAnd {
			return typed{kind: KindBool, eval: func(f frame) any {
				return left.eval(f).(bool) && right.eval(f).(bool)
			}}, nil
		}
		return typed{kind: KindBool, eval: func(f frame) any {
			return left.eval(f).(bool) || right.eval(f).(bool)
		}}, nil
	}

	left, err := c.compile(n.Left)
	if err != nil {
		return typed{}, err
	}
	right, err := c.compile(n.Right)
	if err != nil {
		return typed{}, err
	}

	switch {
	case n.Op == ast.OpEq || n.Op == ast.OpNe:
		return c.compileEquality(n, left, right)
	case n.Op.IsComparison():
		return c.compileOrdering(n, left, right)
	case n.Op == ast.OpAdd && (left.kind == KindString || right.kind == KindString):
		return c.compileConcat(n, left, right)
	}
	return c.compileArithmetic(n, left, right)
}

func (c *compiler) compileEquality(n *ast.Binary, left, right typed) (typed, error) {
	if left.kind != right.kind {
		return typed{}, c.errorf(n, "cannot compare %s with %s", left.kind, right.kind)
	}
	var eq func(a, b any) bool
	switch left.kind {
	case KindString, KindBool:
		eq = func(a, b any) bool { return a == b }
	case KindNumber:
		eq = func(a, b any) bool { return a.(decimal.Decimal).Equal(b.(decimal.Decimal)) }
	case KindTime:
		eq = func(a, b any) bool { return a.(time.Time).Equal(b.(time.Time)) }
	default:
		return typed{}, c.errorf(n, "%s values cannot be compared with %s", left.kind, n.Op)
	}
	negate := n.Op == ast.OpNe
	return typed{kind: KindBool, eval: func(f frame) any {
		return eq(left.eval(f), right.eval(f)) != negate
	}}, nil
}

func (c *compiler) compileOrdering(n *ast.Binary, left, right typed) (typed, error) {
	if left.kind != right.kind {
		return typed{}, c.errorf(n, "cannot compare %s with %s", left.kind, right.kind)
	}
	var cmp func(a, b any) int
	switch left.kind {
	case KindNumber:
		cmp = func(a, b any) int { return a.(decimal.Decimal).Cmp(b.(decimal.Decimal)) }
	case KindString:
		cmp = func(a, b any) int { return strings.Compare(a.(string), b.(string)) }
	case KindTime:
		cmp = func(a, b any) int { return a.(time.Time).Compare(b.(time.Time)) }
	default:
		return typed{}, c.errorf(n, "%s values cannot be ordered", left.kind)
	}

	var test func(int) bool
	switch n.Op {
	case ast.OpLt:
		test = func(r int) bool { return r < 0 }
	case ast.OpLe:
		test = func(r int) bool { return r <= 0 }
	case ast.OpGt:
		test = func(r int) bool { return r > 0 }
	default:
		test = func(r int) bool { return r >= 0 }
	}
	return typed{kind: KindBool, eval: func(f frame) any {
		return test(cmp(left.eval(f), right.eval(f)))
	}}, nil
}

func (c *compiler) compileConcat(n *ast.Binary, left, right typed) (typed, error) {
	for _, side := range []typed{left, right} {
		switch side.kind {
		case KindString, KindNumber, KindBool:
		default:
			return typed{}, c.errorf(n, "cannot concatenate %s", side.kind)
		}
	}
	return typed{kind: KindString, eval: func(f frame) any {
		return stringify(left.eval(f)) + stringify(right.eval(f))
	}}, nil
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(v)
}

func (c *compiler) compileArithmetic(n *ast.Binary, left, right typed) (typed, error) {
	if left.kind != KindNumber || right.kind != KindNumber {
		return typed{}, c.errorf(n, "operator %s needs numbers, got %s and %s", n.Op, left.kind, right.kind)
	}

	var op func(a, b decimal.Decimal) decimal.Decimal
	switch n.Op {
	case ast.OpAdd:
		op = decimal.Decimal.Add
	case ast.OpSub:
		op = decimal.Decimal.Sub
	case ast.OpMul:
		op = decimal.Decimal.Mul
	case ast.OpDiv:
		op = func(a, b decimal.Decimal) decimal.Decimal {
			if b.IsZero() {
				return decimal.Zero
			}
			return a.Div(b)
		}
	case ast.OpMod:
		op = func(a, b decimal.Decimal) decimal.Decimal {
			if b.IsZero() {
				return decimal.Zero
			}
			return a.Mod(b)
		}
	default:
		return typed{}, c.errorf(n, "unsupported operator %s", n.Op)
	}
	return typed{kind: KindNumber, eval: func(f frame) any {
		return op(left.eval(f).(decimal.Decimal), right.eval(f).(decimal.Decimal))
	}}, nil
}

func (c *compiler) compileConditional(n *ast.Conditional) (typed, error) {
	cond, err := c.compileAs(n.Cond, KindBool, "condition")
	if err != nil {
		return typed{}, err
	}
	then, err := c.compile(n.Then)
	if err != nil {
		return typed{}, err
	}
	els, err := c.compile(n.Else)
	if err != nil {
		return typed{}, err
	}
	if then.kind != els.kind {
		return typed{}, c.errorf(n, "branches of ?: differ: %s and %s", then.kind, els.kind)
	}
	return typed{kind: then.kind, elem: then.elem, eval: func(f frame) any {
		if cond.eval(f).(bool) {
			return then.eval(f)
		}
		return els.eval(f)
	}}, nil
}
