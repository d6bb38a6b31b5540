// Package expr compiles rule text into typed, reusable predicates and
// conversions.
//
// Rules are parsed once and compiled against a Schema, the accessor table
// of the value type they run over. A compiled rule is safe for concurrent
// use. Predicates keep their syntax tree so they can be combined with other
// predicates, rewritten onto another schema (Retarget), and split into a
// part a storage layer can evaluate and a part that must run in process
// (Partition).
package expr

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/ast"
	"github.com/budgetlog/logbook/parser"
)

// Option configures rule parsing.
type Option func(*options)

type options struct {
	vars map[string]any
}

// WithVariables binds free identifiers in the rule text to values. Each
// value is captured at parse time; later changes to the map or to the
// values it holds do not affect the compiled rule.
func WithVariables(vars map[string]any) Option {
	return func(o *options) {
		if o.vars == nil {
			o.vars = make(map[string]any, len(vars))
		}
		for name, v := range vars {
			o.vars[name] = v
		}
	}
}

func (o *options) resolver() parser.Resolver {
	return func(name string) (any, bool) {
		v, ok := o.vars[name]
		if !ok {
			return nil, false
		}
		return normalize(v), true
	}
}

// normalize converts a variable into one of the value kinds rules operate on.
// Unsupported types are returned as is and rejected at compile time.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case float64:
		return decimal.NewFromFloat(v)
	case []string:
		return append([]string(nil), v...)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case interface{ String() string }:
		if _, ok := v.(time.Time); ok {
			return v
		}
		if _, ok := v.(decimal.Decimal); ok {
			return v
		}
		return v.String()
	}
	return v
}

type clause struct {
	node     ast.Node
	eval     evalFunc
	hostOnly bool
}

func (c clause) test(f frame) bool {
	return c.eval(f).(bool)
}

// compileClauses splits body into its top-level conjuncts and compiles each
// one as a boolean.
func compileClauses(comp *compiler, body ast.Node) ([]clause, error) {
	var clauses []clause
	for _, n := range ast.Conjuncts(body) {
		if ast.IsTrue(n) {
			continue
		}
		comp.hostOnly = false
		t, err := comp.compileAs(n, KindBool, "condition")
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause{node: n, eval: t.eval, hostOnly: comp.hostOnly})
	}
	return clauses, nil
}

// Predicate is a compiled boolean rule over values of type T. The zero
// Predicate is satisfied by every value.
type Predicate[T any] struct {
	schema  *Schema[T]
	params  []string
	clauses []clause
}

// ParsePredicate parses and compiles a rule of the shape x => condition.
func ParsePredicate[T any](schema *Schema[T], text string, opts ...Option) (Predicate[T], error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	lambda, err := parser.Parse(text, 1, parser.WithResolver(o.resolver()))
	if err != nil {
		return Predicate[T]{}, err
	}
	comp := newCompiler(text, paramType{kind: KindObject, elem: schema.info})
	clauses, err := compileClauses(comp, lambda.Body)
	if err != nil {
		return Predicate[T]{}, err
	}
	return Predicate[T]{schema: schema, params: paramNames(lambda), clauses: clauses}, nil
}

// MustParsePredicate is like ParsePredicate but panics on error.
func MustParsePredicate[T any](schema *Schema[T], text string, opts ...Option) Predicate[T] {
	p, err := ParsePredicate(schema, text, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// True returns the predicate satisfied by every value of the schema.
func True[T any](schema *Schema[T]) Predicate[T] {
	return Predicate[T]{schema: schema, params: []string{"x"}}
}

func paramNames(l *ast.Lambda) []string {
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return names
}

// Eval reports whether v satisfies every clause.
func (p Predicate[T]) Eval(v T) bool {
	if len(p.clauses) == 0 {
		return true
	}
	f := frame{v}
	for _, c := range p.clauses {
		if !c.test(f) {
			return false
		}
	}
	return true
}

// IsTrue reports whether p has no clauses.
func (p Predicate[T]) IsTrue() bool {
	return len(p.clauses) == 0
}

// Schema returns the schema p was compiled against; nil for the zero Predicate.
func (p Predicate[T]) Schema() *Schema[T] {
	return p.schema
}

// Param returns the name of the rule parameter.
func (p Predicate[T]) Param() string {
	if len(p.params) == 0 {
		return "x"
	}
	return p.params[0]
}

// Clauses returns the top-level conjuncts of p.
func (p Predicate[T]) Clauses() []ast.Node {
	out := make([]ast.Node, len(p.clauses))
	for i, c := range p.clauses {
		out[i] = c.node
	}
	return out
}

// Body returns the condition as a single tree.
func (p Predicate[T]) Body() ast.Node {
	return ast.And(p.Clauses()...)
}

// String renders the rule in canonical form.
func (p Predicate[T]) String() string {
	return p.Param() + " => " + ast.Format(p.Body(), p.params)
}

// Combine returns the conjunction of left and right. Neither operand is
// re-parsed, so values captured by either side are preserved.
func Combine[T any](left, right Predicate[T]) Predicate[T] {
	out := Predicate[T]{schema: left.schema, params: left.params}
	if out.schema == nil {
		out.schema = right.schema
	}
	if out.params == nil {
		out.params = right.params
	}
	out.clauses = make([]clause, 0, len(left.clauses)+len(right.clauses))
	out.clauses = append(out.clauses, left.clauses...)
	out.clauses = append(out.clauses, right.clauses...)
	return out
}

// Partition splits p into a storage predicate and a host residual such
// that p(v) == storage(v) && host(v) for every v. The storage predicate is
// the longest leading run of clauses that touch no host-only member or
// method; the rest stays with the host. Either part may be true.
func Partition[T any](p Predicate[T]) (storage, host Predicate[T]) {
	split := len(p.clauses)
	for i, c := range p.clauses {
		if c.hostOnly {
			split = i
			break
		}
	}
	return SplitAt(p, split)
}

// SplitAt returns the first i clauses of p and the rest.
func SplitAt[T any](p Predicate[T], i int) (head, tail Predicate[T]) {
	i = min(max(i, 0), len(p.clauses))
	head = Predicate[T]{schema: p.schema, params: p.params, clauses: p.clauses[:i:i]}
	tail = Predicate[T]{schema: p.schema, params: p.params, clauses: p.clauses[i:]}
	return head, tail
}

// Conversion is a compiled rule of the shape x => string expression.
type Conversion[T any] struct {
	source string
	params []string
	body   ast.Node
	eval   evalFunc
}

// ParseConversion parses and compiles a rule that yields a string.
func ParseConversion[T any](schema *Schema[T], text string, opts ...Option) (Conversion[T], error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	lambda, err := parser.Parse(text, 1, parser.WithResolver(o.resolver()))
	if err != nil {
		return Conversion[T]{}, err
	}
	comp := newCompiler(text, paramType{kind: KindObject, elem: schema.info})
	t, err := comp.compileAs(lambda.Body, KindString, "result")
	if err != nil {
		return Conversion[T]{}, err
	}
	return Conversion[T]{source: text, params: paramNames(lambda), body: lambda.Body, eval: t.eval}, nil
}

// Eval applies the conversion. The zero Conversion yields "".
func (c Conversion[T]) Eval(v T) string {
	if c.eval == nil {
		return ""
	}
	return c.eval(frame{v}).(string)
}

// IsZero reports whether c was never compiled.
func (c Conversion[T]) IsZero() bool {
	return c.eval == nil
}

func (c Conversion[T]) String() string {
	if c.body == nil {
		return ""
	}
	return strings.Join(c.params, ", ") + " => " + ast.Format(c.body, c.params)
}

// BinaryPredicate is a compiled boolean rule over a pair of values.
type BinaryPredicate[T1, T2 any] struct {
	params  []string
	clauses []clause
}

// ParseBinaryPredicate parses and compiles a rule of the shape (a, b) => condition.
func ParseBinaryPredicate[T1, T2 any](left *Schema[T1], right *Schema[T2], text string, opts ...Option) (BinaryPredicate[T1, T2], error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	lambda, err := parser.Parse(text, 2, parser.WithResolver(o.resolver()))
	if err != nil {
		return BinaryPredicate[T1, T2]{}, err
	}
	comp := newCompiler(text,
		paramType{kind: KindObject, elem: left.info},
		paramType{kind: KindObject, elem: right.info},
	)
	clauses, err := compileClauses(comp, lambda.Body)
	if err != nil {
		return BinaryPredicate[T1, T2]{}, err
	}
	return BinaryPredicate[T1, T2]{params: paramNames(lambda), clauses: clauses}, nil
}

// Eval reports whether the pair satisfies the rule.
func (p BinaryPredicate[T1, T2]) Eval(a T1, b T2) bool {
	f := frame{a, b}
	for _, c := range p.clauses {
		if !c.test(f) {
			return false
		}
	}
	return true
}

func (p BinaryPredicate[T1, T2]) String() string {
	nodes := make([]ast.Node, len(p.clauses))
	for i, c := range p.clauses {
		nodes[i] = c.node
	}
	return "(" + strings.Join(p.params, ", ") + ") => " + ast.Format(ast.And(nodes...), p.params)
}
