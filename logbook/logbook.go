// Package logbook aggregates operations into a hierarchical report.
//
// A report is defined by a tree of criteria and computed once per time
// range. Every node of the resulting tree mirrors a criterion and carries
// the sum and count of the operations it matched; children refine their
// parent's match set rather than the whole input. Only leaves list their
// operations, so sums are never counted twice when walking the tree.
package logbook

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"

	"github.com/budgetlog/logbook/operation"
)

// Node is one entry of a logbook tree.
type Node struct {
	Name  string
	Sum   decimal.Decimal
	Count int
	From  time.Time
	Till  time.Time
	// Operations is only populated on nodes without children.
	Operations []operation.Operation
	Children   []*Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Child returns the direct child with the given name.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Find walks path below n. An empty path returns n.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, name := range path {
		if cur = cur.Child(name); cur == nil {
			return nil
		}
	}
	return cur
}

// Walk calls fn for n and every descendant in depth-first order with the
// node's path below n. Returning false skips the node's children.
func (n *Node) Walk(fn func(path []string, node *Node) bool) {
	n.walk(nil, fn)
}

func (n *Node) walk(path []string, fn func([]string, *Node) bool) {
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		c.walk(append(slices.Clone(path), c.Name), fn)
	}
}

// Logbook holds one tree per range, in range order.
type Logbook struct {
	Currency string
	Ranges   []Range
	Trees    []*Node
}

// Tree returns the tree computed for the named range.
func (l *Logbook) Tree(rangeName string) (*Node, bool) {
	for i, r := range l.Ranges {
		if r.Name == rangeName {
			return l.Trees[i], true
		}
	}
	return nil, false
}

// Sums returns the sum of the node at path for every range. Ranges where
// the node does not exist contribute zero.
func (l *Logbook) Sums(path ...string) []decimal.Decimal {
	sums := make([]decimal.Decimal, len(l.Trees))
	for i, tree := range l.Trees {
		if n := tree.Find(path...); n != nil {
			sums[i] = n.Sum
		}
	}
	return sums
}

// Changes returns the relative change of the node at path across ranges.
func (l *Logbook) Changes(path ...string) []decimal.NullDecimal {
	return RelativeChanges(l.Sums(path...))
}

// Option configures Aggregate.
type Option func(*options)

type options struct {
	currency string
}

// WithCurrency sets the reporting currency. Without it the currency of the
// first operation is used.
func WithCurrency(code string) Option {
	return func(o *options) {
		o.currency = code
	}
}

// Aggregate evaluates root against ops for every range. All operations
// falling in a range must be in the reporting currency; the aggregator
// does not convert.
func Aggregate(ctx context.Context, root Criterion, ops []operation.Operation, ranges []Range, opts ...Option) (*Logbook, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.currency == "" && len(ops) > 0 {
		o.currency = ops[0].Amount.Currency
	}

	sorted := slices.Clone(ops)
	slices.SortStableFunc(sorted, func(a, b operation.Operation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	book := &Logbook{Currency: o.currency, Ranges: slices.Clone(ranges)}
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var inRange []operation.Operation
		for _, op := range sorted {
			if !r.Contains(op.Timestamp) {
				continue
			}
			if op.Amount.Currency != o.currency {
				return nil, &CurrencyError{Want: o.currency, Operation: op}
			}
			inRange = append(inRange, op)
		}

		book.Trees = append(book.Trees, evaluate(root, inRange, r))
	}
	return book, nil
}

// AggregateStream drains seq, checking ctx before each operation, and
// aggregates the result.
func AggregateStream(ctx context.Context, root Criterion, seq operation.Seq, ranges []Range, opts ...Option) (*Logbook, error) {
	ops, err := operation.Collect(ctx, seq)
	if err != nil {
		return nil, err
	}
	return Aggregate(ctx, root, ops, ranges, opts...)
}

func newNode(name string, ops []operation.Operation, r Range) *Node {
	sum := decimal.Zero
	for _, op := range ops {
		sum = sum.Add(op.Amount.Value)
	}
	return &Node{Name: name, Sum: sum, Count: len(ops), From: r.From, Till: r.Till}
}

// evaluate builds the node for c over the operations its parent matched.
func evaluate(c Criterion, parent []operation.Operation, r Range) *Node {
	matched := selectOperations(c, parent)
	n := newNode(c.Describe(), matched, r)

	if sub, ok := c.(SubstitutionBased); ok {
		groups := getGroupMap()
		defer putGroupMap(groups)
		for _, op := range matched {
			value := sub.Conversion.Eval(op)
			groups[value] = append(groups[value], op)
		}

		values := maps.Keys(groups)
		slices.Sort(values)
		for _, value := range values {
			child := newNode(value, groups[value], r)
			child.Operations = groups[value]
			n.Children = append(n.Children, child)
		}
		if n.IsLeaf() {
			n.Operations = matched
		}
		return n
	}

	nested := c.Nested()
	if len(nested) == 0 {
		n.Operations = matched
		return n
	}
	for _, child := range nested {
		n.Children = append(n.Children, evaluate(child, matched, r))
	}
	return n
}

func selectOperations(c Criterion, ops []operation.Operation) []operation.Operation {
	var keep func(operation.Operation) bool
	switch c := c.(type) {
	case TagBased:
		keep = c.Matches
	case PredicateBased:
		keep = c.Predicate.Eval
	default:
		return ops
	}

	var out []operation.Operation
	for _, op := range ops {
		if keep(op) {
			out = append(out, op)
		}
	}
	return out
}
