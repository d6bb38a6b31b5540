package ast

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// each node. Children of a node are skipped when f returns false.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Lambda:
		for _, p := range n.Params {
			Inspect(p, f)
		}
		Inspect(n.Body, f)
	case *Member:
		Inspect(n.Target, f)
	case *Index:
		Inspect(n.Target, f)
		Inspect(n.Key, f)
	case *Call:
		Inspect(n.Target, f)
		for _, a := range n.Args {
			Inspect(a, f)
		}
	case *Binary:
		Inspect(n.Left, f)
		Inspect(n.Right, f)
	case *Unary:
		Inspect(n.Operand, f)
	case *Conditional:
		Inspect(n.Cond, f)
		Inspect(n.Then, f)
		Inspect(n.Else, f)
	}
}

// Conjuncts flattens the top-level && chain of n into its clauses.
// A node that is not a conjunction is returned as a single clause.
func Conjuncts(n Node) []Node {
	b, ok := n.(*Binary)
	if !ok || b.Op != OpAnd {
		return []Node{n}
	}
	return append(Conjuncts(b.Left), Conjuncts(b.Right)...)
}

// And joins clauses into a left-associative && chain. It returns a true
// literal when there are no clauses.
func And(clauses ...Node) Node {
	if len(clauses) == 0 {
		return NewBool(true)
	}
	n := clauses[0]
	for _, c := range clauses[1:] {
		n = &Binary{Pos: n.Position(), Op: OpAnd, Left: n, Right: c}
	}
	return n
}

// Path returns the dotted member path of a chain of Member nodes rooted at a
// Param, together with that Param. ok is false for any other shape.
//
//	o.account.name  ->  "account.name", o
func Path(n Node) (path string, root *Param, ok bool) {
	switch n := n.(type) {
	case *Param:
		return "", n, true
	case *Member:
		prefix, root, ok := Path(n.Target)
		if !ok {
			return "", nil, false
		}
		if prefix == "" {
			return n.Name, root, true
		}
		return prefix + "." + n.Name, root, true
	}
	return "", nil, false
}
