package expr

import (
	"fmt"
	"strings"

	"github.com/budgetlog/logbook/ast"
)

// Mapping relates member paths of a source schema to member paths of a
// target schema, for example "account.name" to "account_name". A path with
// no entry maps through its longest mapped prefix, and otherwise to the
// member of the same path on the target.
//
// Members reached through a collection lambda are keyed by the collection
// path followed by the member: "account.owners.name".
type Mapping map[string]string

func (m Mapping) resolve(path string) string {
	if to, ok := m[path]; ok {
		return to
	}
	segs := strings.Split(path, ".")
	for i := len(segs) - 1; i > 0; i-- {
		prefix := strings.Join(segs[:i], ".")
		if to, ok := m[prefix]; ok {
			return to + "." + strings.Join(segs[i:], ".")
		}
	}
	return path
}

// binding records, for one lambda parameter, which collection it iterates
// on both sides of the rewrite.
type binding struct {
	srcPath, dstPath string
	src, dst         *typeInfo
}

type retargeter struct {
	mapping  Mapping
	from, to string
	bindings map[int]binding
}

func (r *retargeter) errorf(path, format string, args ...any) *RetargetError {
	return &RetargetError{Path: path, From: r.from, To: r.to, Reason: fmt.Sprintf(format, args...)}
}

// Retarget rewrites p onto the target schema by translating every member
// access through m, then recompiles it. Values captured by p are carried
// over untouched. Only members the rule actually references need an
// equivalent on the target.
func Retarget[TFrom, TTo any](p Predicate[TFrom], target *Schema[TTo], m Mapping) (Predicate[TTo], error) {
	out := Predicate[TTo]{schema: target, params: p.params}
	if p.schema == nil {
		return out, nil
	}

	r := &retargeter{
		mapping: m,
		from:    p.schema.info.name,
		to:      target.info.name,
		bindings: map[int]binding{
			0: {src: p.schema.info, dst: target.info},
		},
	}

	for _, c := range p.clauses {
		node, err := r.rewrite(c.node)
		if err != nil {
			return Predicate[TTo]{}, err
		}
		comp := newCompiler(ast.Format(node, p.params), paramType{kind: KindObject, elem: target.info})
		comp.hostOnly = false
		t, err := comp.compileAs(node, KindBool, "condition")
		if err != nil {
			return Predicate[TTo]{}, &RetargetError{
				From: r.from, To: r.to,
				Reason: "rewritten rule does not compile",
				Err:    err,
			}
		}
		out.clauses = append(out.clauses, clause{node: node, eval: t.eval, hostOnly: comp.hostOnly})
	}
	return out, nil
}

func (r *retargeter) rewrite(n ast.Node) (ast.Node, error) {
	switch n := n.(type) {
	case *ast.Member, *ast.Param:
		if _, _, ok := ast.Path(n); ok {
			node, _, err := r.rewriteChain(n)
			return node, err
		}
		m := n.(*ast.Member)
		target, err := r.rewrite(m.Target)
		if err != nil {
			return nil, err
		}
		return &ast.Member{Pos: m.Pos, Target: target, Name: m.Name}, nil

	case *ast.Index:
		target, err := r.rewrite(n.Target)
		if err != nil {
			return nil, err
		}
		key, err := r.rewrite(n.Key)
		if err != nil {
			return nil, err
		}
		return &ast.Index{Pos: n.Pos, Target: target, Key: key}, nil

	case *ast.Call:
		return r.rewriteCall(n)

	case *ast.Binary:
		left, err := r.rewrite(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := r.rewrite(n.Right)
		if err != nil {
			return nil, err
		}
		return &ast.Binary{Pos: n.Pos, Op: n.Op, Left: left, Right: right}, nil

	case *ast.Unary:
		operand, err := r.rewrite(n.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Pos: n.Pos, Op: n.Op, Operand: operand}, nil

	case *ast.Conditional:
		cond, err := r.rewrite(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := r.rewrite(n.Then)
		if err != nil {
			return nil, err
		}
		els, err := r.rewrite(n.Else)
		if err != nil {
			return nil, err
		}
		return &ast.Conditional{Pos: n.Pos, Cond: cond, Then: then, Else: els}, nil

	case *ast.Lambda:
		body, err := r.rewrite(n.Body)
		if err != nil {
			return nil, err
		}
		return &ast.Lambda{Pos: n.Pos, Params: n.Params, Body: body}, nil
	}

	// Literals and captured values are shared with the source tree.
	return n, nil
}

// rewriteChain translates a member chain rooted at a parameter. It returns
// the rewritten chain and the binding a lambda over the chain's value would
// receive.
func (r *retargeter) rewriteChain(n ast.Node) (ast.Node, binding, error) {
	path, root, _ := ast.Path(n)
	b, ok := r.bindings[root.Index]
	if !ok {
		return nil, binding{}, r.errorf(path, "parameter %q is not bound", root.Name)
	}
	param := &ast.Param{Pos: root.Pos, Name: root.Name, Index: root.Index}
	if path == "" {
		return param, b, nil
	}

	// Split the chain into schema members and trailing value members such as
	// timestamp.Year.
	segs := strings.Split(path, ".")
	info := b.src
	var field *Field
	var members []string
	for _, seg := range segs {
		if info == nil {
			break
		}
		f, ok := info.field(seg)
		if !ok {
			break
		}
		field = f
		members = append(members, f.Name)
		info = f.elem
	}
	if field == nil {
		return nil, binding{}, r.errorf(join(b.srcPath, path), "no member %q", segs[0])
	}
	rest := segs[len(members):]

	srcFull := join(b.srcPath, strings.Join(members, "."))
	dstFull := r.mapping.resolve(srcFull)

	rel := dstFull
	if b.dstPath != "" {
		if !strings.HasPrefix(dstFull, b.dstPath+".") {
			return nil, binding{}, r.errorf(srcFull, "maps to %q outside of collection %q", dstFull, b.dstPath)
		}
		rel = strings.TrimPrefix(dstFull, b.dstPath+".")
	}

	dstField, ok := b.dst.lookup(rel)
	if !ok {
		if dstFull == srcFull {
			return nil, binding{}, r.errorf(srcFull, "no mapping and no member of that name on %s", r.to)
		}
		return nil, binding{}, r.errorf(srcFull, "mapped member %q does not exist", dstFull)
	}
	if dstField.Kind != field.Kind {
		return nil, binding{}, r.errorf(srcFull, "maps to %s member %q, want %s", dstField.Kind, dstFull, field.Kind)
	}

	node := ast.NewMember(param, strings.Split(rel, ".")...)
	node = ast.NewMember(node, rest...)
	setPos(node, n.Position())

	return node, binding{srcPath: srcFull, dstPath: dstFull, src: field.elem, dst: dstField.elem}, nil
}

func (r *retargeter) rewriteCall(n *ast.Call) (ast.Node, error) {
	var target ast.Node
	var elem binding
	var chain bool
	if n.Target != nil {
		var err error
		if _, _, ok := ast.Path(n.Target); ok {
			target, elem, err = r.rewriteChain(n.Target)
			chain = true
		} else {
			target, err = r.rewrite(n.Target)
		}
		if err != nil {
			return nil, err
		}
	}

	args := make([]ast.Node, len(n.Args))
	for i, arg := range n.Args {
		if lambda, ok := arg.(*ast.Lambda); ok {
			if !chain {
				return nil, r.errorf("", "%s lambda over a computed collection", n.Method)
			}
			for _, p := range lambda.Params {
				r.bindings[p.Index] = elem
			}
		}
		rewritten, err := r.rewrite(arg)
		if err != nil {
			return nil, err
		}
		args[i] = rewritten
	}
	return &ast.Call{Pos: n.Pos, Target: target, Method: n.Method, Args: args}, nil
}

func setPos(n ast.Node, pos ast.Position) {
	for {
		m, ok := n.(*ast.Member)
		if !ok {
			return
		}
		m.Pos = pos
		n = m.Target
	}
}

func join(prefix, path string) string {
	switch {
	case prefix == "":
		return path
	case path == "":
		return prefix
	}
	return prefix + "." + path
}
