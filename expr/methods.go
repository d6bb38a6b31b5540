package expr

import (
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/ast"
)

// hostOnlyMethods lists methods the storage layer has no translation for.
var hostOnlyMethods = map[string]bool{
	"matches": true,
	"format":  true,
	"daysto":  true,
	"any":     true,
	"all":     true,
	"count":   true,
}

func (c *compiler) compileCall(n *ast.Call) (typed, error) {
	name := strings.ToLower(n.Method)
	if n.Target == nil {
		return c.compileGlobal(n, name)
	}

	target, err := c.compile(n.Target)
	if err != nil {
		return typed{}, err
	}
	if hostOnlyMethods[name] {
		c.hostOnly = true
	}

	switch target.kind {
	case KindString:
		return c.compileStringMethod(n, name, target)
	case KindNumber:
		if name == "abs" {
			if _, err := c.args(n); err != nil {
				return typed{}, err
			}
			return typed{kind: KindNumber, eval: func(f frame) any {
				return target.eval(f).(decimal.Decimal).Abs()
			}}, nil
		}
	case KindTime:
		return c.compileTimeMethod(n, name, target)
	case KindStrings:
		return c.compileStringsMethod(n, name, target)
	case KindList:
		return c.compileListMethod(n, name, target)
	case KindMap:
		if name == "containskey" {
			args, err := c.args(n, KindString)
			if err != nil {
				return typed{}, err
			}
			return typed{kind: KindBool, eval: func(f frame) any {
				m, _ := target.eval(f).(map[string]string)
				_, ok := m[args[0].eval(f).(string)]
				return ok
			}}, nil
		}
	}
	return typed{}, c.errorf(n, "%s has no method %s", target.kind, n.Method)
}

// args compiles the call arguments and checks them against want.
func (c *compiler) args(n *ast.Call, want ...Kind) ([]typed, error) {
	if len(n.Args) != len(want) {
		return nil, c.errorf(n, "%s takes %d argument(s), got %d", n.Method, len(want), len(n.Args))
	}
	out := make([]typed, len(want))
	for i, arg := range n.Args {
		t, err := c.compileAs(arg, want[i], "argument of "+n.Method)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (c *compiler) compileGlobal(n *ast.Call, name string) (typed, error) {
	switch name {
	case "date":
		args, err := c.args(n, KindString)
		if err != nil {
			return typed{}, err
		}
		if !args[0].isConst {
			return typed{}, c.errorf(n, "Date needs a constant argument")
		}
		t, err := ParseDate(args[0].constant.(string))
		if err != nil {
			return typed{}, c.errorf(n.Args[0], "%s", err)
		}
		return constant(KindTime, t), nil
	case "abs":
		args, err := c.args(n, KindNumber)
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindNumber, eval: func(f frame) any {
			return args[0].eval(f).(decimal.Decimal).Abs()
		}}, nil
	}
	return typed{}, c.errorf(n, "unknown function %s", n.Method)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts the date forms rules may write: RFC 3339, a local
// timestamp without zone, or a bare date. Zone-less values are UTC.
func ParseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func (c *compiler) compileStringMethod(n *ast.Call, name string, target typed) (typed, error) {
	str := func(f frame) string { return target.eval(f).(string) }

	predicate := func(test func(s, arg string) bool) (typed, error) {
		args, err := c.args(n, KindString)
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindBool, eval: func(f frame) any {
			return test(str(f), args[0].eval(f).(string))
		}}, nil
	}
	transform := func(fn func(string) string) (typed, error) {
		if _, err := c.args(n); err != nil {
			return typed{}, err
		}
		return typed{kind: KindString, eval: func(f frame) any { return fn(str(f)) }}, nil
	}

	switch name {
	case "contains":
		return predicate(strings.Contains)
	case "startswith":
		return predicate(strings.HasPrefix)
	case "endswith":
		return predicate(strings.HasSuffix)
	case "tolower":
		return transform(strings.ToLower)
	case "toupper":
		return transform(strings.ToUpper)
	case "trim":
		return transform(strings.TrimSpace)
	case "length":
		if _, err := c.args(n); err != nil {
			return typed{}, err
		}
		return typed{kind: KindNumber, eval: func(f frame) any {
			return decimal.NewFromInt(int64(utf8.RuneCountInString(str(f))))
		}}, nil
	case "matches":
		args, err := c.args(n, KindString)
		if err != nil {
			return typed{}, err
		}
		if !args[0].isConst {
			return typed{}, c.errorf(n, "Matches needs a constant pattern")
		}
		re, err := regexp.Compile(args[0].constant.(string))
		if err != nil {
			return typed{}, c.errorf(n.Args[0], "invalid pattern: %s", err)
		}
		return typed{kind: KindBool, eval: func(f frame) any { return re.MatchString(str(f)) }}, nil
	}
	return typed{}, c.errorf(n, "string has no method %s", n.Method)
}

func (c *compiler) compileTimeMethod(n *ast.Call, name string, target typed) (typed, error) {
	switch name {
	case "format":
		args, err := c.args(n, KindString)
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindString, eval: func(f frame) any {
			return target.eval(f).(time.Time).Format(args[0].eval(f).(string))
		}}, nil
	case "daysto":
		args, err := c.args(n, KindTime)
		if err != nil {
			return typed{}, err
		}
		day := decimal.NewFromInt(int64(24 * time.Hour))
		return typed{kind: KindNumber, eval: func(f frame) any {
			from := target.eval(f).(time.Time)
			to := args[0].eval(f).(time.Time)
			return decimal.NewFromInt(int64(to.Sub(from))).Div(day)
		}}, nil
	}
	return typed{}, c.errorf(n, "time has no method %s", n.Method)
}

func (c *compiler) compileStringsMethod(n *ast.Call, name string, target typed) (typed, error) {
	list := func(f frame) []any {
		items := target.eval(f).([]string)
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out
	}

	switch name {
	case "contains":
		args, err := c.args(n, KindString)
		if err != nil {
			return typed{}, err
		}
		return typed{kind: KindBool, eval: func(f frame) any {
			return slices.Contains(target.eval(f).([]string), args[0].eval(f).(string))
		}}, nil
	case "any", "all", "count":
		return c.compileQuantifier(n, name, list, paramType{kind: KindString})
	}
	return typed{}, c.errorf(n, "string list has no method %s", n.Method)
}

func (c *compiler) compileListMethod(n *ast.Call, name string, target typed) (typed, error) {
	switch name {
	case "any", "all", "count":
		list := func(f frame) []any { return target.eval(f).([]any) }
		return c.compileQuantifier(n, name, list, paramType{kind: KindObject, elem: target.elem})
	}
	return typed{}, c.errorf(n, "list of %s has no method %s", target.elem.name, n.Method)
}

// compileQuantifier handles Any, All and Count over a collection. Count
// without an argument returns the collection length.
func (c *compiler) compileQuantifier(n *ast.Call, name string, list func(frame) []any, elem paramType) (typed, error) {
	if name == "count" && len(n.Args) == 0 {
		return typed{kind: KindNumber, eval: func(f frame) any {
			return decimal.NewFromInt(int64(len(list(f))))
		}}, nil
	}
	if len(n.Args) != 1 {
		return typed{}, c.errorf(n, "%s takes 1 argument(s), got %d", n.Method, len(n.Args))
	}
	lambda, ok := n.Args[0].(*ast.Lambda)
	if !ok || len(lambda.Params) != 1 {
		return typed{}, c.errorf(n, "%s needs a lambda of the shape x => condition", n.Method)
	}

	idx := lambda.Params[0].Index
	restore := c.bind(idx, elem)
	body, err := c.compileAs(lambda.Body, KindBool, "body of "+n.Method)
	restore()
	if err != nil {
		return typed{}, err
	}

	test := func(f frame, item any) bool {
		inner := make(frame, max(len(f), idx+1))
		copy(inner, f)
		inner[idx] = item
		return body.eval(inner).(bool)
	}

	switch name {
	case "any":
		return typed{kind: KindBool, eval: func(f frame) any {
			for _, item := range list(f) {
				if test(f, item) {
					return true
				}
			}
			return false
		}}, nil
	case "all":
		return typed{kind: KindBool, eval: func(f frame) any {
			for _, item := range list(f) {
				if !test(f, item) {
					return false
				}
			}
			return true
		}}, nil
	}
	return typed{kind: KindNumber, eval: func(f frame) any {
		count := 0
		for _, item := range list(f) {
			if test(f, item) {
				count++
			}
		}
		return decimal.NewFromInt(int64(count))
	}}, nil
}
