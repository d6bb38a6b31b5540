package expr

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the static type of a rule sub-expression.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindString
	KindNumber
	KindTime
	KindStrings // ordered list of strings
	KindMap     // string-keyed map of strings
	KindObject  // a value described by a schema
	KindList    // list of values described by a schema
)

var kindNames = map[Kind]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindString:  "string",
	KindNumber:  "number",
	KindTime:    "time",
	KindStrings: "string list",
	KindMap:     "map",
	KindObject:  "object",
	KindList:    "list",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// typeInfo is the type-erased accessor table shared by all schemas.
type typeInfo struct {
	name   string
	fields map[string]*Field
	order  []*Field
}

func (t *typeInfo) field(name string) (*Field, bool) {
	if t == nil {
		return nil, false
	}
	f, ok := t.fields[strings.ToLower(name)]
	return f, ok
}

// lookup resolves a dotted member path.
func (t *typeInfo) lookup(path string) (*Field, bool) {
	info := t
	var f *Field
	for _, seg := range strings.Split(path, ".") {
		var ok bool
		f, ok = info.field(seg)
		if !ok {
			return nil, false
		}
		info = f.elem
	}
	return f, f != nil
}

// Field describes one member a rule may reference.
type Field struct {
	Name string
	Kind Kind
	// HostOnly marks members the storage representation cannot express.
	// Clauses referencing them are evaluated in process after loading.
	HostOnly bool

	elem *typeInfo // element schema for KindObject and KindList
	get  func(any) any
}

// ElemName returns the schema name of an object or list element, or "".
func (f *Field) ElemName() string {
	if f.elem == nil {
		return ""
	}
	return f.elem.name
}

// Schema is the accessor table for values of type T. It is built once per
// type and shared by every rule compiled against it.
//
//	var schema = expr.NewSchema[Operation]("Operation").
//		Number("amount", func(o Operation) decimal.Decimal { return o.Amount.Value }).
//		String("description", func(o Operation) string { return o.Description })
type Schema[T any] struct {
	info *typeInfo
}

// NewSchema creates an empty schema.
func NewSchema[T any](name string) *Schema[T] {
	return &Schema[T]{info: &typeInfo{name: name, fields: make(map[string]*Field)}}
}

func (s *Schema[T]) add(name string, kind Kind, elem *typeInfo, get func(T) any) *Schema[T] {
	key := strings.ToLower(name)
	if _, dup := s.info.fields[key]; dup {
		panic("expr: duplicate member " + name + " in schema " + s.info.name)
	}
	f := &Field{
		Name: name,
		Kind: kind,
		elem: elem,
		get:  func(v any) any { return get(v.(T)) },
	}
	s.info.fields[key] = f
	s.info.order = append(s.info.order, f)
	return s
}

// String declares a string member.
func (s *Schema[T]) String(name string, get func(T) string) *Schema[T] {
	return s.add(name, KindString, nil, func(v T) any { return get(v) })
}

// Number declares a decimal member.
func (s *Schema[T]) Number(name string, get func(T) decimal.Decimal) *Schema[T] {
	return s.add(name, KindNumber, nil, func(v T) any { return get(v) })
}

// Bool declares a boolean member.
func (s *Schema[T]) Bool(name string, get func(T) bool) *Schema[T] {
	return s.add(name, KindBool, nil, func(v T) any { return get(v) })
}

// Time declares a timestamp member.
func (s *Schema[T]) Time(name string, get func(T) time.Time) *Schema[T] {
	return s.add(name, KindTime, nil, func(v T) any { return get(v) })
}

// Strings declares a string list member.
func (s *Schema[T]) Strings(name string, get func(T) []string) *Schema[T] {
	return s.add(name, KindStrings, nil, func(v T) any { return get(v) })
}

// Map declares a string map member.
func (s *Schema[T]) Map(name string, get func(T) map[string]string) *Schema[T] {
	return s.add(name, KindMap, nil, func(v T) any { return get(v) })
}

// HostOnly marks the named members as not representable in storage.
func (s *Schema[T]) HostOnly(names ...string) *Schema[T] {
	for _, name := range names {
		f, ok := s.info.field(name)
		if !ok {
			panic("expr: unknown member " + name + " in schema " + s.info.name)
		}
		f.HostOnly = true
	}
	return s
}

// Name returns the schema name used in error messages.
func (s *Schema[T]) Name() string {
	return s.info.name
}

// Field resolves a dotted member path such as "account.name".
func (s *Schema[T]) Field(path string) (*Field, bool) {
	return s.info.lookup(path)
}

// Fields returns the top-level members in declaration order.
func (s *Schema[T]) Fields() []*Field {
	return append([]*Field(nil), s.info.order...)
}

// Object declares a member whose value is described by another schema.
func Object[T, E any](s *Schema[T], name string, elem *Schema[E], get func(T) E) *Schema[T] {
	return s.add(name, KindObject, elem.info, func(v T) any { return get(v) })
}

// List declares a member holding a list of values described by another schema.
func List[T, E any](s *Schema[T], name string, elem *Schema[E], get func(T) []E) *Schema[T] {
	return s.add(name, KindList, elem.info, func(v T) any {
		items := get(v)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = item
		}
		return out
	})
}
