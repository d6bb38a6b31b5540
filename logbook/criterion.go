package logbook

import (
	"fmt"
	"strings"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

// Criterion is a node of a report definition. The concrete types are
// TagBased, PredicateBased, SubstitutionBased and Universal.
type Criterion interface {
	// Describe returns the node name used as its path segment.
	Describe() string
	// Nested returns the child criteria refining this node's match set.
	Nested() []Criterion
	criterion()
}

// TagMode selects how TagBased compares tags.
type TagMode int

const (
	Including TagMode = iota // every listed tag present
	Excluding                // no listed tag present
	OneOf                    // at least one listed tag present
)

func (m TagMode) String() string {
	switch m {
	case Including:
		return "Including"
	case Excluding:
		return "Excluding"
	case OneOf:
		return "OneOf"
	}
	return fmt.Sprintf("TagMode(%d)", int(m))
}

// ParseTagMode parses Including, Excluding or OneOf, ignoring case.
func ParseTagMode(s string) (TagMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "including":
		return Including, nil
	case "excluding":
		return Excluding, nil
	case "oneof", "one_of", "one-of":
		return OneOf, nil
	}
	return 0, fmt.Errorf("invalid tag mode %q, expected Including, Excluding or OneOf", s)
}

// TagBased selects operations by tag membership.
type TagBased struct {
	Name     string
	Mode     TagMode
	Tags     []string
	Children []Criterion
}

// PredicateBased selects operations satisfying a predicate.
type PredicateBased struct {
	Name      string
	Predicate operation.Predicate
	Children  []Criterion
}

// SubstitutionBased groups its parent's operations by the string a
// conversion produces, one synthetic child per distinct value. It is
// always a leaf of the definition.
type SubstitutionBased struct {
	Name       string
	Conversion operation.Conversion
}

// Universal passes its parent's operations through unchanged.
type Universal struct {
	Name     string
	Children []Criterion
}

func (c TagBased) Describe() string          { return c.Name }
func (c PredicateBased) Describe() string    { return c.Name }
func (c SubstitutionBased) Describe() string { return c.Name }
func (c Universal) Describe() string         { return c.Name }

func (c TagBased) Nested() []Criterion          { return c.Children }
func (c PredicateBased) Nested() []Criterion    { return c.Children }
func (c SubstitutionBased) Nested() []Criterion { return nil }
func (c Universal) Nested() []Criterion         { return c.Children }

func (TagBased) criterion()          {}
func (PredicateBased) criterion()    {}
func (SubstitutionBased) criterion() {}
func (Universal) criterion()         {}

// Matches reports whether op passes the tag filter.
func (c TagBased) Matches(op operation.Operation) bool {
	switch c.Mode {
	case Excluding:
		return !op.Tags.HasAny(c.Tags...)
	case OneOf:
		return op.Tags.HasAny(c.Tags...)
	}
	return op.Tags.HasAll(c.Tags...)
}

// Definition is the declarative form of a criterion tree, as written in a
// rules file. At most one selector may be set; a definition without one
// is Universal. Tag filters are written either as Mode plus Tags, with
// Mode one of Including, Excluding or OneOf, or with the shorthand keys.
type Definition struct {
	Name      string       `mapstructure:"name"`
	Mode      string       `mapstructure:"mode"`
	Tags      []string     `mapstructure:"tags"`
	Including []string     `mapstructure:"including"`
	Excluding []string     `mapstructure:"excluding"`
	OneOf     []string     `mapstructure:"one_of"`
	Where     string       `mapstructure:"where"`
	GroupBy   string       `mapstructure:"group_by"`
	Children  []Definition `mapstructure:"children"`
}

// Compile builds the criterion tree described by def. Rule text is
// compiled with opts.
func Compile(def Definition, opts ...expr.Option) (Criterion, error) {
	return compile(def, nil, opts)
}

func compile(def Definition, parent []string, opts []expr.Option) (Criterion, error) {
	path := append(append([]string(nil), parent...), def.Name)
	fail := func(format string, args ...any) error {
		return &CriterionError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(def.Name) == "" {
		return nil, fail("criterion needs a name")
	}

	var selectors []string
	for name, set := range map[string]bool{
		"tags":      def.Tags != nil || def.Mode != "",
		"including": def.Including != nil,
		"excluding": def.Excluding != nil,
		"one_of":    def.OneOf != nil,
		"where":     def.Where != "",
		"group_by":  def.GroupBy != "",
	} {
		if set {
			selectors = append(selectors, name)
		}
	}
	if len(selectors) > 1 {
		return nil, fail("criterion has more than one selector")
	}

	if def.GroupBy != "" {
		if len(def.Children) > 0 {
			return nil, fail("group_by criterion cannot have children")
		}
		conv, err := operation.ParseConversion(def.GroupBy, opts...)
		if err != nil {
			return nil, &CriterionError{Path: path, Reason: "invalid group_by", Err: err}
		}
		return SubstitutionBased{Name: def.Name, Conversion: conv}, nil
	}

	children := make([]Criterion, 0, len(def.Children))
	for _, child := range def.Children {
		c, err := compile(child, path, opts)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	switch {
	case def.Tags != nil || def.Mode != "":
		if def.Tags == nil {
			return nil, fail("mode %s needs tags", def.Mode)
		}
		mode := Including
		if def.Mode != "" {
			m, err := ParseTagMode(def.Mode)
			if err != nil {
				return nil, &CriterionError{Path: path, Reason: "invalid mode", Err: err}
			}
			mode = m
		}
		return TagBased{Name: def.Name, Mode: mode, Tags: def.Tags, Children: children}, nil
	case def.Including != nil:
		return TagBased{Name: def.Name, Mode: Including, Tags: def.Including, Children: children}, nil
	case def.Excluding != nil:
		return TagBased{Name: def.Name, Mode: Excluding, Tags: def.Excluding, Children: children}, nil
	case def.OneOf != nil:
		return TagBased{Name: def.Name, Mode: OneOf, Tags: def.OneOf, Children: children}, nil
	case def.Where != "":
		pred, err := operation.ParsePredicate(def.Where, opts...)
		if err != nil {
			return nil, &CriterionError{Path: path, Reason: "invalid where", Err: err}
		}
		return PredicateBased{Name: def.Name, Predicate: pred, Children: children}, nil
	}
	return Universal{Name: def.Name, Children: children}, nil
}
