// Package tagging assigns tags to operations by rule.
//
// Every rule whose condition holds contributes its tag; the result is the
// union over all rules, in declaration order.
package tagging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

// Rule tags operations satisfying When with either a fixed Tag or the
// output of TagFrom. A conversion producing "" adds no tag.
type Rule struct {
	Tag     string
	TagFrom operation.Conversion
	When    operation.Predicate
}

// ParseRule compiles a rule. Exactly one of tag and tagFrom must be set;
// an empty when matches every operation.
func ParseRule(tag, tagFrom, when string, opts ...expr.Option) (Rule, error) {
	tag = strings.TrimSpace(tag)
	switch {
	case tag == "" && tagFrom == "":
		return Rule{}, errors.New("rule needs a tag or a tag conversion")
	case tag != "" && tagFrom != "":
		return Rule{}, errors.New("rule cannot have both a tag and a tag conversion")
	}

	r := Rule{Tag: tag, When: expr.True(operation.Schema)}
	if tagFrom != "" {
		conv, err := operation.ParseConversion(tagFrom, opts...)
		if err != nil {
			return Rule{}, err
		}
		r.TagFrom = conv
	}
	if strings.TrimSpace(when) != "" {
		pred, err := operation.ParsePredicate(when, opts...)
		if err != nil {
			return Rule{}, err
		}
		r.When = pred
	}
	return r, nil
}

// Apply returns the tag r assigns to op, if any.
func (r Rule) Apply(op operation.Operation) (string, bool) {
	if !r.When.Eval(op) {
		return "", false
	}
	tag := r.Tag
	if !r.TagFrom.IsZero() {
		tag = strings.TrimSpace(r.TagFrom.Eval(op))
	}
	return tag, tag != ""
}

func (r Rule) String() string {
	tag := r.Tag
	if !r.TagFrom.IsZero() {
		tag = r.TagFrom.String()
	}
	if r.When.IsTrue() {
		return tag
	}
	return fmt.Sprintf("%s when %s", tag, r.When)
}

// GetTags returns the union of the tags of every rule matching op.
func GetTags(op operation.Operation, rules []Rule) operation.Tags {
	var tags operation.Tags
	for _, r := range rules {
		if tag, ok := r.Apply(op); ok {
			tags = tags.Add(tag)
		}
	}
	return tags
}

// Match is a rule that applied to an operation.
type Match struct {
	Index int // position of the rule in declaration order
	Rule  Rule
	Tag   string
}

// Explain lists the rules matching op in declaration order.
func Explain(op operation.Operation, rules []Rule) []Match {
	var matches []Match
	for i, r := range rules {
		if tag, ok := r.Apply(op); ok {
			matches = append(matches, Match{Index: i, Rule: r, Tag: tag})
		}
	}
	return matches
}

// Mode decides how rule output combines with the tags an operation has.
type Mode int

const (
	Append      Mode = iota // keep existing tags, add matches
	FromScratch             // replace existing tags with matches
	Skip                    // leave tags unchanged
)

var modeNames = map[Mode]string{
	Append:      "append",
	FromScratch: "from-scratch",
	Skip:        "skip",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses append, from-scratch or skip, ignoring case.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if s == name || s == strings.ReplaceAll(name, "-", "") {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid tagging mode %q, expected append, from-scratch or skip", s)
}

// Retag returns a copy of op with its tags recomputed under mode.
func Retag(op operation.Operation, rules []Rule, mode Mode) operation.Operation {
	out := op.Clone()
	switch mode {
	case Append:
		out.Tags = out.Tags.Union(GetTags(op, rules))
	case FromScratch:
		out.Tags = GetTags(op, rules)
	}
	return out
}

// Changed reports whether retagging altered the tags.
func Changed(before, after operation.Operation) bool {
	return !before.Tags.Equal(after.Tags)
}
