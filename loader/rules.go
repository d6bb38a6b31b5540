package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/logbook"
	"github.com/budgetlog/logbook/tagging"
	"github.com/budgetlog/logbook/transfers"
)

// Rules is a compiled rule file.
type Rules struct {
	Tags      []tagging.Rule
	Transfers []transfers.Criterion
	// Logbook is nil when no file defines a logbook section.
	Logbook   logbook.Criterion
	Variables map[string]any
	Files     []string
}

// RuleError reports a rule that failed to compile.
type RuleError struct {
	File    string
	Section string
	Index   int
	Err     error
}

func (e *RuleError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %v", e.File, e.Section, e.Err)
	}
	return fmt.Sprintf("%s: %s[%d]: %v", e.File, e.Section, e.Index, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// RuleErrors collects every rule that failed to compile.
type RuleErrors struct {
	Errors []*RuleError
}

func (e *RuleErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d rule errors:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (e *RuleErrors) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Compile compiles every rule of f with its variables bound. All failing
// rules are reported together.
func Compile(f *File) (*Rules, error) {
	vars := variables(f.Variables)
	opts := []expr.Option{expr.WithVariables(vars)}
	rules := &Rules{Variables: vars, Files: f.Files}
	errs := &RuleErrors{}

	// Rule positions are counted per file.
	index := make(map[string]int)
	next := func(file, section string) int {
		key := file + "\x00" + section
		i := index[key]
		index[key] = i + 1
		return i
	}

	for _, tr := range f.Tags {
		i := next(tr.file, "tags")
		rule, err := tagging.ParseRule(tr.Tag, tr.TagFrom, tr.When, opts...)
		if err != nil {
			errs.Errors = append(errs.Errors, &RuleError{File: tr.file, Section: "tags", Index: i, Err: err})
			continue
		}
		rules.Tags = append(rules.Tags, rule)
	}
	for _, tr := range f.Transfers {
		i := next(tr.file, "transfers")
		c, err := transfers.ParseCriterion(tr.Accuracy, tr.Comment, tr.When, opts...)
		if err != nil {
			errs.Errors = append(errs.Errors, &RuleError{File: tr.file, Section: "transfers", Index: i, Err: err})
			continue
		}
		rules.Transfers = append(rules.Transfers, c)
	}
	if f.Logbook != nil {
		root, err := logbook.Compile(*f.Logbook, opts...)
		if err != nil {
			errs.Errors = append(errs.Errors, &RuleError{File: f.logbookFile, Section: "logbook", Index: -1, Err: err})
		} else {
			rules.Logbook = root
		}
	}

	if len(errs.Errors) > 0 {
		return nil, errs
	}
	return rules, nil
}

// LoadRules loads path with its includes and compiles it.
func LoadRules(ctx context.Context, path string) (*Rules, error) {
	f, err := New(WithFollowIncludes()).Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return Compile(f)
}

// variables adapts decoded values to what rules accept. Lists of strings
// decode as []any.
func variables(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for name, v := range in {
		out[name] = variable(v)
	}
	return out
}

func variable(v any) any {
	switch v := v.(type) {
	case []any:
		strs := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return v
			}
			strs = append(strs, s)
		}
		return strs
	case map[string]any:
		strs := make(map[string]string, len(v))
		for k, e := range v {
			s, ok := e.(string)
			if !ok {
				return v
			}
			strs[k] = s
		}
		return strs
	case uint64:
		return int64(v)
	}
	return v
}
