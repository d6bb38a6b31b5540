package errors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/budgetlog/logbook/ast"
	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/loader"
	"github.com/budgetlog/logbook/parser"
)

func parseError() *parser.ParseError {
	return &parser.ParseError{
		Pos:     ast.Position{Offset: 13, Line: 1, Column: 14},
		Source:  `o => o.amount <`,
		Message: "unexpected end of rule",
	}
}

func TestTextFormatter_Format(t *testing.T) {
	tf := NewTextFormatter(WithoutColor())

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "plain error",
			err:  errors.New("something went wrong"),
			want: "something went wrong",
		},
		{
			name: "parse error",
			err:  parseError(),
			want: strings.Join([]string{
				"1:14: unexpected end of rule",
				"",
				"   o => o.amount <",
				"                ^",
			}, "\n"),
		},
		{
			name: "rule error",
			err:  &loader.RuleError{File: "rules.yaml", Section: "tags", Index: 2, Err: parseError()},
			want: strings.Join([]string{
				"rules.yaml tags[2]: 1:14: unexpected end of rule",
				"",
				"   o => o.amount <",
				"                ^",
			}, "\n"),
		},
		{
			name: "rule error without position",
			err:  &loader.RuleError{File: "rules.yaml", Section: "logbook", Index: -1, Err: errors.New("criterion all: no name")},
			want: "rules.yaml logbook: criterion all: no name",
		},
		{
			name: "compile error on a later line",
			err: &expr.CompileError{
				Pos:     ast.Position{Line: 2, Column: 6},
				Source:  "o =>\n  o.amount",
				Message: "rule must be boolean",
			},
			want: strings.Join([]string{
				"2:6: rule must be boolean",
				"",
				"   o =>",
				"     o.amount",
				"        ^",
			}, "\n"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tf.Format(tt.err))
		})
	}
}

func TestTextFormatter_FormatAll(t *testing.T) {
	tf := NewTextFormatter(WithoutColor())

	assert.Equal(t, "", tf.FormatAll(nil))

	errs := &loader.RuleErrors{Errors: []*loader.RuleError{
		{File: "a.yaml", Section: "tags", Index: 0, Err: errors.New("first")},
		{File: "b.yaml", Section: "transfers", Index: 1, Err: errors.New("second")},
	}}
	want := "a.yaml tags[0]: first\n\nb.yaml transfers[1]: second"
	assert.Equal(t, want, tf.Format(errs))
	assert.Equal(t, want, tf.FormatAll(Flatten(errs)))
}

func TestJSONFormatter(t *testing.T) {
	jf := NewJSONFormatter()

	errs := &loader.RuleErrors{Errors: []*loader.RuleError{
		{File: "rules.yaml", Section: "tags", Index: 0, Err: parseError()},
		{File: "rules.yaml", Section: "logbook", Index: -1, Err: errors.New("bad logbook")},
	}}

	var got []ErrorJSON
	assert.NoError(t, json.Unmarshal([]byte(jf.FormatAll([]error{errs})), &got))
	assert.Equal(t, 2, len(got))

	zero := 0
	assert.Equal(t, ErrorJSON{
		Type:     "*parser.ParseError",
		Message:  "1:14: unexpected end of rule",
		File:     "rules.yaml",
		Section:  "tags",
		Index:    &zero,
		Rule:     `o => o.amount <`,
		Position: &PositionJSON{Line: 1, Column: 14},
	}, got[0])
	assert.Equal(t, ErrorJSON{
		Type:    "*errors.errorString",
		Message: "bad logbook",
		File:    "rules.yaml",
		Section: "logbook",
	}, got[1])

	single := jf.Format(errors.New("plain"))
	assert.Equal(t, `{"type":"*errors.errorString","message":"plain"}`, single)
}
