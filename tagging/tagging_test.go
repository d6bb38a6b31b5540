package tagging

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

func mustRule(t *testing.T, tag, tagFrom, when string) Rule {
	t.Helper()
	r, err := ParseRule(tag, tagFrom, when)
	assert.NoError(t, err)
	return r
}

func groceries() operation.Operation {
	return operation.Operation{
		Amount:      operation.MustParseAmount("-30 EUR"),
		Description: "LIDL Berlin",
		Tags:        operation.NewTags("manual"),
		Attributes:  map[string]string{"category": "food"},
	}
}

func TestGetTagsIsUnion(t *testing.T) {
	rules := []Rule{
		mustRule(t, "groceries", "", `o => o.description.Contains("LIDL")`),
		mustRule(t, "expense", "", `o => o.amount < 0`),
		mustRule(t, "income", "", `o => o.amount > 0`),
		mustRule(t, "", `o => o.attributes["category"]`, ""),
		mustRule(t, "", `o => o.attributes["missing"]`, ""),
		mustRule(t, "expense", "", `o => o.currency == "EUR"`),
	}

	assert.Equal(t, operation.Tags{"groceries", "expense", "food"}, GetTags(groceries(), rules))

	matches := Explain(groceries(), rules)
	indexes := make([]int, len(matches))
	for i, m := range matches {
		indexes[i] = m.Index
	}
	assert.Equal(t, []int{0, 1, 3, 5}, indexes)
	assert.Equal(t, "food", matches[2].Tag)
}

func TestRetagModes(t *testing.T) {
	rules := []Rule{mustRule(t, "groceries", "", `o => o.description.StartsWith("LIDL")`)}
	op := groceries()

	tests := []struct {
		mode Mode
		want operation.Tags
	}{
		{Append, operation.Tags{"manual", "groceries"}},
		{FromScratch, operation.Tags{"groceries"}},
		{Skip, operation.Tags{"manual"}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			got := Retag(op, rules, tt.mode)
			assert.Equal(t, tt.want, got.Tags)
			assert.Equal(t, operation.Tags{"manual"}, op.Tags)
			assert.Equal(t, tt.mode != Skip, Changed(op, got))
		})
	}
}

func TestParseRuleErrors(t *testing.T) {
	_, err := ParseRule("", "", `o => true`)
	assert.Error(t, err)

	_, err = ParseRule("a", `o => "b"`, "")
	assert.Error(t, err)

	_, err = ParseRule("a", "", `o => o.amount`)
	var compileErr *expr.CompileError
	assert.True(t, errors.As(err, &compileErr))

	_, err = ParseRule("", `o => o.amount`, "")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	for input, want := range map[string]Mode{
		"append":       Append,
		"From-Scratch": FromScratch,
		"fromscratch":  FromScratch,
		"skip":         Skip,
	} {
		got, err := ParseMode(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("merge")
	assert.Error(t, err)
}

func TestRuleString(t *testing.T) {
	r := mustRule(t, "rent", "", `x => x.description.Contains("Rent")`)
	assert.Equal(t, `rent when x => x.description.Contains("Rent")`, r.String())
	assert.Equal(t, "rent", mustRule(t, "rent", "", "").String())
}
