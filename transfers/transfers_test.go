package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/google/uuid"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

func op(amount, account string) operation.Operation {
	return operation.Operation{
		ID:          uuid.New(),
		Timestamp:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:      operation.MustParseAmount(amount),
		Description: "transfer",
		Account:     operation.Account{Name: account},
	}
}

func mustCriterion(t *testing.T, accuracy, text string, vars map[string]any) Criterion {
	t.Helper()
	c, err := ParseCriterion(accuracy, accuracy+" rule", text, expr.WithVariables(vars))
	assert.NoError(t, err)
	return c
}

func TestTierPrecedence(t *testing.T) {
	source := op("-100 EUR", "checking")
	sink := op("100 EUR", "savings")
	otherSink := op("100 EUR", "broker")
	otherSource := op("-100 EUR", "wallet")

	vars := map[string]any{"src": source.ID.String(), "dst": sink.ID.String()}
	d := NewDetector(
		mustCriterion(t, "Exact", `(a, b) => a.id == src && b.id == dst`, vars),
		mustCriterion(t, "likely", `(a, b) => a.id == src`, vars),
	)

	tr, err := d.Detect(source, sink)
	assert.NoError(t, err)
	assert.Equal(t, Exact, tr.Accuracy)
	assert.Equal(t, "Exact rule", tr.Comment)

	tr, err = d.Detect(sink, source)
	assert.NoError(t, err)
	assert.Equal(t, Exact, tr.Accuracy)
	assert.Equal(t, source.ID, tr.Source.ID)
	assert.Equal(t, sink.ID, tr.Sink.ID)

	tr, err = d.Detect(source, otherSink)
	assert.NoError(t, err)
	assert.Equal(t, Likely, tr.Accuracy)

	_, err = d.Detect(otherSource, sink)
	assert.IsError(t, err, ErrNoCriterionMatched)
}

func TestInvariantRejection(t *testing.T) {
	d := NewDetector(mustCriterion(t, "Exact", `(a, b) => true`, nil))

	w1 := op("-10 EUR", "a")
	w2 := op("-10 EUR", "b")
	i1 := op("10 EUR", "a")
	i2 := op("10 EUR", "b")
	usd := op("10 USD", "b")
	zero := op("0 EUR", "b")

	tests := []struct {
		name string
		a, b operation.Operation
		want error
	}{
		{"two withdrawals", w1, w2, ErrSameSign},
		{"two incomes", i1, i2, ErrSameSign},
		{"zero amount", w1, zero, ErrSameSign},
		{"cross currency", w1, usd, ErrCurrencyMismatch},
		{"self pairing", w1, w1, ErrSelfPairing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Detect(tt.a, tt.b)
			assert.IsError(t, err, tt.want)

			var invErr *InvariantError
			assert.True(t, errors.As(err, &invErr))
		})
	}
}

func TestFee(t *testing.T) {
	d := NewDetector(mustCriterion(t, "Likely", `(a, b) => a.account.name != b.account.name`, nil))
	tr, err := d.Detect(op("-101.50 EUR", "a"), op("100 EUR", "b"))
	assert.NoError(t, err)
	assert.True(t, operation.MustParseAmount("1.50 EUR").Equal(tr.Fee))
}

func TestAccumulator(t *testing.T) {
	d := NewDetector(mustCriterion(t, "Exact",
		`(a, b) => a.amount == -b.amount && a.account.name != b.account.name`, nil))
	acc := d.NewAccumulator()

	w50 := op("-50 EUR", "checking")
	w20 := op("-20 EUR", "checking")
	d20 := op("20 EUR", "savings")
	d50 := op("50 EUR", "savings")
	lone := op("-7 EUR", "checking")

	_, ok := acc.Push(w50)
	assert.False(t, ok)
	_, ok = acc.Push(w20)
	assert.False(t, ok)

	tr, ok := acc.Push(d20)
	assert.True(t, ok)
	assert.Equal(t, w20.ID, tr.Source.ID)
	assert.Equal(t, 1, len(acc.Pending()))

	tr, ok = acc.Push(d50)
	assert.True(t, ok)
	assert.Equal(t, w50.ID, tr.Source.ID)

	_, ok = acc.Push(lone)
	assert.False(t, ok)
	assert.Equal(t, []operation.Operation{lone}, acc.Pending())
	assert.Equal(t, []operation.Operation{lone}, acc.Flush())
	assert.Equal(t, 0, len(acc.Pending()))
}

func TestAccumulatorStopsAtFirstMatch(t *testing.T) {
	d := NewDetector(mustCriterion(t, "Likely", `(a, b) => true`, nil))
	acc := d.NewAccumulator()

	first := op("-10 EUR", "a")
	second := op("-10 EUR", "b")
	acc.Push(first)
	acc.Push(second)

	tr, ok := acc.Push(op("10 EUR", "c"))
	assert.True(t, ok)
	assert.Equal(t, first.ID, tr.Source.ID)
	assert.Equal(t, []operation.Operation{second}, acc.Pending())
}

func TestMatch(t *testing.T) {
	d := NewDetector(mustCriterion(t, "Exact", `(a, b) => a.amount == -b.amount`, nil))
	ops := []operation.Operation{
		op("-5 EUR", "a"),
		op("-9 EUR", "a"),
		op("5 EUR", "b"),
		op("3 EUR", "b"),
	}

	var found []Transfer
	pending, err := d.Match(context.Background(), operation.FromSlice(ops), func(t Transfer) error {
		found = append(found, t)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(found))
	assert.Equal(t, ops[0].ID, found[0].Source.ID)
	assert.Equal(t, 2, len(pending))

	boom := errors.New("boom")
	_, err = d.Match(context.Background(), operation.FromSlice(ops), func(Transfer) error { return boom })
	assert.IsError(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Match(ctx, operation.FromSlice(ops), func(Transfer) error { return nil })
	assert.IsError(t, err, context.Canceled)
}

func TestParseAccuracy(t *testing.T) {
	for input, want := range map[string]Accuracy{"Exact": Exact, "EXACT": Exact, " likely ": Likely} {
		got, err := ParseAccuracy(input)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAccuracy("maybe")
	assert.Error(t, err)
}
