package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/google/uuid"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/transfers"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "logbook.db")
	s, err := Open(context.Background(), path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func newOp(day int, amount, description, account, bank string, tags ...string) operation.Operation {
	return operation.Operation{
		Timestamp:   time.Date(2024, 1, day, 9, 30, 0, 0, time.UTC),
		Amount:      operation.MustParseAmount(amount),
		Description: description,
		Account:     operation.Account{ID: uuid.New(), Name: account, Bank: bank},
		Tags:        operation.NewTags(tags...),
	}
}

func mustPredicate(t *testing.T, rule string) operation.Predicate {
	t.Helper()
	p, err := operation.ParsePredicate(rule)
	assert.NoError(t, err)
	return p
}

func ids(ops []operation.Operation) []uuid.UUID {
	out := make([]uuid.UUID, len(ops))
	for i, op := range ops {
		out[i] = op.ID
	}
	return out
}

func TestOpenAppliesMigrations(t *testing.T) {
	_, path := openStore(t)
	version, dirty, err := SchemaVersion(path)
	assert.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// Reopening an up to date database is a no-op.
	s, err := Open(context.Background(), path)
	assert.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestRegisterAndGet(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	op := newOp(3, "-42.50 EUR", "LIDL Berlin", "checking", "ING", "food", "groceries")
	op.Account.Owners = []operation.Owner{{ID: uuid.New(), Name: "ann"}}
	op.SetAttribute("source", "csv")

	registered, err := s.Register(ctx, op)
	assert.NoError(t, err)
	assert.True(t, registered.IsRegistered())
	assert.Equal(t, int64(1), registered.Version)
	assert.False(t, op.IsRegistered())

	got, err := s.Get(ctx, registered.ID)
	assert.NoError(t, err)
	assert.Equal(t, registered.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(op.Timestamp))
	assert.True(t, got.Amount.Equal(op.Amount))
	assert.Equal(t, "LIDL Berlin", got.Description)
	assert.Equal(t, op.Account.ID, got.Account.ID)
	assert.Equal(t, "ING", got.Account.Bank)
	assert.Equal(t, op.Account.Owners, got.Account.Owners)
	assert.Equal(t, operation.Tags{"food", "groceries"}, got.Tags)
	assert.Equal(t, "csv", got.Attribute("source"))

	_, err = s.Register(ctx, registered)
	var conflict *ConflictError
	assert.True(t, errors.As(err, &conflict))
	assert.Equal(t, registered.ID, conflict.ID)

	_, err = s.Get(ctx, uuid.New())
	assert.IsError(t, err, ErrNotFound)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	op := newOp(1, "1 EUR", "x", "checking", "", "a|b")
	_, err := s.Register(ctx, op)
	assert.Error(t, err)

	op = newOp(1, "1 EUR", "x", "checking", "")
	op.Amount.Currency = ""
	_, err = s.Register(ctx, op)
	assert.Error(t, err)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name        string
		rule        string
		where       string
		args        []any
		hostClauses int
	}{
		{
			name:  "all storage",
			rule:  `o => o.amount < 0 && o.account.name == "checking"`,
			where:       `(CAST(amount AS REAL) <= ?) AND (account_name = ?)`,
			args:        []any{1e-9, "checking"},
			hostClauses: 1,
		},
		{
			name:        "constant on the left",
			rule:        `o => 0 > o.amount`,
			where:       `(CAST(amount AS REAL) <= ?)`,
			args:        []any{1e-9},
			hostClauses: 1,
		},
		{
			name:        "equality within tolerance",
			rule:        `o => o.amount == 0`,
			where:       `(CAST(amount AS REAL) BETWEEN ? AND ?)`,
			args:        []any{-1e-9, 1e-9},
			hostClauses: 1,
		},
		{
			name:        "arithmetic stays on the host",
			rule:        `o => o.amount == 0.1 + 0.2 && o.currency == "EUR"`,
			where:       `1`,
			hostClauses: 2,
		},
		{
			name:        "negated number comparison stays on the host",
			rule:        `o => !(o.amount < 0)`,
			where:       `1`,
			hostClauses: 1,
		},
		{
			name:        "host suffix",
			rule:        `o => o.tags.Contains("food") && o.attributes["source"] == "csv" && o.amount < 0`,
			where:       `(instr(tags, '|' || ? || '|') > 0)`,
			args:        []any{"food"},
			hostClauses: 2,
		},
		{
			name:        "unrenderable clause moves to host",
			rule:        `o => o.currency == "EUR" && o.description.ToLower().Contains("lidl") && o.amount < 0`,
			where:       `(currency = ?)`,
			args:        []any{"EUR"},
			hostClauses: 2,
		},
		{
			name:        "nothing in storage",
			rule:        `o => o.account.owners.Any(u => u.name == "ann")`,
			where:       `1`,
			hostClauses: 1,
		},
		{
			name:  "true",
			rule:  `o => true`,
			where: `1`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := operation.ParsePredicate(test.rule)
			assert.NoError(t, err)
			q, err := Plan(p)
			assert.NoError(t, err)
			assert.Equal(t, test.where, q.Where)
			assert.Equal(t, test.args, q.Args)
			assert.Equal(t, test.hostClauses, len(q.Host.Clauses()))
		})
	}
}

func TestFindMatchesInMemoryEvaluation(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	seed := []operation.Operation{
		newOp(1, "2500 EUR", "Salary", "checking", "ING", "income"),
		newOp(2, "-42.50 EUR", "LIDL Berlin", "checking", "ING", "food"),
		newOp(3, "-7.99 EUR", "Spotify", "checking", "ING", "foodie"),
		newOp(4, "-100 EUR", "Transfer to savings", "checking", "ING"),
		newOp(5, "100 EUR", "Transfer from checking", "savings", "N26"),
		newOp(6, "-60 USD", "Hotel", "travel", "Revolut", "travel", "food"),
		newOp(7, "42.5 EUR", "Refund", "checking", "ING"),
		newOp(8, "0.3 EUR", "Interest", "savings", "N26"),
		newOp(9, "12345678901234567.01 EUR", "Lottery", "savings", "N26"),
	}
	seed[5].Account.Owners = []operation.Owner{{ID: uuid.New(), Name: "ann"}}
	seed[6].SetAttribute("source", "csv")
	all, err := s.RegisterAll(ctx, seed)
	assert.NoError(t, err)
	slices.SortFunc(all, operation.Compare)

	vars := map[string]any{"acct": "checking", "limit": -50}
	rules := []string{
		`o => true`,
		`o => o.amount < 0`,
		`o => o.description.Contains("LIDL")`,
		`o => o.description.StartsWith("Trans")`,
		`o => o.description.EndsWith("ary")`,
		`o => o.description.EndsWith("")`,
		`o => o.tags.Contains("food")`,
		`o => o.account.name == "savings" || o.amount > 1000`,
		`o => o.timestamp >= Date("2024-01-03") && o.timestamp < Date("2024-01-06")`,
		`o => o.amount.Abs() >= 50 && o.currency == "EUR"`,
		`o => !(o.account.bank == "ING")`,
		`o => o.description.Length() > 8`,
		`o => (o.amount > 0 ? "in" : "out") == "in"`,
		`o => o.attributes["source"] == "csv"`,
		`o => o.account.owners.Any(u => u.name == "ann")`,
		`o => o.amount * 2 < -100`,
		`o => o.timestamp.Day == 4`,
		`o => o.description + "!" == "Salary!"`,
		`o => Abs(o.amount) == 42.5`,
		`o => o.description.ToUpper().Contains("TRANSFER") && o.amount < 0`,
		`o => o.account.name == acct && o.amount < limit`,
		`o => o.amount == 0.1 + 0.2`,
		`o => o.amount - 0.2 == 0.1`,
		`o => o.amount == 12345678901234567`,
		`o => o.amount > 12345678901234567`,
		`o => o.amount != 0.3`,
	}
	for _, rule := range rules {
		t.Run(rule, func(t *testing.T) {
			p, err := operation.ParsePredicate(rule, expr.WithVariables(vars))
			assert.NoError(t, err)

			var want []operation.Operation
			for _, op := range all {
				if p.Eval(op) {
					want = append(want, op)
				}
			}
			got, err := s.Find(ctx, p)
			assert.NoError(t, err)
			assert.Equal(t, ids(want), ids(got))
		})
	}
}

func TestUpdateVersioning(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	op, err := s.Register(ctx, newOp(1, "-10 EUR", "Bakery", "checking", ""))
	assert.NoError(t, err)

	op.Description = "Bakery Schmidt"
	op.Tags = op.Tags.Add("food")
	updated, err := s.Update(ctx, op)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Update(ctx, op)
	var conflict *ConflictError
	assert.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.Reason, "stale")

	got, err := s.Get(ctx, op.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Bakery Schmidt", got.Description)
	assert.Equal(t, operation.Tags{"food"}, got.Tags)
	assert.Equal(t, int64(2), got.Version)
}

func TestDelete(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	op, err := s.Register(ctx, newOp(1, "-10 EUR", "Bakery", "checking", ""))
	assert.NoError(t, err)
	assert.NoError(t, s.Delete(ctx, op.ID))

	_, err = s.Get(ctx, op.ID)
	assert.IsError(t, err, ErrNotFound)
	assert.IsError(t, s.Delete(ctx, op.ID), ErrNotFound)

	n, err := s.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithTxRollsBack(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.Register(ctx, newOp(1, "-10 EUR", "Bakery", "checking", "")); err != nil {
			return err
		}
		return boom
	})
	assert.IsError(t, err, boom)

	n, err := s.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSaveTransfer(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	legs, err := s.RegisterAll(ctx, []operation.Operation{
		newOp(4, "-100 EUR", "Transfer to savings", "checking", "ING"),
		newOp(5, "99 EUR", "Transfer from checking", "savings", "N26"),
	})
	assert.NoError(t, err)

	saved, err := s.SaveTransfer(ctx, transfers.Transfer{
		Source:   legs[0],
		Sink:     legs[1],
		Fee:      operation.MustParseAmount("1 EUR"),
		Comment:  "own accounts",
		Accuracy: transfers.Likely,
	})
	assert.NoError(t, err)
	assert.Equal(t, saved.ID.String(), saved.Source.Attribute(AttrTransfer))
	assert.Equal(t, "sink", saved.Sink.Attribute(AttrTransferRole))
	assert.Equal(t, int64(2), saved.Sink.Version)

	list, err := s.Transfers(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(list))
	assert.Equal(t, saved.ID, list[0].ID)
	assert.Equal(t, transfers.Likely, list[0].Accuracy)
	assert.Equal(t, "own accounts", list[0].Comment)
	assert.True(t, list[0].Fee.Equal(operation.MustParseAmount("1 EUR")))
	assert.Equal(t, legs[0].ID, list[0].Source.ID)

	linked, err := s.Find(ctx, mustPredicate(t, `o => o.attributes["transfer"] != ""`))
	assert.NoError(t, err)
	assert.Equal(t, ids(legs), ids(linked))

	t.Run("legs are frozen", func(t *testing.T) {
		sink := saved.Sink.Clone()
		sink.Amount = operation.MustParseAmount("100 EUR")
		_, err := s.Update(ctx, sink)
		var conflict *ConflictError
		assert.True(t, errors.As(err, &conflict))

		sink = saved.Sink.Clone()
		sink.Description = "Savings top-up"
		_, err = s.Update(ctx, sink)
		assert.NoError(t, err)

		err = s.Delete(ctx, saved.Source.ID)
		assert.True(t, errors.As(err, &conflict))
	})

	t.Run("legs join one transfer only", func(t *testing.T) {
		_, err := s.SaveTransfer(ctx, transfers.Transfer{Source: legs[0], Sink: legs[1]})
		var conflict *ConflictError
		assert.True(t, errors.As(err, &conflict))

		list, err := s.Transfers(ctx)
		assert.NoError(t, err)
		assert.Equal(t, 1, len(list))
	})

	_, err = s.SaveTransfer(ctx, transfers.Transfer{Source: operation.Operation{}, Sink: legs[1]})
	assert.Error(t, err)
}
