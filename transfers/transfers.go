// Package transfers pairs withdrawals with deposits that represent one
// movement of money between accounts.
//
// A Detector checks a single candidate pair against an ordered list of
// criteria. An Accumulator runs a Detector over a stream, buffering
// operations until a partner arrives.
package transfers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/operation"
)

// Accuracy is the confidence tier of a criterion.
type Accuracy int

const (
	Exact Accuracy = iota
	Likely
)

func (a Accuracy) String() string {
	switch a {
	case Exact:
		return "Exact"
	case Likely:
		return "Likely"
	}
	return fmt.Sprintf("Accuracy(%d)", int(a))
}

// ParseAccuracy parses Exact or Likely, ignoring case.
func ParseAccuracy(s string) (Accuracy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return Exact, nil
	case "likely":
		return Likely, nil
	}
	return 0, fmt.Errorf("invalid accuracy %q, expected Exact or Likely", s)
}

func (a Accuracy) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Accuracy) UnmarshalText(text []byte) error {
	v, err := ParseAccuracy(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Criterion is one matching rule. The predicate receives the withdrawal
// first and the deposit second.
type Criterion struct {
	Accuracy  Accuracy
	Comment   string
	Predicate operation.PairPredicate
}

// ParseCriterion compiles a criterion from its textual parts.
func ParseCriterion(accuracy, comment, text string, opts ...expr.Option) (Criterion, error) {
	acc, err := ParseAccuracy(accuracy)
	if err != nil {
		return Criterion{}, err
	}
	pred, err := operation.ParsePairPredicate(text, opts...)
	if err != nil {
		return Criterion{}, err
	}
	return Criterion{Accuracy: acc, Comment: comment, Predicate: pred}, nil
}

// Transfer is a confirmed pairing of a withdrawal and a deposit.
type Transfer struct {
	Source   operation.Operation // negative amount
	Sink     operation.Operation // positive amount
	Fee      operation.Amount    // |source| - |sink|
	Comment  string
	Accuracy Accuracy
}

func (t Transfer) String() string {
	return fmt.Sprintf("%s -> %s (%s, fee %s)", t.Source, t.Sink, t.Accuracy, t.Fee)
}

// Detector matches candidate pairs against criteria in order.
type Detector struct {
	criteria []Criterion
}

// NewDetector creates a detector. Earlier criteria take precedence.
func NewDetector(criteria ...Criterion) *Detector {
	return &Detector{criteria: slices.Clone(criteria)}
}

// Criteria returns the configured criteria in precedence order.
func (d *Detector) Criteria() []Criterion {
	return slices.Clone(d.criteria)
}

// checkPair enforces the structural invariants and returns the pair as
// (withdrawal, deposit).
func checkPair(a, b operation.Operation) (source, sink operation.Operation, err error) {
	switch {
	case a.SameAs(b):
		err = ErrSelfPairing
	case !opposite(a, b):
		err = ErrSameSign
	case a.Amount.Currency != b.Amount.Currency:
		err = ErrCurrencyMismatch
	}
	if err != nil {
		return source, sink, &InvariantError{A: a, B: b, Err: err}
	}
	if a.Amount.IsNegative() {
		return a, b, nil
	}
	return b, a, nil
}

func opposite(a, b operation.Operation) bool {
	return (a.Amount.IsNegative() && b.Amount.IsPositive()) ||
		(a.Amount.IsPositive() && b.Amount.IsNegative())
}

// Detect pairs a and b in either order. Structural violations return an
// *InvariantError before any criterion is consulted; a valid pair matching
// no criterion returns ErrNoCriterionMatched.
func (d *Detector) Detect(a, b operation.Operation) (Transfer, error) {
	source, sink, err := checkPair(a, b)
	if err != nil {
		return Transfer{}, err
	}
	for _, c := range d.criteria {
		if !c.Predicate.Eval(source, sink) {
			continue
		}
		return Transfer{
			Source:   source,
			Sink:     sink,
			Fee:      operation.Amount{Value: source.Amount.Value.Abs().Sub(sink.Amount.Value.Abs()), Currency: source.Amount.Currency},
			Comment:  c.Comment,
			Accuracy: c.Accuracy,
		}, nil
	}
	return Transfer{}, ErrNoCriterionMatched
}

// Accumulator holds the unmatched operations of one matching pass. It must
// not be shared between passes.
type Accumulator struct {
	detector *Detector
	buffer   []operation.Operation
}

// NewAccumulator starts a matching pass.
func (d *Detector) NewAccumulator() *Accumulator {
	return &Accumulator{detector: d}
}

// Push offers op to the pass. Buffered operations of opposite sign are
// tried in arrival order; the first one forming a transfer is removed from
// the buffer and the transfer is returned. Otherwise op is buffered.
func (a *Accumulator) Push(op operation.Operation) (Transfer, bool) {
	for i, candidate := range a.buffer {
		if !opposite(candidate, op) {
			continue
		}
		t, err := a.detector.Detect(candidate, op)
		if err != nil {
			continue
		}
		a.buffer = slices.Delete(a.buffer, i, i+1)
		return t, true
	}
	a.buffer = append(a.buffer, op)
	return Transfer{}, false
}

// Pending returns the operations still waiting for a partner.
func (a *Accumulator) Pending() []operation.Operation {
	return slices.Clone(a.buffer)
}

// Flush returns the pending operations and empties the buffer.
func (a *Accumulator) Flush() []operation.Operation {
	pending := a.buffer
	a.buffer = nil
	return pending
}

// Match runs one pass over seq, calling emit for every transfer found, and
// returns the operations left unmatched. Cancellation is checked before
// each operation; the operation in flight is then discarded.
func (d *Detector) Match(ctx context.Context, seq operation.Seq, emit func(Transfer) error) ([]operation.Operation, error) {
	acc := d.NewAccumulator()
	for op, err := range seq {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, ok := acc.Push(op)
		if !ok {
			continue
		}
		if err := emit(t); err != nil {
			return nil, fmt.Errorf("emit transfer: %w", err)
		}
	}
	return acc.Pending(), nil
}
