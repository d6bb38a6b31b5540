package transfers

import (
	"errors"
	"fmt"

	"github.com/budgetlog/logbook/operation"
)

// Reasons a pair can never be a transfer, wrapped in *InvariantError.
var (
	ErrSelfPairing      = errors.New("an operation cannot be paired with itself")
	ErrSameSign         = errors.New("operations must have opposite signs")
	ErrCurrencyMismatch = errors.New("operations must share a currency")
)

// ErrNoCriterionMatched is returned by Detect when a valid pair satisfies
// none of the criteria. It is the common outcome for unrelated operations.
var ErrNoCriterionMatched = errors.New("no transfer criterion matched")

// InvariantError is returned when a pair violates a structural transfer
// invariant, regardless of the configured criteria.
type InvariantError struct {
	A, B operation.Operation
	Err  error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cannot pair %s with %s: %s", e.A, e.B, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}
