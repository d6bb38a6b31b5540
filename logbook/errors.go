package logbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/budgetlog/logbook/operation"
)

// RangeError is returned when a span ends before it starts.
type RangeError struct {
	From, Till time.Time
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range ends before it starts: %s > %s", formatBound(e.From), formatBound(e.Till))
}

// ScheduleError is returned when a schedule cannot slice a span.
type ScheduleError struct {
	Schedule    string
	Occurrences int // occurrences found inside the span, when the schedule parsed
	Err         error
}

func (e *ScheduleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schedule %q: %s", e.Schedule, e.Err)
	}
	return fmt.Sprintf("schedule %q fires %d time(s) in the span, need at least 2", e.Schedule, e.Occurrences)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// CurrencyError is returned when an operation is not in the reporting currency.
type CurrencyError struct {
	Want      string
	Operation operation.Operation
}

func (e *CurrencyError) Error() string {
	return fmt.Sprintf("operation %s is in %s, report is in %s", e.Operation, e.Operation.Amount.Currency, e.Want)
}

// CriterionError is returned for an invalid criterion definition.
type CriterionError struct {
	Path   []string
	Reason string
	Err    error
}

func (e *CriterionError) Error() string {
	msg := fmt.Sprintf("criterion %s: %s", strings.Join(e.Path, " / "), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CriterionError) Unwrap() error {
	return e.Err
}
