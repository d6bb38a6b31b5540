package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an operation or transfer does not exist or
// was deleted.
var ErrNotFound = errors.New("not found")

// ConflictError reports a write that lost an optimistic concurrency check
// or would break a recorded transfer.
type ConflictError struct {
	ID     uuid.UUID
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on operation %s: %s", e.ID, e.Reason)
}
