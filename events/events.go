// Package events publishes reconciliation outcomes to interested parties.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds, used as routing keys.
const (
	TransferDetected = "transfer.detected"
	DuplicatesFound  = "duplicates.found"
	TagsApplied      = "tags.applied"
)

// Event is one outcome of a reconciliation run.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New creates an event stamped with a fresh id and the current time.
func New(kind string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Transfer is the payload of TransferDetected.
type Transfer struct {
	TransferID uuid.UUID `json:"transfer_id"`
	SourceID   uuid.UUID `json:"source_id"`
	SinkID     uuid.UUID `json:"sink_id"`
	Fee        string    `json:"fee"`
	Accuracy   string    `json:"accuracy"`
	Comment    string    `json:"comment,omitempty"`
}

// Duplicates is the payload of DuplicatesFound.
type Duplicates struct {
	Amount       string      `json:"amount"`
	Description  string      `json:"description"`
	OperationIDs []uuid.UUID `json:"operation_ids"`
}

// Tags is the payload of TagsApplied.
type Tags struct {
	OperationID uuid.UUID `json:"operation_id"`
	Added       []string  `json:"added"`
	Tags        []string  `json:"tags"`
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns the recorded events in publication order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kind of every recorded event.
func (r *Recorder) Kinds() []string {
	events := r.Events()
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Fanout publishes every event to each of its sinks.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
