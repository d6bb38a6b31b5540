package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
)

// Seq is a lazily produced sequence of operations. A non-nil error ends it.
type Seq = iter.Seq2[Operation, error]

// FromSlice streams ops in order.
func FromSlice(ops []Operation) Seq {
	return func(yield func(Operation, error) bool) {
		for _, op := range ops {
			if !yield(op, nil) {
				return
			}
		}
	}
}

// Collect drains seq, checking ctx before each operation.
func Collect(ctx context.Context, seq Seq) ([]Operation, error) {
	var ops []Operation
	for op, err := range seq {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Filter streams the operations of seq satisfying p.
func Filter(seq Seq, p Predicate) Seq {
	return func(yield func(Operation, error) bool) {
		for op, err := range seq {
			if err != nil {
				yield(Operation{}, err)
				return
			}
			if p.Eval(op) && !yield(op, nil) {
				return
			}
		}
	}
}

// Decode reads a JSON array of operations, as produced by importers.
func Decode(r io.Reader) ([]Operation, error) {
	var ops []Operation
	if err := json.NewDecoder(r).Decode(&ops); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	for i := range ops {
		ops[i].Tags = NewTags(ops[i].Tags...)
		if ops[i].Amount.Currency == "" {
			return nil, fmt.Errorf("operation %d (%q): missing currency", i, ops[i].Description)
		}
	}
	return ops, nil
}
