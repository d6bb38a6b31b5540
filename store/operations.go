package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/budgetlog/logbook/operation"
)

func validate(op operation.Operation) error {
	if op.Amount.Currency == "" {
		return fmt.Errorf("operation %s has no currency", op)
	}
	for _, tag := range op.Tags {
		if strings.Contains(tag, tagSeparator) {
			return fmt.Errorf("operation %s: tag %q must not contain %q", op, tag, tagSeparator)
		}
	}
	return nil
}

// Register stores a new operation, assigning it an id when it has none.
// The stored operation starts at version 1.
func (s *Store) Register(ctx context.Context, op operation.Operation) (operation.Operation, error) {
	if err := validate(op); err != nil {
		return operation.Operation{}, err
	}
	op = op.Clone()
	op.Register()
	op.Version = 1

	args, err := newRecord(op).args()
	if err != nil {
		return operation.Operation{}, err
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO operations (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, args...)
	if err != nil {
		return operation.Operation{}, fmt.Errorf("insert operation %s: %w", op.ID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return operation.Operation{}, fmt.Errorf("insert operation %s: %w", op.ID, err)
	} else if n == 0 {
		return operation.Operation{}, &ConflictError{ID: op.ID, Reason: "already registered"}
	}
	s.logger.Debug("operation registered", "id", op.ID, "amount", op.Amount.String())
	return op, nil
}

// RegisterAll registers ops in one transaction.
func (s *Store) RegisterAll(ctx context.Context, ops []operation.Operation) ([]operation.Operation, error) {
	out := make([]operation.Operation, 0, len(ops))
	err := s.WithTx(ctx, func(tx *Store) error {
		for _, op := range ops {
			registered, err := tx.Register(ctx, op)
			if err != nil {
				return err
			}
			out = append(out, registered)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) record(ctx context.Context, id uuid.UUID) (Record, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM operations WHERE id = ? AND deleted_at IS NULL`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load operation %s: %w", id, err)
	}
	return r, nil
}

// Get loads a live operation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (operation.Operation, error) {
	r, err := s.record(ctx, id)
	if err != nil {
		return operation.Operation{}, err
	}
	return r.Operation()
}

// Update replaces a stored operation. op.Version must equal the stored
// version; the returned operation carries the next one. The amount and
// timestamp of an operation recorded in a transfer cannot change.
func (s *Store) Update(ctx context.Context, op operation.Operation) (operation.Operation, error) {
	if err := validate(op); err != nil {
		return operation.Operation{}, err
	}
	var updated operation.Operation
	err := s.WithTx(ctx, func(tx *Store) error {
		cur, err := tx.record(ctx, op.ID)
		if err != nil {
			return err
		}
		if cur.Version != op.Version {
			return &ConflictError{ID: op.ID, Reason: fmt.Sprintf("version %d is stale, stored version is %d", op.Version, cur.Version)}
		}
		if cur.TransferID != "" && (!cur.Timestamp.Equal(op.Timestamp) ||
			!cur.Amount.Equal(op.Amount.Value) || cur.Currency != op.Amount.Currency) {
			return &ConflictError{ID: op.ID, Reason: "amount and timestamp are fixed by transfer " + cur.TransferID}
		}

		next := op.Clone()
		next.Version = cur.Version + 1
		rec := newRecord(next)
		rec.TransferID = cur.TransferID
		if err := tx.write(ctx, rec, cur.Version); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return operation.Operation{}, err
	}
	return updated, nil
}

// write overwrites the row of rec if its stored version is still version.
func (s *Store) write(ctx context.Context, rec Record, version int64) error {
	args, err := rec.args()
	if err != nil {
		return err
	}
	id, _ := uuid.Parse(rec.ID)
	res, err := s.q.ExecContext(ctx, `UPDATE operations SET
		version = ?, timestamp = ?, amount = ?, currency = ?, description = ?,
		account_id = ?, account_name = ?, account_bank = ?, owners = ?, tags = ?, attributes = ?, transfer_id = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		append(args[1:], rec.ID, version)...)
	if err != nil {
		return fmt.Errorf("update operation %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operation %s: %w", rec.ID, err)
	}
	if n == 0 {
		return &ConflictError{ID: id, Reason: "modified concurrently"}
	}
	return nil
}

// Delete marks an operation deleted. Operations recorded in a transfer
// cannot be deleted.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.WithTx(ctx, func(tx *Store) error {
		cur, err := tx.record(ctx, id)
		if err != nil {
			return err
		}
		if cur.TransferID != "" {
			return &ConflictError{ID: id, Reason: "recorded in transfer " + cur.TransferID}
		}
		_, err = tx.q.ExecContext(ctx,
			`UPDATE operations SET deleted_at = ?, version = version + 1 WHERE id = ?`,
			formatTime(time.Now()), id.String())
		if err != nil {
			return fmt.Errorf("delete operation %s: %w", id, err)
		}
		tx.logger.Debug("operation deleted", "id", id)
		return nil
	})
}

// Stream yields the live operations satisfying p in timestamp order. The
// predicate is planned with Plan.
func (s *Store) Stream(ctx context.Context, p operation.Predicate) operation.Seq {
	return func(yield func(operation.Operation, error) bool) {
		q, err := Plan(p)
		if err != nil {
			yield(operation.Operation{}, fmt.Errorf("plan query: %w", err))
			return
		}
		s.logger.Debug("query planned", "where", q.Where, "args", len(q.Args), "host", q.Host.String())

		rows, err := s.q.QueryContext(ctx,
			`SELECT `+recordColumns+` FROM operations
			WHERE deleted_at IS NULL AND (`+q.Where+`)
			ORDER BY timestamp, id`, q.Args...)
		if err != nil {
			yield(operation.Operation{}, fmt.Errorf("query operations: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				yield(operation.Operation{}, err)
				return
			}
			op, err := rec.Operation()
			if err != nil {
				yield(operation.Operation{}, err)
				return
			}
			if !q.Host.Eval(op) {
				continue
			}
			if !yield(op, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(operation.Operation{}, fmt.Errorf("query operations: %w", err))
		}
	}
}

// Find returns the live operations satisfying p in timestamp order.
func (s *Store) Find(ctx context.Context, p operation.Predicate) ([]operation.Operation, error) {
	return operation.Collect(ctx, s.Stream(ctx, p))
}

// Count returns the number of live operations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations WHERE deleted_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return n, nil
}
