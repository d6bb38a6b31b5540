package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/transfers"
)

// Attributes stamped on both legs of a saved transfer.
const (
	AttrTransfer     = "transfer"
	AttrTransferRole = "transfer.role"
)

// SavedTransfer is a transfer recorded in the store.
type SavedTransfer struct {
	ID uuid.UUID
	transfers.Transfer
	CreatedAt time.Time
}

// SaveTransfer records t and links both legs to it. The legs must be
// registered and not yet part of another transfer. The returned legs
// carry their new versions.
func (s *Store) SaveTransfer(ctx context.Context, t transfers.Transfer) (SavedTransfer, error) {
	if !t.Source.IsRegistered() || !t.Sink.IsRegistered() {
		return SavedTransfer{}, errors.New("save transfer: both operations must be registered")
	}
	saved := SavedTransfer{ID: uuid.New(), Transfer: t, CreatedAt: time.Now().UTC()}
	accuracy, err := t.Accuracy.MarshalText()
	if err != nil {
		return SavedTransfer{}, err
	}

	err = s.WithTx(ctx, func(tx *Store) error {
		var err error
		if saved.Source, err = tx.link(ctx, t.Source.ID, saved.ID, "source"); err != nil {
			return err
		}
		if saved.Sink, err = tx.link(ctx, t.Sink.ID, saved.ID, "sink"); err != nil {
			return err
		}
		_, err = tx.q.ExecContext(ctx,
			`INSERT INTO transfers (id, source_id, sink_id, fee, currency, comment, accuracy, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			saved.ID.String(), t.Source.ID.String(), t.Sink.ID.String(),
			t.Fee.Value.String(), t.Fee.Currency, t.Comment, string(accuracy), formatTime(saved.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return SavedTransfer{}, err
	}
	s.logger.Info("transfer saved", "id", saved.ID, "source", t.Source.ID, "sink", t.Sink.ID,
		"accuracy", t.Accuracy.String(), "fee", t.Fee.String())
	return saved, nil
}

func (s *Store) link(ctx context.Context, id, transfer uuid.UUID, role string) (operation.Operation, error) {
	cur, err := s.record(ctx, id)
	if err != nil {
		return operation.Operation{}, err
	}
	if cur.TransferID != "" {
		return operation.Operation{}, &ConflictError{ID: id, Reason: "already recorded in transfer " + cur.TransferID}
	}
	op, err := cur.Operation()
	if err != nil {
		return operation.Operation{}, err
	}
	op = op.Clone()
	op.SetAttribute(AttrTransfer, transfer.String())
	op.SetAttribute(AttrTransferRole, role)
	op.Version = cur.Version + 1

	rec := newRecord(op)
	rec.TransferID = transfer.String()
	if err := s.write(ctx, rec, cur.Version); err != nil {
		return operation.Operation{}, err
	}
	return op, nil
}

type transferRow struct {
	id, source, sink uuid.UUID
	fee              operation.Amount
	comment          string
	accuracy         transfers.Accuracy
	createdAt        time.Time
}

// Transfers returns every saved transfer, oldest first.
func (s *Store) Transfers(ctx context.Context) ([]SavedTransfer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, source_id, sink_id, fee, currency, comment, accuracy, created_at
		FROM transfers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	var found []transferRow
	for rows.Next() {
		var (
			r                                   transferRow
			id, source, sink, fee, acc, created string
		)
		if err := rows.Scan(&id, &source, &sink, &fee, &r.fee.Currency, &r.comment, &acc, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		if r.id, err = uuid.Parse(id); err == nil {
			if r.source, err = uuid.Parse(source); err == nil {
				r.sink, err = uuid.Parse(sink)
			}
		}
		if err == nil {
			r.fee.Value, err = decimal.NewFromString(fee)
		}
		if err == nil {
			err = r.accuracy.UnmarshalText([]byte(acc))
		}
		if err == nil {
			r.createdAt, err = parseTime(created)
		}
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("transfer %s: %w", id, err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	rows.Close()

	out := make([]SavedTransfer, 0, len(found))
	for _, r := range found {
		source, err := s.Get(ctx, r.source)
		if err != nil {
			return nil, fmt.Errorf("transfer %s: %w", r.id, err)
		}
		sink, err := s.Get(ctx, r.sink)
		if err != nil {
			return nil, fmt.Errorf("transfer %s: %w", r.id, err)
		}
		out = append(out, SavedTransfer{
			ID: r.id,
			Transfer: transfers.Transfer{
				Source:   source,
				Sink:     sink,
				Fee:      r.fee,
				Comment:  r.comment,
				Accuracy: r.accuracy,
			},
			CreatedAt: r.createdAt,
		})
	}
	return out, nil
}
