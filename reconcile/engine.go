// Package reconcile runs imported operations through tagging, duplicate
// detection and transfer matching, and persists the outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/budgetlog/logbook/duplicates"
	"github.com/budgetlog/logbook/events"
	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/loader"
	"github.com/budgetlog/logbook/logbook"
	"github.com/budgetlog/logbook/logging"
	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/store"
	"github.com/budgetlog/logbook/tagging"
	"github.com/budgetlog/logbook/telemetry"
	"github.com/budgetlog/logbook/transfers"
)

// Defaults used when no option overrides them.
const (
	DefaultBatchSize       = 1000
	DefaultDuplicateOffset = 72 * time.Hour
)

// ErrNoLogbook is returned by Report when the rules define no logbook.
var ErrNoLogbook = errors.New("rules define no logbook")

// Engine reconciles operations against one set of rules.
type Engine struct {
	store     *store.Store
	rules     *loader.Rules
	detector  *transfers.Detector
	sink      events.Sink
	offset    time.Duration
	batchSize int
	logger    *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink publishes outcomes to sink.
func WithSink(sink events.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.WithComponent("reconcile")
	}
}

// WithDuplicateOffset sets the window within which equal operations are
// considered duplicates.
func WithDuplicateOffset(offset time.Duration) Option {
	return func(e *Engine) {
		e.offset = offset
	}
}

// WithBatchSize sets how many operations one transfer matching pass sees
// before its buffer is flushed. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// New creates an engine over st applying rules.
func New(st *store.Store, rules *loader.Rules, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		rules:     rules,
		detector:  transfers.NewDetector(rules.Transfers...),
		sink:      events.Nop{},
		offset:    DefaultDuplicateOffset,
		batchSize: DefaultBatchSize,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result summarizes one run.
type Result struct {
	// Operations is the batch as persisted, in timestamp order.
	Operations []operation.Operation
	Registered int
	Retagged   int
	Duplicates []duplicates.Group
	Transfers  []store.SavedTransfer
	// Unmatched lists the operations no transfer pass paired.
	Unmatched []operation.Operation
}

type entry struct {
	op      operation.Operation
	changed bool
	added   []string
}

// Run tags batch under mode, registers new operations, updates retagged
// ones and records the transfers found among them. Duplicates are
// reported, never removed. Operations with a version are expected to be
// stored already. Events are published after the transaction commits; a
// failed publish does not undo the run and is returned alongside the result.
func (e *Engine) Run(ctx context.Context, batch []operation.Operation, mode tagging.Mode) (*Result, error) {
	timer := telemetry.FromContext(ctx).Start("reconcile")
	defer timer.End()
	timer.Count(len(batch))

	tagTimer := timer.Child("tag")
	entries := make([]entry, len(batch))
	for i, op := range batch {
		next := tagging.Retag(op, e.rules.Tags, mode)
		next.Register()
		entries[i] = entry{op: next, changed: tagging.Changed(op, next)}
		for _, tag := range next.Tags {
			if !op.Tags.Has(tag) {
				entries[i].added = append(entries[i].added, tag)
			}
		}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		return operation.Compare(a.op, b.op)
	})
	ops := make([]operation.Operation, len(entries))
	for i, en := range entries {
		ops[i] = en.op
	}
	tagTimer.End()

	var (
		groups    []duplicates.Group
		found     []transfers.Transfer
		unmatched []operation.Operation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := timer.Child("detect duplicates")
		defer t.End()
		var err error
		groups, err = duplicates.DetectStream(gctx, operation.FromSlice(ops), e.offset)
		t.Count(len(groups))
		return err
	})
	g.Go(func() error {
		t := timer.Child("match transfers")
		defer t.End()
		candidates := make([]operation.Operation, 0, len(ops))
		for _, op := range ops {
			if op.Attribute(store.AttrTransfer) == "" {
				candidates = append(candidates, op)
			}
		}
		for chunk := range slices.Chunk(candidates, e.batchSize) {
			pending, err := e.detector.Match(gctx, operation.FromSlice(chunk), func(tr transfers.Transfer) error {
				found = append(found, tr)
				return nil
			})
			if err != nil {
				return err
			}
			unmatched = append(unmatched, pending...)
		}
		t.Count(len(found))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	res := &Result{Duplicates: groups, Unmatched: unmatched}
	persist := timer.Child("persist")
	err := e.store.WithTx(ctx, func(tx *store.Store) error {
		for i, op := range ops {
			var err error
			switch {
			case op.Version == 0:
				ops[i], err = tx.Register(ctx, op)
				res.Registered++
			case entries[i].changed:
				ops[i], err = tx.Update(ctx, op)
				res.Retagged++
			}
			if err != nil {
				return err
			}
		}
		for _, tr := range found {
			saved, err := tx.SaveTransfer(ctx, tr)
			if err != nil {
				return fmt.Errorf("save transfer %s: %w", tr, err)
			}
			res.Transfers = append(res.Transfers, saved)
		}
		return nil
	})
	persist.Count(len(ops) + len(found))
	persist.End()
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	res.Operations = e.withTransferLegs(ops, res.Transfers)

	e.logger.Info("batch reconciled",
		"operations", len(ops),
		"registered", res.Registered,
		"retagged", res.Retagged,
		"duplicate_groups", len(res.Duplicates),
		"transfers", len(res.Transfers),
		"unmatched", len(res.Unmatched))

	publish := timer.Child("publish")
	defer publish.End()
	return res, e.publish(ctx, res, entries)
}

// withTransferLegs replaces the legs of saved transfers with their
// stamped versions.
func (e *Engine) withTransferLegs(ops []operation.Operation, saved []store.SavedTransfer) []operation.Operation {
	if len(saved) == 0 {
		return ops
	}
	legs := make(map[string]operation.Operation, 2*len(saved))
	for _, s := range saved {
		legs[s.Source.ID.String()] = s.Source
		legs[s.Sink.ID.String()] = s.Sink
	}
	for i, op := range ops {
		if leg, ok := legs[op.ID.String()]; ok {
			ops[i] = leg
		}
	}
	return ops
}

func (e *Engine) publish(ctx context.Context, res *Result, entries []entry) error {
	var errs []error
	send := func(kind string, payload any) {
		if err := e.sink.Publish(ctx, events.New(kind, payload)); err != nil {
			e.logger.Warn("event not published", "kind", kind, "error", err)
			errs = append(errs, err)
		}
	}

	for i, en := range entries {
		if !en.changed {
			continue
		}
		op := res.Operations[i]
		send(events.TagsApplied, events.Tags{OperationID: op.ID, Added: en.added, Tags: op.Tags})
	}
	for _, g := range res.Duplicates {
		ids := make([]uuid.UUID, 0, len(g.Operations))
		for _, op := range g.Operations {
			ids = append(ids, op.ID)
		}
		send(events.DuplicatesFound, events.Duplicates{
			Amount:       g.Amount.String(),
			Description:  g.Description,
			OperationIDs: ids,
		})
	}
	for _, t := range res.Transfers {
		send(events.TransferDetected, events.Transfer{
			TransferID: t.ID,
			SourceID:   t.Source.ID,
			SinkID:     t.Sink.ID,
			Fee:        t.Fee.String(),
			Accuracy:   t.Accuracy.String(),
			Comment:    t.Comment,
		})
	}
	return errors.Join(errs...)
}

// Retag recomputes the tags of every stored operation satisfying where.
func (e *Engine) Retag(ctx context.Context, where operation.Predicate, mode tagging.Mode) (*Result, error) {
	ops, err := e.store.Find(ctx, where)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, ops, mode)
}

// Duplicates groups the stored operations satisfying where.
func (e *Engine) Duplicates(ctx context.Context, where operation.Predicate) ([]duplicates.Group, error) {
	return duplicates.DetectStream(ctx, e.store.Stream(ctx, where), e.offset)
}

// windowRule selects the operations of a report window.
const windowRule = `o => o.timestamp >= from && o.timestamp < till`

// Report aggregates the stored operations satisfying where into the
// logbook defined by the rules, one tree per range. Only operations
// within the ranges' overall span are loaded.
func (e *Engine) Report(ctx context.Context, where operation.Predicate, ranges []logbook.Range, opts ...logbook.Option) (*logbook.Logbook, error) {
	if e.rules.Logbook == nil {
		return nil, ErrNoLogbook
	}
	timer := telemetry.FromContext(ctx).Start("report")
	defer timer.End()

	p := where
	if len(ranges) > 0 {
		from, till := span(ranges)
		window, err := operation.ParsePredicate(windowRule, expr.WithVariables(map[string]any{
			"from": from,
			"till": till,
		}))
		if err != nil {
			return nil, err
		}
		p = expr.Combine(window, where)
	}

	book, err := logbook.AggregateStream(ctx, e.rules.Logbook, e.store.Stream(ctx, p), ranges, opts...)
	if err != nil {
		return nil, err
	}
	for _, tree := range book.Trees {
		timer.Count(tree.Count)
	}
	return book, nil
}

// span returns the earliest start and the latest end of ranges.
func span(ranges []logbook.Range) (from, till time.Time) {
	from, till = ranges[0].From, ranges[0].Till
	for _, r := range ranges[1:] {
		if r.From.Before(from) {
			from = r.From
		}
		if r.Till.After(till) {
			till = r.Till
		}
	}
	return from, till
}
