// Package store persists operations and transfers in SQLite.
//
// Rule predicates written against operation.Schema are pushed down to SQL
// where the storage representation can express them. The remaining
// clauses are evaluated on the loaded operations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/budgetlog/logbook/logging"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite backed repository of operations and transfers. It is
// safe for concurrent use.
type Store struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for query plans and writes.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger.WithComponent("store")
	}
}

// Open opens the database at path, creating it and applying migrations as
// needed.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if err := RunMigrations(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, q: db, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("database opened", "path", path)
	return s, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Close closes the database.
func (s *Store) Close() error {
	if s.inTx || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithTx runs fn with a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calls
// nest: a Store already inside a transaction passes itself.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx, inTx: true, logger: s.logger}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
