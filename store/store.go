// Package store implements the Postgres persistence layer for the IAMA
// orchestration core. All writes are idempotent: inserts use conflict-ignore
// on a natural or explicit key and updates are single targeted statements,
// so activity retries and workflow replays are always safe. The store never
// opens transactions.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgxpool.Pool the store needs. Tests substitute
// a fake; production always uses a pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides idempotent access to the IAMA job tables.
type Store struct {
	db     Querier
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// New connects a Store to Postgres using the given DSN.
func New(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: pool, pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewWithQuerier creates a Store over an existing Querier. Used by tests.
func NewWithQuerier(q Querier, opts ...StoreOption) *Store {
	s := &Store{db: q, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the underlying pool, if the store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// JobOwner returns the owner id and execution mode of a refactor job.
// The second return is false when the job row does not exist.
func (s *Store) JobOwner(ctx context.Context, jobID string) (ownerID, executionMode string, ok bool, err error) {
	err = s.db.QueryRow(ctx,
		`SELECT owner_id, execution_mode FROM refactor_jobs WHERE id = $1`,
		jobID).Scan(&ownerID, &executionMode)
	if err == pgx.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("query job owner: %w", err)
	}
	return ownerID, executionMode, true, nil
}
