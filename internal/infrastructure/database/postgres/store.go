// Package postgres is the store layer: pgx/v5 + pgxpool wired against
// the schema in migrations/0001_schema.sql, implementing every entity
// CRUD this core needs plus the one operation the whole design hinges
// on — the version-predicate Account UPDATE that never takes a row
// lock. One struct wraps *pgxpool.Pool, pool lifecycle is managed in
// one place, and every call takes a context.Context.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a connection pool and exposes the ledger's persistence
// operations. It holds no per-account mutexes because account-level
// concurrency is the version predicate's job, not this process's.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool as a Querier, for callers (the
// Kafka consumer, the scheduler) that run a single statement outside
// any WithTx transaction.
func (s *Store) Pool() Querier {
	return s.pool
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// read helper below run either standalone or inside a caller's
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// WithTx runs fn inside a single DB transaction, matching spec.md
// §4.C3's "given an input tx, the applier, in one DB transaction"
// requirement: fn's effects commit atomically or not at all.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BeginTx starts a transaction the caller drives itself, for the
// occ.Builder pipelines in internal/queue/workers: each attempt opens
// its own transaction so a retried attempt never observes another
// attempt's uncommitted writes.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// isUniqueViolation reports whether err is a Postgres unique
// constraint violation (SQLSTATE 23505), the signal spec.md §4.C9
// converts into IDEMPOTENCY_DUPLICATE.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
