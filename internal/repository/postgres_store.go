package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-ojt-placements/internal/database"
)

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries holds every statement; PostgresStore runs them on the pool and
// pgTx runs them on a transaction.
type queries struct {
	q querier
}

// PostgresStore is the production Store.
type PostgresStore struct {
	queries
	db *database.DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{queries: queries{q: db}, db: db}
}

// InTransaction runs fn in a transaction with the configured lock timeout.
func (s *PostgresStore) InTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{queries: queries{q: tx}})
	})
}

type pgTx struct {
	queries
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
