// Package storage provides shared database plumbing for the Postgres stores.
//
// Stores never resolve a connection from global state: each store is bound
// either to a *sql.DB (standalone mode, where mutating methods open their own
// transaction) or to a *sql.Tx supplied by a caller that owns a wider atomic
// unit, such as the settlement pipeline.
package storage

import (
	"context"
	"database/sql"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Begin returns the querier a store method should run against, plus a finish
// function to call with the method's error.
//
// When tx is non-nil the caller already owns the transaction: the querier is
// tx and finish only passes the error through (commit/rollback belong to the
// owner). When tx is nil a new transaction is opened on db, and finish
// commits on nil error or rolls back otherwise.
func Begin(ctx context.Context, db *sql.DB, tx *sql.Tx) (Querier, func(error) error, error) {
	if tx != nil {
		return tx, func(err error) error { return err }, nil
	}

	t, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return t, func(err error) error {
		if err != nil {
			_ = t.Rollback()
			return err
		}
		return t.Commit()
	}, nil
}
