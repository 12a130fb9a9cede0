package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/storage"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL-backed escrow store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx returns a copy of the store bound to an existing transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: p.db, tx: tx}
}

func (p *PostgresStore) querier() storage.Querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

const accountColumns = `
	id, event_id, photographer_id, amount_cents, platform_fee_cents,
	currency, status, held_at, release_date, released_at, metadata,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	meta := a.Metadata
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	_, err := p.querier().ExecContext(ctx, `
		INSERT INTO escrow_accounts (
			id, event_id, photographer_id, amount_cents, platform_fee_cents,
			currency, status, held_at, release_date, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.EventID, a.PhotographerID, a.AmountCents, a.PlatformFeeCents,
		a.Currency, a.Status, a.HeldAt, a.ReleaseDate, meta, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert escrow account: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (p *PostgresStore) ListByEvent(ctx context.Context, eventID string) ([]*Account, error) {
	return p.list(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts
		 WHERE event_id = $1 ORDER BY created_at`, eventID)
}

func (p *PostgresStore) ListByPhotographer(ctx context.Context, photographerID string) ([]*Account, error) {
	return p.list(ctx,
		`SELECT `+accountColumns+` FROM escrow_accounts
		 WHERE photographer_id = $1 ORDER BY created_at`, photographerID)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := p.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transition is the status compare-and-set. The WHERE clause carries the
// expected current status, so a stale caller affects zero rows and gets
// ErrInvalidState instead of clobbering a terminal state.
func (p *PostgresStore) Transition(ctx context.Context, id string, from, to Status, releasedAt *time.Time) error {
	res, err := p.querier().ExecContext(ctx, `
		UPDATE escrow_accounts SET
			status      = $3,
			released_at = $4,
			updated_at  = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to, releasedAt)
	if err != nil {
		return fmt.Errorf("failed to transition escrow: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		if _, err := p.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	a := &Account{}
	var (
		releasedAt sql.NullTime
		meta       []byte
	)
	err := row.Scan(
		&a.ID, &a.EventID, &a.PhotographerID, &a.AmountCents, &a.PlatformFeeCents,
		&a.Currency, &a.Status, &a.HeldAt, &a.ReleaseDate, &releasedAt, &meta,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if releasedAt.Valid {
		t := releasedAt.Time
		a.ReleasedAt = &t
	}
	a.Metadata = meta
	return a, nil
}
