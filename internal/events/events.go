// Package events holds the minimal event entity the settlement core needs:
// the organizer (escrow release authorization, wallet crediting) and the
// start time (escrow release-date defaulting). Full event management lives
// outside this service.
package events

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("event not found")

// Event is an organizer's event.
type Event struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizerId"`
	Name        string    `json:"name"`
	StartsAt    time.Time `json:"startsAt"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists events.
type Store interface {
	Create(ctx context.Context, ev *Event) error
	Get(ctx context.Context, id string) (*Event, error)
}

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx returns a copy of the store bound to an existing transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: p.db, tx: tx}
}

func (p *PostgresStore) querier() interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
} {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

func (p *PostgresStore) Create(ctx context.Context, ev *Event) error {
	_, err := p.querier().ExecContext(ctx, `
		INSERT INTO events (id, organizer_id, name, starts_at, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.OrganizerID, ev.Name, ev.StartsAt, ev.Currency, ev.CreatedAt)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Event, error) {
	ev := &Event{}
	err := p.querier().QueryRowContext(ctx, `
		SELECT id, organizer_id, name, starts_at, currency, created_at
		FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.OrganizerID, &ev.Name, &ev.StartsAt, &ev.Currency, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}
