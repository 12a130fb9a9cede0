package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/storage"
)

// PostgresStore implements Store with PostgreSQL. Mutating operations lock
// the item row so concurrent checkouts for the same item serialize instead
// of overselling.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL-backed inventory store.
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

const itemColumns = `
	id, event_id, kind, name, price_cents, currency, capacity,
	sold_count, reserved_count, status, sales_start, sales_end,
	created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, item *Item) error {
	_, err := p.querier().ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, event_id, kind, name, price_cents, currency, capacity,
			sold_count, reserved_count, status, sales_start, sales_end,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, item.ID, item.EventID, item.Kind, item.Name, item.PriceCents,
		item.Currency, item.Capacity, item.SoldCount, item.ReservedCount,
		item.Status, item.SalesStart, item.SalesEnd, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert inventory item: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Item, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return scanItem(row)
}

func (p *PostgresStore) ListByEvent(ctx context.Context, eventID string) ([]*Item, error) {
	rows, err := p.querier().QueryContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Reserve(ctx context.Context, id string, qty int) (*Item, error) {
	return p.mutate(ctx, id, func(item *Item) error {
		return item.applyReserve(qty, time.Now())
	})
}

func (p *PostgresStore) ConfirmSale(ctx context.Context, id string, qty int) (*Item, error) {
	return p.mutate(ctx, id, func(item *Item) error {
		return item.applyConfirmSale(qty)
	})
}

func (p *PostgresStore) CancelReservation(ctx context.Context, id string, qty int) (*Item, error) {
	return p.mutate(ctx, id, func(item *Item) error {
		return item.applyCancelReservation(qty)
	})
}

func (p *PostgresStore) RefreshStatus(ctx context.Context, id string) (*Item, error) {
	return p.mutate(ctx, id, func(item *Item) error {
		item.applyRefreshStatus(time.Now())
		return nil
	})
}

// mutate locks the item row, applies the transition, and writes the new
// counts and status back. Runs in its own transaction unless the store is
// already bound to one.
func (p *PostgresStore) mutate(ctx context.Context, id string, apply func(*Item) error) (item *Item, err error) {
	q, finish, err := storage.Begin(ctx, p.db, p.tx)
	if err != nil {
		return nil, err
	}
	defer func() { err = finish(err) }()

	row := q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM inventory_items WHERE id = $1 FOR UPDATE`, id)
	item, err = scanItem(row)
	if err != nil {
		return nil, err
	}

	if err = apply(item); err != nil {
		return nil, err
	}

	item.UpdatedAt = time.Now()
	_, err = q.ExecContext(ctx, `
		UPDATE inventory_items SET
			sold_count = $2, reserved_count = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, item.ID, item.SoldCount, item.ReservedCount, item.Status, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update inventory item: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	item := &Item{}
	var (
		capacity             sql.NullInt64
		salesStart, salesEnd sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.EventID, &item.Kind, &item.Name, &item.PriceCents,
		&item.Currency, &capacity, &item.SoldCount, &item.ReservedCount,
		&item.Status, &salesStart, &salesEnd, &item.CreatedAt, &item.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if capacity.Valid {
		c := int(capacity.Int64)
		item.Capacity = &c
	}
	if salesStart.Valid {
		t := salesStart.Time
		item.SalesStart = &t
	}
	if salesEnd.Valid {
		t := salesEnd.Time
		item.SalesEnd = &t
	}
	return item, nil
}
