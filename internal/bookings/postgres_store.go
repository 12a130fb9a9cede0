package bookings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/payments"
	"github.com/festivo/festivo/internal/storage"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL-backed booking store.
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

const bookingColumns = `
	id, reference, user_id, event_id, payment_id, status, items,
	total_cents, currency, payment_status, attendee, waiver_accepted,
	checked_in, checked_in_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, b *Booking) error {
	items, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal booking items: %w", err)
	}
	attendee, err := json.Marshal(b.Attendee)
	if err != nil {
		return fmt.Errorf("failed to marshal attendee: %w", err)
	}

	_, err = p.querier().ExecContext(ctx, `
		INSERT INTO bookings (
			id, reference, user_id, event_id, payment_id, status, items,
			total_cents, currency, payment_status, attendee, waiver_accepted,
			checked_in, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, b.ID, b.Reference, b.UserID, b.EventID, b.PaymentID, b.Status, items,
		b.TotalCents, b.Currency, b.PaymentStatus, attendee, b.WaiverAccepted,
		b.CheckedIn, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (p *PostgresStore) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE reference = $1`, reference)
	return scanBooking(row)
}

func (p *PostgresStore) GetByPayment(ctx context.Context, paymentID string) (*Booking, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_id = $1`, paymentID)
	return scanBooking(row)
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	return p.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

func (p *PostgresStore) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Booking, error) {
	return p.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE event_id = $1 ORDER BY created_at DESC LIMIT $2`, eventID, limit)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Booking, error) {
	rows, err := p.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, to Status) (err error) {
	q, finish, err := storage.Begin(ctx, p.db, p.tx)
	if err != nil {
		return err
	}
	defer func() { err = finish(err) }()

	var current Status
	err = q.QueryRowContext(ctx,
		`SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !canTransition(current, to) {
		return ErrInvalidTransition
	}

	_, err = q.ExecContext(ctx,
		`UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`, id, to)
	return err
}

func (p *PostgresStore) CheckIn(ctx context.Context, id string, at time.Time) error {
	res, err := p.querier().ExecContext(ctx, `
		UPDATE bookings SET checked_in = TRUE, checked_in_at = $2, updated_at = NOW()
		WHERE id = $1 AND checked_in = FALSE
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to check in booking: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		if _, err := p.Get(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyCheckedIn
	}
	return nil
}

func (p *PostgresStore) SetWaiverAccepted(ctx context.Context, id string) error {
	res, err := p.querier().ExecContext(ctx,
		`UPDATE bookings SET waiver_accepted = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to record waiver acceptance: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	b := &Booking{}
	var (
		items, attendee []byte
		checkedInAt     sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.Reference, &b.UserID, &b.EventID, &b.PaymentID, &b.Status,
		&items, &b.TotalCents, &b.Currency, &b.PaymentStatus, &attendee,
		&b.WaiverAccepted, &b.CheckedIn, &checkedInAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if checkedInAt.Valid {
		t := checkedInAt.Time
		b.CheckedInAt = &t
	}
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return nil, fmt.Errorf("failed to decode booking items: %w", err)
	}
	if len(attendee) > 0 {
		var c payments.CustomerInfo
		if err := json.Unmarshal(attendee, &c); err != nil {
			return nil, fmt.Errorf("failed to decode attendee: %w", err)
		}
		b.Attendee = c
	}
	return b, nil
}
