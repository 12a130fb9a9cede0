package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/festivo/festivo/internal/storage"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithTx returns a copy of the store bound to an existing transaction.
// Bound stores never commit; the transaction owner does.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: p.db, tx: tx}
}

func (p *PostgresStore) querier() storage.Querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

const paymentColumns = `
	id, user_id, event_id, amount_cents, platform_fee_cents, currency,
	status, payment_method, payment_reference, metadata,
	paid_at, refunded_at, refund_reason, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, payment *Payment) error {
	meta, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment metadata: %w", err)
	}

	_, err = p.querier().ExecContext(ctx, `
		INSERT INTO payments (
			id, user_id, event_id, amount_cents, platform_fee_cents, currency,
			status, payment_method, payment_reference, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, payment.ID, payment.UserID, payment.EventID, payment.AmountCents,
		payment.PlatformFeeCents, payment.Currency, payment.Status,
		payment.PaymentMethod, payment.PaymentReference, meta,
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.querier().QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (p *PostgresStore) FindPendingByReference(ctx context.Context, reference string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE payment_reference = $1 AND status = 'pending'`
	if p.tx != nil {
		// Inside the settlement transaction the row is locked so a racing
		// delivery of the same reference blocks, then finds nothing pending.
		query += ` FOR UPDATE`
	}
	row := p.querier().QueryRowContext(ctx, query, reference)
	return scanPayment(row)
}

func (p *PostgresStore) MarkCompleted(ctx context.Context, id string, gateway []byte, paidAt time.Time) error {
	if len(gateway) == 0 {
		gateway = []byte("null")
	}
	res, err := p.querier().ExecContext(ctx, `
		UPDATE payments SET
			status     = 'completed',
			paid_at    = $2,
			metadata   = jsonb_set(metadata, '{gateway}', $3::jsonb, true),
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, paidAt, gateway)
	if err != nil {
		return fmt.Errorf("failed to mark payment completed: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrInvalidState
	}
	return nil
}

func (p *PostgresStore) MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) error {
	res, err := p.querier().ExecContext(ctx, `
		UPDATE payments SET
			status        = 'refunded',
			refunded_at   = $2,
			refund_reason = $3,
			updated_at    = NOW()
		WHERE id = $1 AND status = 'completed' AND refunded_at IS NULL
	`, id, refundedAt, reason)
	if err != nil {
		return fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrInvalidState
	}
	return nil
}

func (p *PostgresStore) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE event_id = $1 ORDER BY created_at DESC`
	args := []any{eventID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, payment)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	payment := &Payment{}
	var (
		meta               []byte
		method, reason     sql.NullString
		paidAt, refundedAt sql.NullTime
	)
	err := row.Scan(
		&payment.ID, &payment.UserID, &payment.EventID, &payment.AmountCents,
		&payment.PlatformFeeCents, &payment.Currency, &payment.Status,
		&method, &payment.PaymentReference, &meta,
		&paidAt, &refundedAt, &reason, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	payment.PaymentMethod = method.String
	payment.RefundReason = reason.String
	if paidAt.Valid {
		t := paidAt.Time
		payment.PaidAt = &t
	}
	if refundedAt.Valid {
		t := refundedAt.Time
		payment.RefundedAt = &t
	}

	if err := json.Unmarshal(meta, &payment.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode payment metadata: %w", err)
	}
	if err := payment.Metadata.Validate(); err != nil {
		return nil, fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	return payment, nil
}
