package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/storage"
)

// PostgresStore implements Store with PostgreSQL. The wallet row is locked
// before any balance mutation so concurrent credits and debits to the same
// user serialize, and the unique index on wallet_transactions.reference
// backstops the idempotency check.
type PostgresStore struct {
	db       *sql.DB
	tx       *sql.Tx
	currency string
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store. currency
// is applied to lazily created wallets.
func NewPostgresStore(db *sql.DB, currency string) *PostgresStore {
	return &PostgresStore{db: db, currency: currency}
}

// WithTx returns a copy of the store bound to an existing transaction.
func (p *PostgresStore) WithTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: p.db, tx: tx, currency: p.currency}
}

func (p *PostgresStore) querier() storage.Querier {
	if p.tx != nil {
		return p.tx
	}
	return p.db
}

const walletColumns = `
	id, user_id, available_balance_cents, pending_balance_cents,
	total_earnings_cents, currency, created_at, updated_at`

const txnColumns = `
	id, wallet_id, type, status, amount_cents, reference,
	balance_before_cents, balance_after_cents, metadata, created_at`

func (p *PostgresStore) Credit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error) {
	return p.apply(ctx, userID, amountCents, txnType, reference, metadata)
}

func (p *PostgresStore) Debit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error) {
	return p.apply(ctx, userID, -amountCents, txnType, reference, metadata)
}

// apply writes one signed ledger entry and moves the wallet balance in the
// same transaction.
func (p *PostgresStore) apply(ctx context.Context, userID string, signedCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (wallet *Wallet, txn *WalletTransaction, err error) {
	q, finish, err := storage.Begin(ctx, p.db, p.tx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { err = finish(err) }()

	wallet, err = p.lockWallet(ctx, q, userID)
	if err != nil {
		return nil, nil, err
	}

	// Idempotency gate, checked under the wallet lock so a redelivered
	// webhook cannot slip a second entry in between check and insert.
	existing, err := p.findTxn(ctx, q, reference)
	if err != nil && err != ErrTransactionNotFound {
		return nil, nil, err
	}
	if existing != nil {
		return wallet, existing, nil
	}

	if wallet.AvailableBalanceCents+signedCents < 0 {
		return nil, nil, ErrInsufficientFunds
	}

	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	txn = &WalletTransaction{
		ID:                 idgen.WithPrefix("wtx_"),
		WalletID:           wallet.ID,
		Type:               txnType,
		Status:             TxnCompleted,
		AmountCents:        signedCents,
		Reference:          reference,
		BalanceBeforeCents: wallet.AvailableBalanceCents,
		BalanceAfterCents:  wallet.AvailableBalanceCents + signedCents,
		Metadata:           metadata,
		CreatedAt:          time.Now(),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO wallet_transactions (
			id, wallet_id, type, status, amount_cents, reference,
			balance_before_cents, balance_after_cents, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, txn.ID, txn.WalletID, txn.Type, txn.Status, txn.AmountCents,
		txn.Reference, txn.BalanceBeforeCents, txn.BalanceAfterCents,
		txn.Metadata, txn.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert wallet transaction: %w", err)
	}

	wallet.AvailableBalanceCents = txn.BalanceAfterCents
	if signedCents > 0 {
		wallet.TotalEarningsCents += signedCents
	}
	wallet.UpdatedAt = time.Now()

	_, err = q.ExecContext(ctx, `
		UPDATE wallets SET
			available_balance_cents = $2,
			total_earnings_cents    = $3,
			updated_at              = $4
		WHERE id = $1
	`, wallet.ID, wallet.AvailableBalanceCents, wallet.TotalEarningsCents, wallet.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return wallet, txn, nil
}

// lockWallet fetches the user's wallet with a row lock, creating it first
// if the user has never held one.
func (p *PostgresStore) lockWallet(ctx context.Context, q storage.Querier, userID string) (*Wallet, error) {
	wallet, err := p.selectWallet(ctx, q, userID, true)
	if err == nil {
		return wallet, nil
	}
	if err != ErrWalletNotFound {
		return nil, err
	}

	now := time.Now()
	_, err = q.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, available_balance_cents, pending_balance_cents,
			total_earnings_cents, currency, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`, idgen.WithPrefix("wal_"), userID, p.currency, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return p.selectWallet(ctx, q, userID, true)
}

func (p *PostgresStore) selectWallet(ctx context.Context, q storage.Querier, userID string, forUpdate bool) (*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	wallet := &Wallet{}
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&wallet.ID, &wallet.UserID, &wallet.AvailableBalanceCents,
		&wallet.PendingBalanceCents, &wallet.TotalEarningsCents,
		&wallet.Currency, &wallet.CreatedAt, &wallet.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (p *PostgresStore) findTxn(ctx context.Context, q storage.Querier, reference string) (*WalletTransaction, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM wallet_transactions WHERE reference = $1`, reference)
	return scanTxn(row)
}

func (p *PostgresStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	return p.selectWallet(ctx, p.querier(), userID, false)
}

func (p *PostgresStore) GetTransactionByReference(ctx context.Context, reference string) (*WalletTransaction, error) {
	return p.findTxn(ctx, p.querier(), reference)
}

func (p *PostgresStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]*WalletTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM wallet_transactions
		WHERE wallet_id = $1 ORDER BY created_at DESC`
	args := []any{walletID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WalletTransaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTxn(row rowScanner) (*WalletTransaction, error) {
	txn := &WalletTransaction{}
	var meta []byte
	err := row.Scan(
		&txn.ID, &txn.WalletID, &txn.Type, &txn.Status, &txn.AmountCents,
		&txn.Reference, &txn.BalanceBeforeCents, &txn.BalanceAfterCents,
		&meta, &txn.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	txn.Metadata = meta
	return txn, nil
}
