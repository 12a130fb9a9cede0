// Package ledger tracks user wallets and their append-only transaction log.
//
// Every balance mutation goes through a WalletTransaction write in the same
// atomic unit, keyed by a unique reference. Replaying a wallet's completed
// transactions in order reproduces its balance exactly.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("wallet transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypeEventPaymentReceived TransactionType = "event_payment_received"
	TypeTicketSaleRevenue    TransactionType = "ticket_sale_revenue"
	TypeEscrowRelease        TransactionType = "escrow_release"
	TypeWithdrawal           TransactionType = "withdrawal"
	TypePlatformFee          TransactionType = "platform_fee"
	TypeRefundDeduction      TransactionType = "refund_deduction"
)

// TransactionStatus is the state of a ledger entry.
type TransactionStatus string

const (
	TxnCompleted TransactionStatus = "completed"
	TxnPending   TransactionStatus = "pending"
	TxnFailed    TransactionStatus = "failed"
)

// Wallet holds a user's balance. Created lazily on first credit.
type Wallet struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"userId"`
	AvailableBalanceCents int64     `json:"availableBalanceCents"`
	PendingBalanceCents   int64     `json:"pendingBalanceCents"`
	TotalEarningsCents    int64     `json:"totalEarningsCents"`
	Currency              string    `json:"currency"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// WalletTransaction is one append-only ledger row. AmountCents is signed:
// positive for credits, negative for debits.
type WalletTransaction struct {
	ID                 string            `json:"id"`
	WalletID           string            `json:"walletId"`
	Type               TransactionType   `json:"type"`
	Status             TransactionStatus `json:"status"`
	AmountCents        int64             `json:"amountCents"`
	Reference          string            `json:"reference"`
	BalanceBeforeCents int64             `json:"balanceBeforeCents"`
	BalanceAfterCents  int64             `json:"balanceAfterCents"`
	Metadata           json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// Store persists wallets and their transactions. Credit and Debit are
// idempotent on reference: a second call with the same reference returns
// the original pair unchanged.
type Store interface {
	Credit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error)
	Debit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error)
	GetWallet(ctx context.Context, userID string) (*Wallet, error)
	GetTransactionByReference(ctx context.Context, reference string) (*WalletTransaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]*WalletTransaction, error)
}

// Replay folds a wallet's transactions oldest-first and returns the balance
// they reproduce. Only completed transactions count. Used by reconciliation
// to verify the ledger invariant.
func Replay(txns []*WalletTransaction) int64 {
	var balance int64
	for _, t := range txns {
		if t.Status == TxnCompleted {
			balance += t.AmountCents
		}
	}
	return balance
}
