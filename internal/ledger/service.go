package ledger

import (
	"context"
	"encoding/json"

	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
)

// BalanceListener is invoked after a balance change has been durably
// committed, never before. Implementations must not fail the ledger write:
// errors are the listener's problem.
type BalanceListener interface {
	WalletCredited(ctx context.Context, wallet *Wallet, txn *WalletTransaction)
	WalletDebited(ctx context.Context, wallet *Wallet, txn *WalletTransaction)
}

// Service implements wallet business logic on top of a Store.
type Service struct {
	store    Store
	listener BalanceListener
}

// NewService creates a new ledger service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// SetListener registers a post-commit balance listener.
func (s *Service) SetListener(l BalanceListener) {
	s.listener = l
}

// Credit adds funds to a user's wallet, creating the wallet if needed.
// Idempotent on reference. notify controls whether the post-commit listener
// fires; settlement passes false and notifies itself after its own commit.
func (s *Service) Credit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage, notify bool) (*Wallet, *WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	wallet, txn, err := s.store.Credit(ctx, userID, amountCents, txnType, reference, metadata)
	if err != nil {
		metrics.WalletTransactionsTotal.WithLabelValues(string(txnType), "failed").Inc()
		return nil, nil, err
	}
	metrics.WalletTransactionsTotal.WithLabelValues(string(txnType), string(txn.Status)).Inc()

	if notify && s.listener != nil {
		s.listener.WalletCredited(ctx, wallet, txn)
	}
	return wallet, txn, nil
}

// Debit removes funds from a user's wallet. Idempotent on reference; fails
// with ErrInsufficientFunds if the balance cannot cover the amount.
func (s *Service) Debit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage, notify bool) (*Wallet, *WalletTransaction, error) {
	if amountCents <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	wallet, txn, err := s.store.Debit(ctx, userID, amountCents, txnType, reference, metadata)
	if err != nil {
		metrics.WalletTransactionsTotal.WithLabelValues(string(txnType), "failed").Inc()
		return nil, nil, err
	}
	metrics.WalletTransactionsTotal.WithLabelValues(string(txnType), string(txn.Status)).Inc()

	if notify && s.listener != nil {
		s.listener.WalletDebited(ctx, wallet, txn)
	}
	return wallet, txn, nil
}

// GetWallet returns a user's wallet.
func (s *Service) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

// ListTransactions returns a wallet's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, walletID string, limit int) ([]*WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListTransactions(ctx, walletID, limit)
}

// VerifyBalance replays a wallet's full transaction history and reports
// whether it reproduces the stored balance.
func (s *Service) VerifyBalance(ctx context.Context, userID string) (bool, error) {
	wallet, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return false, err
	}
	txns, err := s.store.ListTransactions(ctx, wallet.ID, 0)
	if err != nil {
		return false, err
	}

	replayed := Replay(txns)
	if replayed != wallet.AvailableBalanceCents {
		logging.L(ctx).Error("wallet balance does not fold from its ledger",
			"wallet_id", wallet.ID,
			"stored", wallet.AvailableBalanceCents,
			"replayed", replayed)
		return false, nil
	}
	return true, nil
}
