package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/festivo/festivo/internal/idgen"
)

// MemoryStore is an in-memory Store for development and tests. One mutex
// serializes all balance mutations, matching the row-lock discipline of the
// Postgres implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	currency string
	wallets  map[string]Wallet            // by user ID
	txns     map[string]WalletTransaction // by reference
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore(currency string) *MemoryStore {
	return &MemoryStore{
		currency: currency,
		wallets:  make(map[string]Wallet),
		txns:     make(map[string]WalletTransaction),
	}
}

// Snapshot captures the current state and returns a function that restores it.
func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	savedWallets := make(map[string]Wallet, len(m.wallets))
	for k, v := range m.wallets {
		savedWallets[k] = v
	}
	savedTxns := make(map[string]WalletTransaction, len(m.txns))
	for k, v := range m.txns {
		savedTxns[k] = v
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.wallets = savedWallets
		m.txns = savedTxns
	}
}

func (m *MemoryStore) Credit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error) {
	return m.apply(userID, amountCents, txnType, reference, metadata)
}

func (m *MemoryStore) Debit(ctx context.Context, userID string, amountCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error) {
	return m.apply(userID, -amountCents, txnType, reference, metadata)
}

func (m *MemoryStore) apply(userID string, signedCents int64, txnType TransactionType, reference string, metadata json.RawMessage) (*Wallet, *WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[userID]
	if !ok {
		now := time.Now()
		wallet = Wallet{
			ID:        idgen.WithPrefix("wal_"),
			UserID:    userID,
			Currency:  m.currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if existing, ok := m.txns[reference]; ok {
		w := wallet
		t := existing
		return &w, &t, nil
	}

	if wallet.AvailableBalanceCents+signedCents < 0 {
		return nil, nil, ErrInsufficientFunds
	}

	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	txn := WalletTransaction{
		ID:                 idgen.WithPrefix("wtx_"),
		WalletID:           wallet.ID,
		Type:               txnType,
		Status:             TxnCompleted,
		AmountCents:        signedCents,
		Reference:          reference,
		BalanceBeforeCents: wallet.AvailableBalanceCents,
		BalanceAfterCents:  wallet.AvailableBalanceCents + signedCents,
		Metadata:           append(json.RawMessage(nil), metadata...),
		CreatedAt:          time.Now(),
	}

	wallet.AvailableBalanceCents = txn.BalanceAfterCents
	if signedCents > 0 {
		wallet.TotalEarningsCents += signedCents
	}
	wallet.UpdatedAt = time.Now()

	m.wallets[userID] = wallet
	m.txns[reference] = txn

	w := wallet
	t := txn
	return &w, &t, nil
}

func (m *MemoryStore) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wallet, ok := m.wallets[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	w := wallet
	return &w, nil
}

func (m *MemoryStore) GetTransactionByReference(ctx context.Context, reference string) (*WalletTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.txns[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	t := txn
	return &t, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]*WalletTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*WalletTransaction
	for _, txn := range m.txns {
		if txn.WalletID == walletID {
			t := txn
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
