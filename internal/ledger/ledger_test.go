package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCreditCreatesWalletLazily(t *testing.T) {
	store := NewMemoryStore("USD")
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.GetWallet(ctx, "usr_1"); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound before first credit, got %v", err)
	}

	wallet, txn, err := svc.Credit(ctx, "usr_1", 9000, TypeEventPaymentReceived, "txn_1", nil, false)
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if wallet.AvailableBalanceCents != 9000 {
		t.Errorf("expected balance 9000, got %d", wallet.AvailableBalanceCents)
	}
	if wallet.Currency != "USD" {
		t.Errorf("expected USD wallet, got %s", wallet.Currency)
	}
	if txn.BalanceBeforeCents != 0 || txn.BalanceAfterCents != 9000 {
		t.Errorf("balance trail wrong: before=%d after=%d", txn.BalanceBeforeCents, txn.BalanceAfterCents)
	}
}

func TestCreditIsIdempotentOnReference(t *testing.T) {
	store := NewMemoryStore("USD")
	svc := NewService(store)
	ctx := context.Background()

	_, first, err := svc.Credit(ctx, "usr_1", 9000, TypeEventPaymentReceived, "txn_dup", nil, false)
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		wallet, txn, err := svc.Credit(ctx, "usr_1", 9000, TypeEventPaymentReceived, "txn_dup", nil, false)
		if err != nil {
			t.Fatalf("redelivered Credit failed: %v", err)
		}
		if txn.ID != first.ID {
			t.Errorf("expected the original transaction back, got %s", txn.ID)
		}
		if wallet.AvailableBalanceCents != 9000 {
			t.Errorf("balance must not move on redelivery, got %d", wallet.AvailableBalanceCents)
		}
	}
}

func TestDebit(t *testing.T) {
	store := NewMemoryStore("USD")
	svc := NewService(store)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, "usr_1", 5000, TypeTicketSaleRevenue, "txn_c1", nil, false); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	wallet, txn, err := svc.Debit(ctx, "usr_1", 2000, TypeWithdrawal, "wd_1", nil, false)
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if wallet.AvailableBalanceCents != 3000 {
		t.Errorf("expected balance 3000, got %d", wallet.AvailableBalanceCents)
	}
	if txn.AmountCents != -2000 {
		t.Errorf("debit must be stored signed, got %d", txn.AmountCents)
	}

	if _, _, err := svc.Debit(ctx, "usr_1", 4000, TypeWithdrawal, "wd_2", nil, false); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}

	// Earnings only count credits.
	if wallet.TotalEarningsCents != 5000 {
		t.Errorf("expected total earnings 5000, got %d", wallet.TotalEarningsCents)
	}
}

func TestInvalidAmount(t *testing.T) {
	svc := NewService(NewMemoryStore("USD"))
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, "usr_1", 0, TypeTicketSaleRevenue, "txn_0", nil, false); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero credit, got %v", err)
	}
	if _, _, err := svc.Debit(ctx, "usr_1", -5, TypeWithdrawal, "wd_0", nil, false); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative debit, got %v", err)
	}
}

// The ledger invariant: folding a wallet's completed transactions must
// reproduce its stored balance exactly.
func TestLedgerFolds(t *testing.T) {
	store := NewMemoryStore("USD")
	svc := NewService(store)
	ctx := context.Background()

	amounts := []int64{9000, 4500, 12000}
	for i, a := range amounts {
		if _, _, err := svc.Credit(ctx, "usr_1", a, TypeTicketSaleRevenue, fmt.Sprintf("txn_%d", i), nil, false); err != nil {
			t.Fatalf("Credit failed: %v", err)
		}
	}
	if _, _, err := svc.Debit(ctx, "usr_1", 3000, TypeWithdrawal, "wd_1", nil, false); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	ok, err := svc.VerifyBalance(ctx, "usr_1")
	if err != nil {
		t.Fatalf("VerifyBalance failed: %v", err)
	}
	if !ok {
		t.Error("replayed ledger does not reproduce the wallet balance")
	}

	wallet, _ := svc.GetWallet(ctx, "usr_1")
	if wallet.AvailableBalanceCents != 22500 {
		t.Errorf("expected 22500, got %d", wallet.AvailableBalanceCents)
	}
}

// Concurrent writers to one wallet must serialize, never lose an update.
func TestConcurrentCredits(t *testing.T) {
	store := NewMemoryStore("USD")
	svc := NewService(store)
	ctx := context.Background()

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.Credit(ctx, "usr_1", 100, TypeTicketSaleRevenue, fmt.Sprintf("txn_%d", i), nil, false)
			if err != nil {
				t.Errorf("Credit failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	wallet, err := svc.GetWallet(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if wallet.AvailableBalanceCents != writers*100 {
		t.Errorf("expected %d, got %d", writers*100, wallet.AvailableBalanceCents)
	}

	txns, _ := store.ListTransactions(ctx, wallet.ID, 0)
	if len(txns) != writers {
		t.Errorf("expected %d transactions, got %d", writers, len(txns))
	}
}

type recordingListener struct {
	credits, debits int
}

func (r *recordingListener) WalletCredited(_ context.Context, _ *Wallet, _ *WalletTransaction) {
	r.credits++
}
func (r *recordingListener) WalletDebited(_ context.Context, _ *Wallet, _ *WalletTransaction) {
	r.debits++
}

func TestListenerFiresOnlyWhenAsked(t *testing.T) {
	svc := NewService(NewMemoryStore("USD"))
	listener := &recordingListener{}
	svc.SetListener(listener)
	ctx := context.Background()

	if _, _, err := svc.Credit(ctx, "usr_1", 100, TypeTicketSaleRevenue, "txn_a", nil, true); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if _, _, err := svc.Credit(ctx, "usr_1", 100, TypeTicketSaleRevenue, "txn_b", nil, false); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if _, _, err := svc.Debit(ctx, "usr_1", 50, TypeWithdrawal, "wd_a", nil, true); err != nil {
		t.Fatalf("Debit failed: %v", err)
	}

	if listener.credits != 1 || listener.debits != 1 {
		t.Errorf("listener fired credits=%d debits=%d", listener.credits, listener.debits)
	}
}

func TestMemoryStoreSnapshotRestore(t *testing.T) {
	store := NewMemoryStore("USD")
	ctx := context.Background()

	if _, _, err := store.Credit(ctx, "usr_1", 1000, TypeTicketSaleRevenue, "txn_1", nil); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}

	restore := store.Snapshot()
	if _, _, err := store.Credit(ctx, "usr_1", 9000, TypeEventPaymentReceived, "txn_2", nil); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	restore()

	wallet, err := store.GetWallet(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if wallet.AvailableBalanceCents != 1000 {
		t.Errorf("expected 1000 after restore, got %d", wallet.AvailableBalanceCents)
	}
	if _, err := store.GetTransactionByReference(ctx, "txn_2"); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("rolled-back transaction must not survive, got %v", err)
	}
}
