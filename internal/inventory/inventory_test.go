package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func newTestItem(t *testing.T, store *MemoryStore, capacity *int) *Item {
	t.Helper()
	svc := NewService(store, "USD")
	item, err := svc.Create(context.Background(), CreateRequest{
		EventID:    "evt_1",
		Kind:       KindTicket,
		Name:       "General Admission",
		PriceCents: 3500,
		Capacity:   capacity,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return item
}

func TestReserveConfirmCancel(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(10))

	got, err := svc.Reserve(ctx, item.ID, 4)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got.ReservedCount != 4 || got.SoldCount != 0 {
		t.Errorf("after reserve: reserved=%d sold=%d", got.ReservedCount, got.SoldCount)
	}

	got, err = svc.ConfirmSale(ctx, item.ID, 3)
	if err != nil {
		t.Fatalf("ConfirmSale failed: %v", err)
	}
	if got.ReservedCount != 1 || got.SoldCount != 3 {
		t.Errorf("after confirm: reserved=%d sold=%d", got.ReservedCount, got.SoldCount)
	}

	got, err = svc.CancelReservation(ctx, item.ID, 1)
	if err != nil {
		t.Fatalf("CancelReservation failed: %v", err)
	}
	if got.ReservedCount != 0 || got.SoldCount != 3 {
		t.Errorf("after cancel: reserved=%d sold=%d", got.ReservedCount, got.SoldCount)
	}
	if got.Remaining() != 7 {
		t.Errorf("expected 7 remaining, got %d", got.Remaining())
	}
}

func TestReserveInsufficientInventory(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(5))

	if _, err := svc.Reserve(ctx, item.ID, 6); !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("expected ErrInsufficientInventory, got %v", err)
	}
	if _, err := svc.Reserve(ctx, item.ID, 5); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := svc.Reserve(ctx, item.ID, 1); !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("expected ErrInsufficientInventory when sold out, got %v", err)
	}
}

func TestReserveFlipsSoldOutAndBack(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(2))

	got, err := svc.Reserve(ctx, item.ID, 2)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got.Status != StatusSoldOut {
		t.Errorf("expected sold_out after exhausting capacity, got %s", got.Status)
	}

	got, err = svc.CancelReservation(ctx, item.ID, 1)
	if err != nil {
		t.Fatalf("CancelReservation failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("expected active after freeing capacity, got %s", got.Status)
	}
}

func TestConfirmSaleRequiresReservation(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(10))

	if _, err := svc.ConfirmSale(ctx, item.ID, 1); !errors.Is(err, ErrReservationMismatch) {
		t.Errorf("expected ErrReservationMismatch without a reserve, got %v", err)
	}

	if _, err := svc.Reserve(ctx, item.ID, 2); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if _, err := svc.ConfirmSale(ctx, item.ID, 3); !errors.Is(err, ErrReservationMismatch) {
		t.Errorf("expected ErrReservationMismatch for over-confirm, got %v", err)
	}
}

func TestUnlimitedCapacity(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, nil)

	got, err := svc.Reserve(ctx, item.ID, 100000)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if got.Status != StatusActive {
		t.Errorf("unlimited item must never flip sold_out, got %s", got.Status)
	}
	if got.Remaining() != -1 {
		t.Errorf("expected -1 remaining for unlimited, got %d", got.Remaining())
	}
}

func TestSalesWindow(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	closed := time.Now().Add(-1 * time.Hour)
	item, err := svc.Create(ctx, CreateRequest{
		EventID:    "evt_1",
		Kind:       KindTicket,
		Name:       "Early Bird",
		SalesStart: &past,
		SalesEnd:   &closed,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := svc.Reserve(ctx, item.ID, 1); !errors.Is(err, ErrSalesClosed) {
		t.Errorf("expected ErrSalesClosed, got %v", err)
	}

	ok, err := svc.CheckAvailability(ctx, item.ID, 1)
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if ok {
		t.Error("item past its sales window must not be available")
	}

	got, err := svc.RefreshStatus(ctx, item.ID)
	if err != nil {
		t.Fatalf("RefreshStatus failed: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("expected expired after refresh, got %s", got.Status)
	}

	// Expiry is terminal.
	if _, err := svc.Reserve(ctx, item.ID, 1); !errors.Is(err, ErrSalesClosed) {
		t.Errorf("expected ErrSalesClosed on expired item, got %v", err)
	}
}

// Concurrent checkouts for the same item must never oversell: total units
// reserved across all winners must not exceed capacity.
func TestConcurrentReserveNoOversell(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(50))

	const buyers = 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, item.ID, 1); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 50 {
		t.Errorf("expected exactly 50 successful reserves, got %d", won)
	}
	got, _ := svc.Get(ctx, item.ID)
	if got.ReservedCount != 50 || got.Status != StatusSoldOut {
		t.Errorf("final state reserved=%d status=%s", got.ReservedCount, got.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), "USD")
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateRequest{EventID: "evt_1", Kind: "merch", Name: "Shirt"})
	if err == nil {
		t.Fatal("expected validation error for unknown kind")
	}

	neg := -1
	_, err = svc.Create(ctx, CreateRequest{EventID: "evt_1", Kind: KindTicket, Name: "GA", Capacity: &neg})
	if err == nil {
		t.Fatal("expected validation error for negative capacity")
	}
}

func TestMemoryStoreSnapshotRestore(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, "USD")
	ctx := context.Background()
	item := newTestItem(t, store, intPtr(10))

	if _, err := svc.Reserve(ctx, item.ID, 5); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	restore := store.Snapshot()
	if _, err := svc.ConfirmSale(ctx, item.ID, 5); err != nil {
		t.Fatalf("ConfirmSale failed: %v", err)
	}
	restore()

	got, _ := store.Get(ctx, item.ID)
	if got.ReservedCount != 5 || got.SoldCount != 0 {
		t.Errorf("expected pre-confirm counts after restore, got reserved=%d sold=%d",
			got.ReservedCount, got.SoldCount)
	}
}
