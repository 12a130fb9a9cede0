package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/festivo/festivo/internal/events"
	"github.com/festivo/festivo/internal/ledger"
	"github.com/festivo/festivo/internal/payments"
)

type mockPaymentLister struct {
	payments []*payments.Payment
}

func (m *mockPaymentLister) ListByEvent(_ context.Context, eventID string, _ int) ([]*payments.Payment, error) {
	var out []*payments.Payment
	for _, p := range m.payments {
		if p.EventID == eventID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fixture struct {
	store    *MemoryStore
	ledger   *ledger.Service
	wallets  *ledger.MemoryStore
	events   *events.MemoryStore
	payments *mockPaymentLister
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		wallets:  ledger.NewMemoryStore("USD"),
		events:   events.NewMemoryStore(),
		payments: &mockPaymentLister{},
	}
	f.ledger = ledger.NewService(f.wallets)
	f.svc = NewService(f.store, f.ledger, f.events, f.payments)

	err := f.events.Create(context.Background(), &events.Event{
		ID:          "evt_1",
		OrganizerID: "org_1",
		Name:        "Summer Festival",
		StartsAt:    time.Now().Add(30 * 24 * time.Hour),
		Currency:    "USD",
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	return f
}

func (f *fixture) hold(t *testing.T, amountCents int64) *Account {
	t.Helper()
	a := NewAccount("evt_1", "ph_1", amountCents, 1000, "USD",
		time.Now().Add(37*24*time.Hour), json.RawMessage(`{"paymentId":"pay_1"}`))
	if err := f.store.Create(context.Background(), a); err != nil {
		t.Fatalf("failed to create escrow: %v", err)
	}
	return a
}

func TestNewAccountFeePersistedAtOpen(t *testing.T) {
	a := NewAccount("evt_1", "ph_1", 3000, 1000, "USD", time.Now(), nil)
	if a.PlatformFeeCents != 300 {
		t.Errorf("expected fee 300 at 10%%, got %d", a.PlatformFeeCents)
	}
	if a.PayoutCents() != 2700 {
		t.Errorf("expected payout 2700, got %d", a.PayoutCents())
	}
	if a.Status != StatusHeld {
		t.Errorf("expected held, got %s", a.Status)
	}
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.hold(t, 3000)

	got, err := f.svc.Release(ctx, a.ID, "org_1")
	if err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if got.Status != StatusReleased || got.ReleasedAt == nil {
		t.Errorf("release not recorded: %+v", got)
	}

	wallet, err := f.ledger.GetWallet(ctx, "ph_1")
	if err != nil {
		t.Fatalf("photographer wallet missing: %v", err)
	}
	if wallet.AvailableBalanceCents != 2700 {
		t.Errorf("expected payout 2700, got %d", wallet.AvailableBalanceCents)
	}
}

func TestReleaseRequiresOrganizer(t *testing.T) {
	f := newFixture(t)
	a := f.hold(t, 3000)

	if _, err := f.svc.Release(context.Background(), a.ID, "usr_other"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	got, _ := f.store.Get(context.Background(), a.ID)
	if got.Status != StatusHeld {
		t.Errorf("unauthorized release must not move state, got %s", got.Status)
	}
}

func TestReleaseIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.hold(t, 3000)

	if _, err := f.svc.Release(ctx, a.ID, "org_1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := f.svc.Release(ctx, a.ID, "org_1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on second release, got %v", err)
	}

	// Even a racing release that saw the old status cannot pay twice: the
	// credit is idempotent on the escrow ID.
	wallet, _ := f.ledger.GetWallet(ctx, "ph_1")
	if wallet.AvailableBalanceCents != 2700 {
		t.Errorf("expected a single payout, got %d", wallet.AvailableBalanceCents)
	}
}

func TestCancelAndRefundAreTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.hold(t, 3000)
	if _, err := f.svc.Cancel(ctx, a.ID, "org_1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if _, err := f.svc.Release(ctx, a.ID, "org_1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState after cancel, got %v", err)
	}

	b := f.hold(t, 2000)
	if _, err := f.svc.RefundToPayer(ctx, b.ID, "org_1"); err != nil {
		t.Fatalf("RefundToPayer failed: %v", err)
	}
	got, _ := f.store.Get(ctx, b.ID)
	if got.Status != StatusRefunded {
		t.Errorf("expected refunded, got %s", got.Status)
	}

	// Neither path pays the photographer.
	if _, err := f.ledger.GetWallet(ctx, "ph_1"); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Errorf("voided escrow must not credit a wallet, got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held := f.hold(t, 3000)
	released := f.hold(t, 2000)
	if _, err := f.svc.Release(ctx, released.ID, "org_1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	_ = held

	f.payments.payments = []*payments.Payment{
		{
			EventID: "evt_1",
			Status:  payments.StatusCompleted,
			Metadata: payments.Snapshot{
				SchemaVersion: payments.SnapshotSchemaVersion,
				Items: []payments.LineItem{
					{ItemID: "tix", Kind: payments.KindTicket, Quantity: 1, UnitPriceCents: 10000},
					{ItemID: "ph", Kind: payments.KindAddon, Category: payments.CategoryPhotography,
						PhotographerID: "ph_1", Quantity: 1, UnitPriceCents: 5000},
				},
			},
		},
	}

	report, err := f.svc.Reconcile(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !report.Consistent {
		t.Errorf("expected consistent report: %+v", report)
	}
	if report.HeldCents != 3000 || report.PaidOutCents != 2000 || report.PhotographyCents != 5000 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.hold(t, 3000)

	// Completed photography revenue exceeds what escrow accounts for.
	f.payments.payments = []*payments.Payment{
		{
			EventID: "evt_1",
			Status:  payments.StatusCompleted,
			Metadata: payments.Snapshot{
				SchemaVersion: payments.SnapshotSchemaVersion,
				Items: []payments.LineItem{
					{ItemID: "ph", Kind: payments.KindAddon, Category: payments.CategoryPhotography,
						PhotographerID: "ph_1", Quantity: 1, UnitPriceCents: 9000},
				},
			},
		},
	}

	report, err := f.svc.Reconcile(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Consistent {
		t.Errorf("expected drift to be detected: %+v", report)
	}
}
