package bookings

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/festivo/festivo/internal/payments"
)

func testPayment() *payments.Payment {
	now := time.Now()
	return &payments.Payment{
		ID:               "pay_test1",
		UserID:           "usr_1",
		EventID:          "evt_1",
		AmountCents:      10000,
		PlatformFeeCents: 1000,
		Currency:         "USD",
		Status:           payments.StatusCompleted,
		PaymentReference: "txn_1",
		Metadata: payments.Snapshot{
			SchemaVersion: payments.SnapshotSchemaVersion,
			Items: []payments.LineItem{
				{ItemID: "tix_ga", Kind: payments.KindTicket, Name: "GA", Quantity: 2, UnitPriceCents: 5000},
			},
			Customer: payments.CustomerInfo{Name: "Ada Lovelace", Email: "ada@example.com"},
		},
		PaidAt:    &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewReference(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := NewReference()
		if !strings.HasPrefix(ref, "BK-") || len(ref) != 13 {
			t.Fatalf("unexpected reference format %q", ref)
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}

func TestNewFromPayment(t *testing.T) {
	p := testPayment()
	b := NewFromPayment(p, time.Now())

	if b.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", b.Status)
	}
	if b.PaymentID != p.ID || b.UserID != p.UserID || b.EventID != p.EventID {
		t.Errorf("booking not linked to payment: %+v", b)
	}
	if b.TotalCents != 10000 || len(b.Items) != 1 {
		t.Errorf("line items not carried over: total=%d items=%d", b.TotalCents, len(b.Items))
	}
	if b.Attendee.Email != "ada@example.com" {
		t.Errorf("attendee not carried over: %+v", b.Attendee)
	}
}

func TestCheckInIsOneWay(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	b := NewFromPayment(testPayment(), time.Now())
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.CheckIn(ctx, b.ID); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	got, _ := store.Get(ctx, b.ID)
	if !got.CheckedIn || got.CheckedInAt == nil {
		t.Errorf("check-in not recorded: %+v", got)
	}

	if err := svc.CheckIn(ctx, b.ID); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Errorf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	b := NewFromPayment(testPayment(), time.Now())
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.MarkRefunded(ctx, b.ID); err != nil {
		t.Fatalf("MarkRefunded failed: %v", err)
	}

	// Refunded is terminal.
	if err := svc.Cancel(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if err := svc.Complete(ctx, b.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestGetByReference(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	b := NewFromPayment(testPayment(), time.Now())
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := svc.GetByReference(ctx, b.Reference)
	if err != nil {
		t.Fatalf("GetByReference failed: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("expected %s, got %s", b.ID, got.ID)
	}

	if _, err := svc.GetByReference(ctx, "BK-MISSING000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptWaiver(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()

	b := NewFromPayment(testPayment(), time.Now())
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.AcceptWaiver(ctx, b.ID); err != nil {
		t.Fatalf("AcceptWaiver failed: %v", err)
	}
	got, _ := store.Get(ctx, b.ID)
	if !got.WaiverAccepted {
		t.Error("waiver acceptance not recorded")
	}
}
