package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/validation"
)

// Store persists payments.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	// FindPendingByReference returns the payment for a gateway reference only
	// while it is still pending. ErrNotFound covers both an unknown reference
	// and an already-settled one; callers use that as the idempotency gate.
	// The Postgres implementation locks the row when bound to a transaction.
	FindPendingByReference(ctx context.Context, reference string) (*Payment, error)
	// MarkCompleted moves pending -> completed, stamps paid_at, and merges the
	// raw gateway payload into the metadata snapshot. ErrInvalidState if the
	// payment is no longer pending.
	MarkCompleted(ctx context.Context, id string, gateway []byte, paidAt time.Time) error
	// MarkRefunded moves completed -> refunded once. ErrInvalidState otherwise.
	MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) error
	ListByEvent(ctx context.Context, eventID string, limit int) ([]*Payment, error)
}

// CreateRequest contains the parameters for creating a payment at checkout.
type CreateRequest struct {
	UserID           string       `json:"userId" binding:"required"`
	EventID          string       `json:"eventId" binding:"required"`
	AmountCents      int64        `json:"amountCents"`
	PlatformFeeCents int64        `json:"platformFeeCents"`
	Currency         string       `json:"currency"`
	PaymentMethod    string       `json:"paymentMethod"`
	PaymentReference string       `json:"paymentReference"`
	Items            []LineItem   `json:"items"`
	Customer         CustomerInfo `json:"customer"`
}

// Service implements payment business logic.
type Service struct {
	store    Store
	currency string
}

// NewService creates a new payment service. currency is the deployment's
// settlement currency, applied when a request omits one.
func NewService(store Store, currency string) *Service {
	return &Service{store: store, currency: currency}
}

// Create validates the checkout request and inserts a pending payment with a
// full metadata snapshot.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payment, error) {
	if req.Currency == "" {
		req.Currency = s.currency
	}

	if errs := s.validate(req); len(errs) > 0 {
		return nil, errs
	}

	now := time.Now()
	p := &Payment{
		ID:               idgen.WithPrefix("pay_"),
		UserID:           req.UserID,
		EventID:          req.EventID,
		AmountCents:      req.AmountCents,
		PlatformFeeCents: req.PlatformFeeCents,
		Currency:         req.Currency,
		Status:           StatusPending,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Metadata: Snapshot{
			SchemaVersion: SnapshotSchemaVersion,
			Items:         append([]LineItem(nil), req.Items...),
			Customer:      req.Customer,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return p, nil
}

func (s *Service) validate(req CreateRequest) validation.ValidationErrors {
	errs := validation.Validate(
		validation.Required("user_id", req.UserID),
		validation.Required("event_id", req.EventID),
		validation.Required("payment_reference", req.PaymentReference),
		validation.Required("customer.name", req.Customer.Name),
		validation.ValidEmail("customer.email", req.Customer.Email),
		validation.ValidCurrency("currency", req.Currency),
		validation.PositiveAmount("amount_cents", req.AmountCents),
		validation.NonNegativeAmount("platform_fee_cents", req.PlatformFeeCents),
	)

	if req.PlatformFeeCents > req.AmountCents {
		errs = append(errs, validation.ValidationError{
			Field: "platform_fee_cents", Message: "must not exceed amount",
		})
	}
	if len(req.Items) == 0 {
		errs = append(errs, validation.ValidationError{
			Field: "items", Message: "at least one line item is required",
		})
		return errs
	}

	var total int64
	for i, it := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if it.ItemID == "" {
			errs = append(errs, validation.ValidationError{Field: field + ".item_id", Message: "is required"})
		}
		if it.Kind != KindTicket && it.Kind != KindAddon {
			errs = append(errs, validation.ValidationError{Field: field + ".kind", Message: "must be ticket or addon"})
		}
		if it.Quantity <= 0 {
			errs = append(errs, validation.ValidationError{Field: field + ".quantity", Message: "must be greater than zero"})
		}
		if it.UnitPriceCents < 0 {
			errs = append(errs, validation.ValidationError{Field: field + ".unit_price_cents", Message: "must not be negative"})
		}
		if it.Category == CategoryPhotography && it.PhotographerID == "" {
			errs = append(errs, validation.ValidationError{Field: field + ".photographer_id", Message: "is required for photography add-ons"})
		}
		total += it.TotalCents()
	}

	if total != req.AmountCents {
		errs = append(errs, validation.ValidationError{
			Field: "amount_cents", Message: "must equal the sum of line items",
		})
	}

	return errs
}

// Get returns a payment by ID.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// ListByEvent returns payments for an event, newest first.
func (s *Service) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByEvent(ctx, eventID, limit)
}
