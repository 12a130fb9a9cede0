package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/metrics"
	"github.com/festivo/festivo/internal/validation"
)

// Store persists inventory items. The mutating operations are atomic:
// implementations re-check availability under a lock before applying.
type Store interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Item, error)
	Reserve(ctx context.Context, id string, qty int) (*Item, error)
	ConfirmSale(ctx context.Context, id string, qty int) (*Item, error)
	CancelReservation(ctx context.Context, id string, qty int) (*Item, error)
	RefreshStatus(ctx context.Context, id string) (*Item, error)
}

// CreateRequest contains the parameters for creating an inventory item.
type CreateRequest struct {
	EventID    string     `json:"eventId" binding:"required"`
	Kind       Kind       `json:"kind" binding:"required"`
	Name       string     `json:"name" binding:"required"`
	PriceCents int64      `json:"priceCents"`
	Currency   string     `json:"currency"`
	Capacity   *int       `json:"capacity"`
	SalesStart *time.Time `json:"salesStart"`
	SalesEnd   *time.Time `json:"salesEnd"`
}

// Service implements inventory business logic.
type Service struct {
	store    Store
	currency string
}

// NewService creates a new inventory service.
func NewService(store Store, currency string) *Service {
	return &Service{store: store, currency: currency}
}

// Create validates and inserts a new active inventory item.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Item, error) {
	if req.Currency == "" {
		req.Currency = s.currency
	}

	errs := validation.Validate(
		validation.Required("event_id", req.EventID),
		validation.Required("name", req.Name),
		validation.ValidCurrency("currency", req.Currency),
		validation.NonNegativeAmount("price_cents", req.PriceCents),
	)
	if req.Kind != KindTicket && req.Kind != KindAddon {
		errs = append(errs, validation.ValidationError{Field: "kind", Message: "must be ticket or addon"})
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		errs = append(errs, validation.ValidationError{Field: "capacity", Message: "must not be negative"})
	}
	if req.SalesStart != nil && req.SalesEnd != nil && req.SalesEnd.Before(*req.SalesStart) {
		errs = append(errs, validation.ValidationError{Field: "sales_end", Message: "must be after sales_start"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	now := time.Now()
	prefix := "tix_"
	if req.Kind == KindAddon {
		prefix = "add_"
	}
	item := &Item{
		ID:         idgen.WithPrefix(prefix),
		EventID:    req.EventID,
		Kind:       req.Kind,
		Name:       validation.SanitizeString(req.Name, 200),
		PriceCents: req.PriceCents,
		Currency:   req.Currency,
		Capacity:   req.Capacity,
		Status:     StatusActive,
		SalesStart: req.SalesStart,
		SalesEnd:   req.SalesEnd,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}
	return item, nil
}

// Get returns an item by ID.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.store.Get(ctx, id)
}

// ListByEvent returns all items for an event.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]*Item, error) {
	return s.store.ListByEvent(ctx, eventID)
}

// CheckAvailability reports whether qty units of an item can be reserved.
func (s *Service) CheckAvailability(ctx context.Context, id string, qty int) (bool, error) {
	item, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return item.CheckAvailability(qty, time.Now()), nil
}

// Reserve holds qty units at checkout time.
func (s *Service) Reserve(ctx context.Context, id string, qty int) (*Item, error) {
	item, err := s.store.Reserve(ctx, id, qty)
	if err != nil {
		countRejection("reserve", err)
		return nil, err
	}
	return item, nil
}

// ConfirmSale moves qty units from reserved to sold at settlement time.
func (s *Service) ConfirmSale(ctx context.Context, id string, qty int) (*Item, error) {
	item, err := s.store.ConfirmSale(ctx, id, qty)
	if err != nil {
		countRejection("confirm", err)
		return nil, err
	}
	return item, nil
}

// CancelReservation releases qty reserved units after a failed checkout.
func (s *Service) CancelReservation(ctx context.Context, id string, qty int) (*Item, error) {
	item, err := s.store.CancelReservation(ctx, id, qty)
	if err != nil {
		countRejection("cancel", err)
		return nil, err
	}
	return item, nil
}

// RefreshStatus expires the item if its sales window has closed.
func (s *Service) RefreshStatus(ctx context.Context, id string) (*Item, error) {
	return s.store.RefreshStatus(ctx, id)
}

func countRejection(op string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ErrInsufficientInventory):
		reason = "insufficient"
	case errors.Is(err, ErrReservationMismatch):
		reason = "mismatch"
	case errors.Is(err, ErrSalesClosed):
		reason = "closed"
	case errors.Is(err, ErrNotFound):
		reason = "not_found"
	case errors.Is(err, ErrInvalidQuantity):
		reason = "invalid_quantity"
	}
	metrics.InventoryRejectionsTotal.WithLabelValues(op + "_" + reason).Inc()
}
