package bookings

import (
	"context"
	"time"
)

// Store persists bookings.
type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	GetByReference(ctx context.Context, reference string) (*Booking, error)
	GetByPayment(ctx context.Context, paymentID string) (*Booking, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error)
	ListByEvent(ctx context.Context, eventID string, limit int) ([]*Booking, error)
	// UpdateStatus applies a one-way lifecycle move. ErrInvalidTransition
	// if the current status does not allow it.
	UpdateStatus(ctx context.Context, id string, to Status) error
	// CheckIn sets the one-way checked_in flag. ErrAlreadyCheckedIn on a
	// second attempt.
	CheckIn(ctx context.Context, id string, at time.Time) error
	SetWaiverAccepted(ctx context.Context, id string) error
}

// Service implements booking business logic.
type Service struct {
	store Store
}

// NewService creates a new booking service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns a booking by ID.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.store.Get(ctx, id)
}

// GetByReference returns a booking by its human-facing reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	return s.store.GetByReference(ctx, reference)
}

// ListByUser returns a user's bookings, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// ListByEvent returns an event's bookings, newest first.
func (s *Service) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByEvent(ctx, eventID, limit)
}

// Cancel moves a booking to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.store.UpdateStatus(ctx, id, StatusCancelled)
}

// Complete moves a booking to completed after the event.
func (s *Service) Complete(ctx context.Context, id string) error {
	return s.store.UpdateStatus(ctx, id, StatusCompleted)
}

// MarkRefunded moves a booking to refunded alongside a payment refund.
func (s *Service) MarkRefunded(ctx context.Context, id string) error {
	return s.store.UpdateStatus(ctx, id, StatusRefunded)
}

// CheckIn records attendee arrival. One-way.
func (s *Service) CheckIn(ctx context.Context, id string) error {
	return s.store.CheckIn(ctx, id, time.Now())
}

// AcceptWaiver records waiver acceptance.
func (s *Service) AcceptWaiver(ctx context.Context, id string) error {
	return s.store.SetWaiverAccepted(ctx, id)
}
