// Package bookings manages the attendee-facing record created when a
// payment settles: line items, attendee details, and check-in state.
package bookings

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/payments"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrAlreadyCheckedIn  = errors.New("booking is already checked in")
	ErrInvalidTransition = errors.New("invalid booking status transition")
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Booking is one attendee's confirmed purchase for an event.
type Booking struct {
	ID             string                `json:"id"`
	Reference      string                `json:"reference"`
	UserID         string                `json:"userId"`
	EventID        string                `json:"eventId"`
	PaymentID      string                `json:"paymentId"`
	Status         Status                `json:"status"`
	Items          []payments.LineItem   `json:"items"`
	TotalCents     int64                 `json:"totalCents"`
	Currency       string                `json:"currency"`
	PaymentStatus  string                `json:"paymentStatus"`
	Attendee       payments.CustomerInfo `json:"attendee"`
	WaiverAccepted bool                  `json:"waiverAccepted"`
	CheckedIn      bool                  `json:"checkedIn"`
	CheckedInAt    *time.Time            `json:"checkedInAt,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// NewReference generates a human-facing booking reference like BK-3F2A1B9C0D.
func NewReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "BK-" + raw[:10]
}

// NewFromPayment builds a confirmed booking from a settled payment's
// metadata snapshot. Called inside the settlement transaction.
func NewFromPayment(p *payments.Payment, now time.Time) *Booking {
	return &Booking{
		ID:            idgen.WithPrefix("bk_"),
		Reference:     NewReference(),
		UserID:        p.UserID,
		EventID:       p.EventID,
		PaymentID:     p.ID,
		Status:        StatusConfirmed,
		Items:         append([]payments.LineItem(nil), p.Metadata.Items...),
		TotalCents:    p.AmountCents,
		Currency:      p.Currency,
		PaymentStatus: string(payments.StatusCompleted),
		Attendee:      p.Metadata.Customer,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// validTransitions holds the allowed one-way status moves.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusRefunded},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the booking.
func (b *Booking) Clone() *Booking {
	out := *b
	out.Items = append([]payments.LineItem(nil), b.Items...)
	if b.CheckedInAt != nil {
		t := *b.CheckedInAt
		out.CheckedInAt = &t
	}
	return &out
}
