// Package payments tracks one payment record per checkout attempt.
//
// A payment is created in pending status at checkout with a full snapshot of
// what was purchased, so settlement can proceed from the snapshot alone even
// if the referenced rows change later. Only the settlement pipeline moves a
// payment to completed, and only once per gateway reference.
package payments

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrInvalidState       = errors.New("payment is not in a valid state for this operation")
	ErrNotRefundable      = errors.New("payment is not refundable")
	ErrDuplicateReference = errors.New("payment reference already exists")
)

// Status represents the state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"
)

// RefundWindow is how long after capture a payment stays refundable.
const RefundWindow = 30 * 24 * time.Hour

// SnapshotSchemaVersion is the current metadata snapshot schema.
const SnapshotSchemaVersion = 1

// Kind distinguishes inventory line items.
type Kind string

const (
	KindTicket Kind = "ticket"
	KindAddon  Kind = "addon"
)

// CategoryPhotography marks add-ons fulfilled by a photographer. Their
// revenue goes into escrow at settlement instead of straight to the
// organizer payout flow.
const CategoryPhotography = "photography"

// LineItem is one purchased ticket or add-on, denormalized at checkout time.
type LineItem struct {
	ItemID         string `json:"itemId"`
	Kind           Kind   `json:"kind"`
	Category       string `json:"category,omitempty"`
	PhotographerID string `json:"photographerId,omitempty"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// TotalCents returns quantity x unit price.
func (li LineItem) TotalCents() int64 {
	return int64(li.Quantity) * li.UnitPriceCents
}

// CustomerInfo is the attendee contact captured at checkout.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Snapshot is the versioned metadata blob stored on a payment: the line
// items and customer info frozen at checkout, plus the raw gateway response
// merged in at settlement.
type Snapshot struct {
	SchemaVersion int             `json:"schemaVersion"`
	Items         []LineItem      `json:"items"`
	Customer      CustomerInfo    `json:"customer"`
	Gateway       json.RawMessage `json:"gateway,omitempty"`
}

// Validate checks a snapshot read back from storage.
func (s *Snapshot) Validate() error {
	if s.SchemaVersion != SnapshotSchemaVersion {
		return errors.New("unsupported snapshot schema version")
	}
	if len(s.Items) == 0 {
		return errors.New("snapshot has no line items")
	}
	for _, it := range s.Items {
		if it.ItemID == "" || it.Quantity <= 0 || it.UnitPriceCents < 0 {
			return errors.New("snapshot has a malformed line item")
		}
	}
	return nil
}

// TotalCents sums all line items.
func (s *Snapshot) TotalCents() int64 {
	var total int64
	for _, it := range s.Items {
		total += it.TotalCents()
	}
	return total
}

// PhotographyShares returns the photography add-on revenue per photographer.
func (s *Snapshot) PhotographyShares() map[string]int64 {
	shares := make(map[string]int64)
	for _, it := range s.Items {
		if it.Kind == KindAddon && it.Category == CategoryPhotography && it.PhotographerID != "" {
			shares[it.PhotographerID] += it.TotalCents()
		}
	}
	return shares
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Items = append([]LineItem(nil), s.Items...)
	if s.Gateway != nil {
		out.Gateway = append(json.RawMessage(nil), s.Gateway...)
	}
	return out
}

// Payment is one checkout attempt.
type Payment struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	EventID          string     `json:"eventId"`
	AmountCents      int64      `json:"amountCents"`
	PlatformFeeCents int64      `json:"platformFeeCents"`
	Currency         string     `json:"currency"`
	Status           Status     `json:"status"`
	PaymentMethod    string     `json:"paymentMethod,omitempty"`
	PaymentReference string     `json:"paymentReference"`
	Metadata         Snapshot   `json:"metadata"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
	RefundedAt       *time.Time `json:"refundedAt,omitempty"`
	RefundReason     string     `json:"refundReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// OrganizerShareCents is what the organizer wallet receives at settlement.
func (p *Payment) OrganizerShareCents() int64 {
	return p.AmountCents - p.PlatformFeeCents
}

// IsRefundable reports whether the payment can still be refunded: captured,
// not yet refunded, and within the refund window.
func (p *Payment) IsRefundable(now time.Time) bool {
	if p.Status != StatusCompleted || p.RefundedAt != nil || p.PaidAt == nil {
		return false
	}
	return now.Sub(*p.PaidAt) <= RefundWindow
}

// Clone returns a deep copy of the payment.
func (p *Payment) Clone() Payment {
	out := *p
	out.Metadata = p.Metadata.Clone()
	if p.PaidAt != nil {
		t := *p.PaidAt
		out.PaidAt = &t
	}
	if p.RefundedAt != nil {
		t := *p.RefundedAt
		out.RefundedAt = &t
	}
	return out
}
