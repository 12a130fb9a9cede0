// Package escrow holds photographer earnings tied to an event until the
// organizer releases them after the event's grace period.
package escrow

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/festivo/festivo/internal/idgen"
)

var (
	ErrNotFound     = errors.New("escrow account not found")
	ErrInvalidState = errors.New("escrow is not in a valid state for this operation")
	ErrUnauthorized = errors.New("actor is not authorized for this escrow")
)

// Status is the lifecycle state of an escrow account. held is the only
// non-terminal state; every transition out of it is one-way.
type Status string

const (
	StatusHeld      Status = "held"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Account is one escrow hold: funds owed to a photographer for one event,
// funded by a settled payment's photography add-ons.
type Account struct {
	ID               string          `json:"id"`
	EventID          string          `json:"eventId"`
	PhotographerID   string          `json:"photographerId"`
	AmountCents      int64           `json:"amountCents"`
	PlatformFeeCents int64           `json:"platformFeeCents"`
	Currency         string          `json:"currency"`
	Status           Status          `json:"status"`
	HeldAt           time.Time       `json:"heldAt"`
	ReleaseDate      time.Time       `json:"releaseDate"`
	ReleasedAt       *time.Time      `json:"releasedAt,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// PayoutCents is what the photographer receives on release.
func (a *Account) PayoutCents() int64 {
	return a.AmountCents - a.PlatformFeeCents
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	out := *a
	if a.ReleasedAt != nil {
		t := *a.ReleasedAt
		out.ReleasedAt = &t
	}
	if a.Metadata != nil {
		out.Metadata = append(json.RawMessage(nil), a.Metadata...)
	}
	return &out
}

// NewAccount builds a held escrow account. The platform fee is computed and
// persisted now so a later fee-schedule change cannot alter an existing hold.
func NewAccount(eventID, photographerID string, amountCents int64, feeBps int64, currency string, releaseDate time.Time, metadata json.RawMessage) *Account {
	now := time.Now()
	return &Account{
		ID:               idgen.WithPrefix("esc_"),
		EventID:          eventID,
		PhotographerID:   photographerID,
		AmountCents:      amountCents,
		PlatformFeeCents: amountCents * feeBps / 10000,
		Currency:         currency,
		Status:           StatusHeld,
		HeldAt:           now,
		ReleaseDate:      releaseDate,
		Metadata:         metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
