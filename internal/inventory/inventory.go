// Package inventory guards ticket and add-on capacity with a two-phase
// reserve/confirm protocol: reserve at checkout, confirm at settlement,
// cancel if checkout never completes.
package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound              = errors.New("inventory item not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrReservationMismatch   = errors.New("reserved count is less than requested quantity")
	ErrSalesClosed           = errors.New("item is not on sale")
	ErrInvalidQuantity       = errors.New("quantity must be greater than zero")
)

// Kind distinguishes tickets from add-ons.
type Kind string

const (
	KindTicket Kind = "ticket"
	KindAddon  Kind = "addon"
)

// Status is the lifecycle state of an inventory item.
type Status string

const (
	StatusActive  Status = "active"
	StatusSoldOut Status = "sold_out"
	StatusExpired Status = "expired"
)

// Item is a sellable ticket type or add-on belonging to an event.
// A nil Capacity means unlimited.
type Item struct {
	ID            string     `json:"id"`
	EventID       string     `json:"eventId"`
	Kind          Kind       `json:"kind"`
	Name          string     `json:"name"`
	PriceCents    int64      `json:"priceCents"`
	Currency      string     `json:"currency"`
	Capacity      *int       `json:"capacity,omitempty"`
	SoldCount     int        `json:"soldCount"`
	ReservedCount int        `json:"reservedCount"`
	Status        Status     `json:"status"`
	SalesStart    *time.Time `json:"salesStart,omitempty"`
	SalesEnd      *time.Time `json:"salesEnd,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Remaining returns how many units can still be reserved, or -1 when
// capacity is unlimited.
func (i *Item) Remaining() int {
	if i.Capacity == nil {
		return -1
	}
	return *i.Capacity - i.SoldCount - i.ReservedCount
}

func (i *Item) withinSalesWindow(now time.Time) bool {
	if i.SalesStart != nil && now.Before(*i.SalesStart) {
		return false
	}
	if i.SalesEnd != nil && now.After(*i.SalesEnd) {
		return false
	}
	return true
}

// CheckAvailability reports whether qty units can be reserved right now.
func (i *Item) CheckAvailability(qty int, now time.Time) bool {
	if qty <= 0 || i.Status != StatusActive || !i.withinSalesWindow(now) {
		return false
	}
	if i.Capacity == nil {
		return true
	}
	return i.Remaining() >= qty
}

// The apply* functions are the single source of truth for count and status
// transitions. Both stores call them while holding their respective locks,
// so the Postgres and in-memory paths cannot drift apart.

func (i *Item) applyReserve(qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.Status == StatusExpired || !i.withinSalesWindow(now) {
		return ErrSalesClosed
	}
	if i.Status == StatusSoldOut {
		return ErrInsufficientInventory
	}
	if i.Capacity != nil && i.Remaining() < qty {
		return ErrInsufficientInventory
	}
	i.ReservedCount += qty
	if i.Capacity != nil && i.Remaining() == 0 {
		i.Status = StatusSoldOut
	}
	return nil
}

func (i *Item) applyConfirmSale(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.ReservedCount < qty {
		return ErrReservationMismatch
	}
	i.ReservedCount -= qty
	i.SoldCount += qty
	if i.Capacity != nil && i.SoldCount+i.ReservedCount >= *i.Capacity {
		i.Status = StatusSoldOut
	}
	return nil
}

func (i *Item) applyCancelReservation(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if i.ReservedCount < qty {
		return ErrReservationMismatch
	}
	i.ReservedCount -= qty
	if i.Status == StatusSoldOut && (i.Capacity == nil || i.Remaining() > 0) {
		i.Status = StatusActive
	}
	return nil
}

// applyRefreshStatus expires the item once its sales window has closed.
// Expiry only happens here, never spontaneously during other transitions.
func (i *Item) applyRefreshStatus(now time.Time) {
	if i.Status == StatusExpired {
		return
	}
	if i.SalesEnd != nil && now.After(*i.SalesEnd) {
		i.Status = StatusExpired
	}
}

// Clone returns a deep copy of the item.
func (i *Item) Clone() *Item {
	out := *i
	if i.Capacity != nil {
		c := *i.Capacity
		out.Capacity = &c
	}
	if i.SalesStart != nil {
		t := *i.SalesStart
		out.SalesStart = &t
	}
	if i.SalesEnd != nil {
		t := *i.SalesEnd
		out.SalesEnd = &t
	}
	return &out
}
