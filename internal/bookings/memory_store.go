package bookings

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]Booking
}

// NewMemoryStore creates a new in-memory booking store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]Booking)}
}

// Snapshot captures the current state and returns a function that restores it.
func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[string]Booking, len(m.bookings))
	for id, b := range m.bookings {
		saved[id] = *b.Clone()
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.bookings = saved
	}
}

func (m *MemoryStore) Create(ctx context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = *b.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (m *MemoryStore) GetByReference(ctx context.Context, reference string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bookings {
		if b.Reference == reference {
			return b.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetByPayment(ctx context.Context, paymentID string) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.bookings {
		if b.PaymentID == paymentID {
			return b.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Booking, error) {
	return m.list(func(b *Booking) bool { return b.UserID == userID }, limit)
}

func (m *MemoryStore) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Booking, error) {
	return m.list(func(b *Booking) bool { return b.EventID == eventID }, limit)
}

func (m *MemoryStore) list(match func(*Booking) bool, limit int) ([]*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Booking
	for _, b := range m.bookings {
		b := b
		if match(&b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(b.Status, to) {
		return ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	m.bookings[id] = b
	return nil
}

func (m *MemoryStore) CheckIn(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if b.CheckedIn {
		return ErrAlreadyCheckedIn
	}
	b.CheckedIn = true
	t := at
	b.CheckedInAt = &t
	b.UpdatedAt = time.Now()
	m.bookings[id] = b
	return nil
}

func (m *MemoryStore) SetWaiverAccepted(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.WaiverAccepted = true
	b.UpdatedAt = time.Now()
	m.bookings[id] = b
	return nil
}
