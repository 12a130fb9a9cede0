package payments

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]Payment
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]Payment)}
}

// Snapshot captures the current state and returns a function that restores it.
// Used by the in-memory transaction manager to roll back failed settlements.
func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[string]Payment, len(m.payments))
	for id, p := range m.payments {
		saved[id] = p.Clone()
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.payments = saved
	}
}

func (m *MemoryStore) Create(ctx context.Context, payment *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.payments {
		if existing.PaymentReference == payment.PaymentReference {
			return ErrDuplicateReference
		}
	}
	m.payments[payment.ID] = payment.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payment, ok := m.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := payment.Clone()
	return &clone, nil
}

func (m *MemoryStore) FindPendingByReference(ctx context.Context, reference string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, payment := range m.payments {
		if payment.PaymentReference == reference && payment.Status == StatusPending {
			clone := payment.Clone()
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id string, gateway []byte, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	if payment.Status != StatusPending {
		return ErrInvalidState
	}

	payment.Status = StatusCompleted
	t := paidAt
	payment.PaidAt = &t
	if len(gateway) > 0 {
		payment.Metadata.Gateway = append([]byte(nil), gateway...)
	}
	payment.UpdatedAt = time.Now()
	m.payments[id] = payment
	return nil
}

func (m *MemoryStore) MarkRefunded(ctx context.Context, id, reason string, refundedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	if payment.Status != StatusCompleted || payment.RefundedAt != nil {
		return ErrInvalidState
	}

	payment.Status = StatusRefunded
	t := refundedAt
	payment.RefundedAt = &t
	payment.RefundReason = reason
	payment.UpdatedAt = time.Now()
	m.payments[id] = payment
	return nil
}

func (m *MemoryStore) ListByEvent(ctx context.Context, eventID string, limit int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Payment
	for _, payment := range m.payments {
		if payment.EventID == eventID {
			clone := payment.Clone()
			out = append(out, &clone)
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
