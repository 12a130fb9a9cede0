package inventory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests. A single
// mutex stands in for row locks, so the two-phase protocol is race-free
// here too.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryStore creates a new in-memory inventory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

// Snapshot captures the current state and returns a function that restores it.
func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[string]Item, len(m.items))
	for id, it := range m.items {
		saved[id] = *it.Clone()
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items = saved
	}
}

func (m *MemoryStore) Create(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = *item.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item.Clone(), nil
}

func (m *MemoryStore) ListByEvent(ctx context.Context, eventID string) ([]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Item
	for _, item := range m.items {
		if item.EventID == eventID {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, id string, qty int) (*Item, error) {
	return m.mutate(id, func(item *Item) error {
		return item.applyReserve(qty, time.Now())
	})
}

func (m *MemoryStore) ConfirmSale(ctx context.Context, id string, qty int) (*Item, error) {
	return m.mutate(id, func(item *Item) error {
		return item.applyConfirmSale(qty)
	})
}

func (m *MemoryStore) CancelReservation(ctx context.Context, id string, qty int) (*Item, error) {
	return m.mutate(id, func(item *Item) error {
		return item.applyCancelReservation(qty)
	})
}

func (m *MemoryStore) RefreshStatus(ctx context.Context, id string) (*Item, error) {
	return m.mutate(id, func(item *Item) error {
		item.applyRefreshStatus(time.Now())
		return nil
	})
}

func (m *MemoryStore) mutate(id string, apply func(*Item) error) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := apply(&item); err != nil {
		return nil, err
	}
	item.UpdatedAt = time.Now()
	m.items[id] = item
	return item.Clone(), nil
}
