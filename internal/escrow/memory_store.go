package escrow

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore creates a new in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

// Snapshot captures the current state and returns a function that restores it.
func (m *MemoryStore) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make(map[string]Account, len(m.accounts))
	for id, a := range m.accounts {
		saved[id] = *a.Clone()
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.accounts = saved
	}
}

func (m *MemoryStore) Create(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = *a.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemoryStore) ListByEvent(ctx context.Context, eventID string) ([]*Account, error) {
	return m.list(func(a *Account) bool { return a.EventID == eventID })
}

func (m *MemoryStore) ListByPhotographer(ctx context.Context, photographerID string) ([]*Account, error) {
	return m.list(func(a *Account) bool { return a.PhotographerID == photographerID })
}

func (m *MemoryStore) list(match func(*Account) bool) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Account
	for _, a := range m.accounts {
		a := a
		if match(&a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from, to Status, releasedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		return ErrInvalidState
	}

	a.Status = to
	if releasedAt != nil {
		t := *releasedAt
		a.ReleasedAt = &t
	} else {
		a.ReleasedAt = nil
	}
	a.UpdatedAt = time.Now()
	m.accounts[id] = a
	return nil
}
