package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/festivo/festivo/internal/bookings"
	"github.com/festivo/festivo/internal/escrow"
	"github.com/festivo/festivo/internal/events"
	"github.com/festivo/festivo/internal/inventory"
	"github.com/festivo/festivo/internal/ledger"
	"github.com/festivo/festivo/internal/payments"
)

// UnitOfWork exposes every store bound to one atomic unit. Writes made
// through it either all commit or all roll back.
type UnitOfWork struct {
	Payments  payments.Store
	Bookings  bookings.Store
	Inventory inventory.Store
	Escrow    escrow.Store
	Ledger    ledger.Store
	Events    events.Store
}

// TxManager runs a function inside one atomic unit.
type TxManager interface {
	InTx(ctx context.Context, fn func(uow *UnitOfWork) error) error
}

// PostgresTxManager implements TxManager with one database transaction
// shared by every store.
type PostgresTxManager struct {
	db        *sql.DB
	payments  *payments.PostgresStore
	bookings  *bookings.PostgresStore
	inventory *inventory.PostgresStore
	escrow    *escrow.PostgresStore
	ledger    *ledger.PostgresStore
	events    *events.PostgresStore
}

// NewPostgresTxManager creates a transaction manager over the given stores.
func NewPostgresTxManager(db *sql.DB, p *payments.PostgresStore, b *bookings.PostgresStore, i *inventory.PostgresStore, e *escrow.PostgresStore, l *ledger.PostgresStore, ev *events.PostgresStore) *PostgresTxManager {
	return &PostgresTxManager{db: db, payments: p, bookings: b, inventory: i, escrow: e, ledger: l, events: ev}
}

func (m *PostgresTxManager) InTx(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}

	uow := &UnitOfWork{
		Payments:  m.payments.WithTx(tx),
		Bookings:  m.bookings.WithTx(tx),
		Inventory: m.inventory.WithTx(tx),
		Escrow:    m.escrow.WithTx(tx),
		Ledger:    m.ledger.WithTx(tx),
		Events:    m.events.WithTx(tx),
	}

	if err := fn(uow); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement transaction: %w", err)
	}
	return nil
}

// MemoryTxManager implements TxManager over the in-memory stores. One mutex
// serializes settlements, and each store's snapshot restores pre-transaction
// state on failure, giving the same all-or-nothing behavior as a database
// rollback.
type MemoryTxManager struct {
	mu        sync.Mutex
	payments  *payments.MemoryStore
	bookings  *bookings.MemoryStore
	inventory *inventory.MemoryStore
	escrow    *escrow.MemoryStore
	ledger    *ledger.MemoryStore
	events    *events.MemoryStore
}

// NewMemoryTxManager creates a transaction manager over the given stores.
func NewMemoryTxManager(p *payments.MemoryStore, b *bookings.MemoryStore, i *inventory.MemoryStore, e *escrow.MemoryStore, l *ledger.MemoryStore, ev *events.MemoryStore) *MemoryTxManager {
	return &MemoryTxManager{payments: p, bookings: b, inventory: i, escrow: e, ledger: l, events: ev}
}

func (m *MemoryTxManager) InTx(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	restores := []func(){
		m.payments.Snapshot(),
		m.bookings.Snapshot(),
		m.inventory.Snapshot(),
		m.escrow.Snapshot(),
		m.ledger.Snapshot(),
	}

	uow := &UnitOfWork{
		Payments:  m.payments,
		Bookings:  m.bookings,
		Inventory: m.inventory,
		Escrow:    m.escrow,
		Ledger:    m.ledger,
		Events:    m.events,
	}

	if err := fn(uow); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}
