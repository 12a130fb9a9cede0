package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/events"
	"github.com/festivo/festivo/internal/ledger"
	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
	"github.com/festivo/festivo/internal/payments"
)

// Store persists escrow accounts. Transition is a compare-and-set: it moves
// the account from one status to another only if it currently holds the
// expected status, and fails with ErrInvalidState otherwise.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Account, error)
	ListByPhotographer(ctx context.Context, photographerID string) ([]*Account, error)
	Transition(ctx context.Context, id string, from, to Status, releasedAt *time.Time) error
}

// Ledger is the wallet-crediting surface the escrow service needs.
type Ledger interface {
	Credit(ctx context.Context, userID string, amountCents int64, txnType ledger.TransactionType, reference string, metadata json.RawMessage, notify bool) (*ledger.Wallet, *ledger.WalletTransaction, error)
}

// EventDirectory resolves events for organizer authorization.
type EventDirectory interface {
	Get(ctx context.Context, id string) (*events.Event, error)
}

// PaymentLister lists an event's payments for reconciliation.
type PaymentLister interface {
	ListByEvent(ctx context.Context, eventID string, limit int) ([]*payments.Payment, error)
}

// Service implements escrow business logic.
type Service struct {
	store    Store
	ledger   Ledger
	events   EventDirectory
	payments PaymentLister
}

// NewService creates a new escrow service.
func NewService(store Store, l Ledger, ev EventDirectory, pl PaymentLister) *Service {
	return &Service{store: store, ledger: l, events: ev, payments: pl}
}

// Get returns an escrow account by ID.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.Get(ctx, id)
}

// ListByEvent returns all escrow accounts for an event.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]*Account, error) {
	return s.store.ListByEvent(ctx, eventID)
}

// ListByPhotographer returns a photographer's escrow accounts.
func (s *Service) ListByPhotographer(ctx context.Context, photographerID string) ([]*Account, error) {
	return s.store.ListByPhotographer(ctx, photographerID)
}

// Release pays out a held escrow to the photographer's wallet. Only the
// organizer of the escrow's event may trigger it.
//
// The status flip and the wallet credit are not a single transaction; the
// flip is a compare-and-set, the credit is idempotent on the escrow ID, and
// a failed credit compensates by flipping the escrow back to held. Retrying
// a release therefore converges without ever double-paying.
func (s *Service) Release(ctx context.Context, id, actorID string) (*Account, error) {
	account, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Status != StatusHeld {
		return nil, ErrInvalidState
	}

	event, err := s.events.Get(ctx, account.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow event: %w", err)
	}
	if event.OrganizerID != actorID {
		return nil, ErrUnauthorized
	}

	now := time.Now()
	if err := s.store.Transition(ctx, id, StatusHeld, StatusReleased, &now); err != nil {
		return nil, err
	}

	_, _, err = s.ledger.Credit(ctx, account.PhotographerID, account.PayoutCents(),
		ledger.TypeEscrowRelease, "esc:"+account.ID, account.Metadata, true)
	if err != nil {
		// Put the hold back so a retry can attempt the payout again. If the
		// compensation itself fails the escrow stays released with no credit,
		// which reconciliation surfaces.
		if cerr := s.store.Transition(ctx, id, StatusReleased, StatusHeld, nil); cerr != nil {
			logging.L(ctx).Error("escrow release compensation failed",
				"escrow_id", id, "credit_error", err, "compensation_error", cerr)
		}
		return nil, fmt.Errorf("failed to credit photographer wallet: %w", err)
	}

	metrics.EscrowsTotal.WithLabelValues(string(StatusReleased)).Inc()
	account.Status = StatusReleased
	account.ReleasedAt = &now
	return account, nil
}

// Cancel voids a held escrow without paying anyone.
func (s *Service) Cancel(ctx context.Context, id, actorID string) (*Account, error) {
	return s.terminate(ctx, id, actorID, StatusCancelled)
}

// RefundToPayer marks a held escrow as refunded to the original payer. The
// money itself travels back through the payment refund flow; this records
// that the photographer obligation is void.
func (s *Service) RefundToPayer(ctx context.Context, id, actorID string) (*Account, error) {
	return s.terminate(ctx, id, actorID, StatusRefunded)
}

func (s *Service) terminate(ctx context.Context, id, actorID string, to Status) (*Account, error) {
	account, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	event, err := s.events.Get(ctx, account.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow event: %w", err)
	}
	if event.OrganizerID != actorID {
		return nil, ErrUnauthorized
	}

	if err := s.store.Transition(ctx, id, StatusHeld, to, nil); err != nil {
		return nil, err
	}
	metrics.EscrowsTotal.WithLabelValues(string(to)).Inc()
	account.Status = to
	return account, nil
}

// Report is the result of reconciling an event's escrow against its
// settled photography revenue.
type Report struct {
	EventID          string `json:"eventId"`
	HeldCents        int64  `json:"heldCents"`
	PaidOutCents     int64  `json:"paidOutCents"`
	PhotographyCents int64  `json:"photographyCents"`
	VoidedCents      int64  `json:"voidedCents"`
	Consistent       bool   `json:"consistent"`
}

// Reconcile checks the escrow invariant for one event: held amounts plus
// amounts already attributed to released or voided escrows must equal the
// photography add-on revenue of the event's completed payments.
func (s *Service) Reconcile(ctx context.Context, eventID string) (*Report, error) {
	accounts, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := &Report{EventID: eventID}
	for _, a := range accounts {
		switch a.Status {
		case StatusHeld:
			report.HeldCents += a.AmountCents
		case StatusReleased:
			report.PaidOutCents += a.AmountCents
		case StatusCancelled, StatusRefunded:
			report.VoidedCents += a.AmountCents
		}
	}

	pays, err := s.payments.ListByEvent(ctx, eventID, 0)
	if err != nil {
		return nil, err
	}
	for _, p := range pays {
		if p.Status != payments.StatusCompleted && p.Status != payments.StatusRefunded {
			continue
		}
		for _, share := range p.Metadata.PhotographyShares() {
			report.PhotographyCents += share
		}
	}

	report.Consistent = report.HeldCents+report.PaidOutCents+report.VoidedCents == report.PhotographyCents
	if !report.Consistent {
		logging.L(ctx).Error("escrow reconciliation mismatch",
			"event_id", eventID,
			"held", report.HeldCents,
			"paid_out", report.PaidOutCents,
			"voided", report.VoidedCents,
			"photography", report.PhotographyCents)
	}
	return report, nil
}
