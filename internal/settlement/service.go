package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/festivo/festivo/internal/bookings"
	"github.com/festivo/festivo/internal/escrow"
	"github.com/festivo/festivo/internal/gateway"
	"github.com/festivo/festivo/internal/ledger"
	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
	"github.com/festivo/festivo/internal/notify"
	"github.com/festivo/festivo/internal/payments"
	"github.com/festivo/festivo/internal/traces"
)

// ChargeVerifier cross-checks a charge with the provider before settling.
type ChargeVerifier interface {
	VerifyCharge(ctx context.Context, reference string) (*gateway.Charge, error)
}

// Config carries the settlement policy knobs.
type Config struct {
	WebhookSecret   string
	PlatformFeeBps  int64
	EscrowGraceDays int
	Currency        string
}

// Service is the settlement orchestrator.
type Service struct {
	txm      TxManager
	notifier notify.Notifier
	verifier ChargeVerifier
	cfg      Config
}

// NewService creates the orchestrator. notifier may not be nil; pass a
// dispatcher with an empty URL to disable delivery.
func NewService(txm TxManager, notifier notify.Notifier, cfg Config) *Service {
	return &Service{txm: txm, notifier: notifier, cfg: cfg}
}

// SetVerifier enables provider-side charge verification before settling.
func (s *Service) SetVerifier(v ChargeVerifier) {
	s.verifier = v
}

// VerifySignature checks a webhook signature against the configured secret.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	return VerifySignature(body, signature, s.cfg.WebhookSecret)
}

// settled captures what a successful settlement produced, for post-commit
// notifications.
type settled struct {
	payment *payments.Payment
	booking *bookings.Booking
	shares  map[string]int64
}

// HandleEvent processes one verified webhook delivery. Only a charge
// success settles; every other event is acknowledged and dropped. A
// reference with no pending payment is a no-op success so at-least-once
// delivery terminates.
func (s *Service) HandleEvent(ctx context.Context, p *Payload, raw json.RawMessage) (Outcome, error) {
	if p.Event != EventChargeSucceeded {
		logging.L(ctx).Debug("ignoring webhook event", "event", p.Event)
		return OutcomeIgnored, nil
	}
	if p.Data.Reference == "" {
		return OutcomeIgnored, nil
	}
	return s.settle(ctx, p.Data, raw)
}

func (s *Service) settle(ctx context.Context, data Data, raw json.RawMessage) (Outcome, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.settle",
		traces.PaymentReference(data.Reference))
	defer span.End()

	log := logging.L(ctx).With("payment_reference", data.Reference)

	if s.verifier != nil {
		charge, err := s.verifier.VerifyCharge(ctx, data.Reference)
		if err != nil {
			metrics.SettlementsTotal.WithLabelValues("verify_failed").Inc()
			return "", fmt.Errorf("provider verification failed: %w", err)
		}
		if !charge.Succeeded() {
			log.Warn("provider does not consider the charge settled", "status", charge.Status)
			metrics.SettlementsTotal.WithLabelValues("verify_failed").Inc()
			return OutcomeNoop, nil
		}
	}

	start := time.Now()
	var result *settled
	err := s.txm.InTx(ctx, func(uow *UnitOfWork) error {
		var err error
		result, err = s.apply(ctx, uow, data, raw)
		return err
	})
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrNoop):
		// Already settled or unknown reference. Ack so the provider stops
		// retrying.
		log.Info("webhook acknowledged as no-op")
		metrics.SettlementsTotal.WithLabelValues("noop").Inc()
		return OutcomeNoop, nil
	case err != nil:
		// The transaction rolled back; the payment is still pending and the
		// provider's retry will re-enter the pipeline.
		log.Error("settlement aborted", "error", err)
		metrics.SettlementsTotal.WithLabelValues("aborted").Inc()
		return "", err
	}

	metrics.SettlementsTotal.WithLabelValues("completed").Inc()
	log.Info("settlement completed",
		"payment_id", result.payment.ID,
		"booking_reference", result.booking.Reference,
		"organizer_share_cents", result.payment.OrganizerShareCents())

	s.notifySettled(ctx, result)
	return OutcomeSettled, nil
}

// apply runs the settlement state machine inside one atomic unit:
// completed payment, then booking, then inventory, then escrow, then the
// organizer wallet. Inventory runs before any money moves so exhaustion
// aborts cheaply, and the wallet credit comes last so it only ever applies
// to a fully valid booking.
func (s *Service) apply(ctx context.Context, uow *UnitOfWork, data Data, raw json.RawMessage) (*settled, error) {
	p, err := uow.Payments.FindPendingByReference(ctx, data.Reference)
	if errors.Is(err, payments.ErrNotFound) {
		return nil, ErrNoop
	}
	if err != nil {
		return nil, err
	}

	if data.AmountCents > 0 && data.AmountCents != p.AmountCents {
		return nil, fmt.Errorf("%w: webhook %d, payment %d",
			ErrAmountMismatch, data.AmountCents, p.AmountCents)
	}

	now := time.Now()
	if err := uow.Payments.MarkCompleted(ctx, p.ID, raw, now); err != nil {
		return nil, fmt.Errorf("failed to complete payment: %w", err)
	}
	p.Status = payments.StatusCompleted
	p.PaidAt = &now

	booking := bookings.NewFromPayment(p, now)
	if err := uow.Bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	for _, item := range p.Metadata.Items {
		if _, err := uow.Inventory.ConfirmSale(ctx, item.ItemID, item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to confirm sale for %s: %w", item.ItemID, err)
		}
	}

	event, err := uow.Events.Get(ctx, p.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", p.EventID, err)
	}

	shares := p.Metadata.PhotographyShares()
	if len(shares) > 0 {
		releaseDate := event.StartsAt.AddDate(0, 0, s.cfg.EscrowGraceDays)
		meta, _ := json.Marshal(map[string]string{
			"paymentId":        p.ID,
			"bookingReference": booking.Reference,
		})
		for photographerID, amount := range shares {
			account := escrow.NewAccount(p.EventID, photographerID, amount,
				s.cfg.PlatformFeeBps, p.Currency, releaseDate, meta)
			if err := uow.Escrow.Create(ctx, account); err != nil {
				return nil, fmt.Errorf("failed to open escrow for %s: %w", photographerID, err)
			}
			metrics.EscrowsTotal.WithLabelValues(string(escrow.StatusHeld)).Inc()
		}
	}

	walletMeta, _ := json.Marshal(map[string]string{
		"paymentId": p.ID,
		"eventId":   p.EventID,
	})
	_, _, err = uow.Ledger.Credit(ctx, event.OrganizerID, p.OrganizerShareCents(),
		ledger.TypeEventPaymentReceived, p.PaymentReference, walletMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to credit organizer wallet: %w", err)
	}

	return &settled{payment: p, booking: booking, shares: shares}, nil
}

// notifySettled runs after commit. Failures here are the notifier's
// problem; a missing customer email skips the email sends and nothing else.
func (s *Service) notifySettled(ctx context.Context, r *settled) {
	email := r.payment.Metadata.Customer.Email
	if email == "" {
		logging.L(ctx).Warn("settled payment has no customer email, skipping email notifications",
			"payment_id", r.payment.ID)
	}

	s.notifier.SendPaymentConfirmation(ctx, email, map[string]any{
		"paymentId":   r.payment.ID,
		"amountCents": r.payment.AmountCents,
		"currency":    r.payment.Currency,
	})
	s.notifier.SendBookingConfirmation(ctx, email, map[string]any{
		"bookingReference": r.booking.Reference,
		"eventId":          r.booking.EventID,
	})
	s.notifier.SendTicketDelivery(ctx, email, map[string]any{
		"bookingReference": r.booking.Reference,
	})
	for photographerID, amount := range r.shares {
		s.notifier.SendPhotographerAssignment(ctx, photographerID, map[string]any{
			"eventId":     r.payment.EventID,
			"amountCents": amount,
		})
	}
}

// Refund processes a refund for a completed payment: marks the payment and
// its booking refunded and claws the organizer share back from the wallet.
// Inventory and escrow are left untouched; voiding a photographer
// obligation is the organizer's explicit call via the escrow API.
func (s *Service) Refund(ctx context.Context, paymentID, reason string) (*payments.Payment, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.refund",
		traces.PaymentID(paymentID))
	defer span.End()

	var refunded *payments.Payment
	err := s.txm.InTx(ctx, func(uow *UnitOfWork) error {
		p, err := uow.Payments.Get(ctx, paymentID)
		if err != nil {
			return err
		}
		now := time.Now()
		if !p.IsRefundable(now) {
			return ErrNotRefundable
		}

		if err := uow.Payments.MarkRefunded(ctx, p.ID, reason, now); err != nil {
			return err
		}
		p.Status = payments.StatusRefunded
		p.RefundedAt = &now
		p.RefundReason = reason

		booking, err := uow.Bookings.GetByPayment(ctx, p.ID)
		if err == nil {
			if err := uow.Bookings.UpdateStatus(ctx, booking.ID, bookings.StatusRefunded); err != nil {
				return fmt.Errorf("failed to mark booking refunded: %w", err)
			}
		} else if !errors.Is(err, bookings.ErrNotFound) {
			return err
		}

		event, err := uow.Events.Get(ctx, p.EventID)
		if err != nil {
			return fmt.Errorf("failed to load event %s: %w", p.EventID, err)
		}

		meta, _ := json.Marshal(map[string]string{
			"paymentId": p.ID,
			"reason":    reason,
		})
		_, _, err = uow.Ledger.Debit(ctx, event.OrganizerID, p.OrganizerShareCents(),
			ledger.TypeRefundDeduction, "RF-"+p.PaymentReference, meta)
		if err != nil {
			return fmt.Errorf("failed to debit organizer wallet: %w", err)
		}

		refunded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.SendRefundProcessed(ctx, refunded.Metadata.Customer.Email, map[string]any{
		"paymentId":   refunded.ID,
		"amountCents": refunded.AmountCents,
		"reason":      reason,
	})
	return refunded, nil
}
