// Package notify delivers post-settlement notifications to an external
// collaborator service (email, push). Deliveries are fire-and-forget:
// failures are logged and counted, never retried, and never allowed to
// affect money movement.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
)

// EventType classifies an outbound notification.
type EventType string

const (
	EventPaymentConfirmation    EventType = "payment.confirmation"
	EventBookingConfirmation    EventType = "booking.confirmation"
	EventTicketDelivery         EventType = "ticket.delivery"
	EventPhotographerAssignment EventType = "photographer.assignment"
	EventEscrowReleased         EventType = "escrow.released"
	EventRefundProcessed        EventType = "refund.processed"
)

// Message is one outbound notification.
type Message struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Recipient string         `json:"recipient,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Notifier is the settlement pipeline's notification surface.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, email string, data map[string]any)
	SendBookingConfirmation(ctx context.Context, email string, data map[string]any)
	SendTicketDelivery(ctx context.Context, email string, data map[string]any)
	SendPhotographerAssignment(ctx context.Context, photographerID string, data map[string]any)
	SendRefundProcessed(ctx context.Context, email string, data map[string]any)
}

// Dispatcher posts signed notification payloads to the collaborator URL.
type Dispatcher struct {
	url    string
	secret string
	client *http.Client
	// sync forces in-line delivery. Tests set it to assert on outcomes.
	sync bool
}

// NewDispatcher creates a dispatcher. An empty url disables delivery, which
// is how development runs without a collaborator service.
func NewDispatcher(url, secret string) *Dispatcher {
	return &Dispatcher{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *Dispatcher) SendPaymentConfirmation(ctx context.Context, email string, data map[string]any) {
	d.dispatch(ctx, EventPaymentConfirmation, email, data)
}

func (d *Dispatcher) SendBookingConfirmation(ctx context.Context, email string, data map[string]any) {
	d.dispatch(ctx, EventBookingConfirmation, email, data)
}

func (d *Dispatcher) SendTicketDelivery(ctx context.Context, email string, data map[string]any) {
	d.dispatch(ctx, EventTicketDelivery, email, data)
}

func (d *Dispatcher) SendPhotographerAssignment(ctx context.Context, photographerID string, data map[string]any) {
	d.dispatch(ctx, EventPhotographerAssignment, photographerID, data)
}

func (d *Dispatcher) SendRefundProcessed(ctx context.Context, email string, data map[string]any) {
	d.dispatch(ctx, EventRefundProcessed, email, data)
}

func (d *Dispatcher) dispatch(ctx context.Context, typ EventType, recipient string, data map[string]any) {
	if d.url == "" {
		metrics.NotificationsTotal.WithLabelValues("disabled").Inc()
		return
	}
	if recipient == "" {
		logging.L(ctx).Warn("notification skipped, no recipient", "type", string(typ))
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return
	}

	msg := &Message{
		ID:        idgen.WithPrefix("ntf_"),
		Type:      typ,
		Recipient: recipient,
		Timestamp: time.Now(),
		Data:      data,
	}

	if d.sync {
		d.send(ctx, msg)
		return
	}
	// Deliver off the request path. The settlement transaction has already
	// committed by the time dispatch is called.
	go d.send(context.WithoutCancel(ctx), msg)
}

func (d *Dispatcher) send(ctx context.Context, msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Festivo-Event", string(msg.Type))
	req.Header.Set("X-Festivo-Timestamp", fmt.Sprintf("%d", msg.Timestamp.Unix()))
	if d.secret != "" {
		req.Header.Set("X-Festivo-Signature", sign(payload, d.secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logging.L(ctx).Warn("notification delivery failed",
			"type", string(msg.Type), "error", err)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		metrics.NotificationsTotal.WithLabelValues("delivered").Inc()
		return
	}
	logging.L(ctx).Warn("notification delivery rejected",
		"type", string(msg.Type), "status", resp.StatusCode)
	metrics.NotificationsTotal.WithLabelValues("failed").Inc()
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
