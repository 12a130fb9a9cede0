// Package settlement drives a confirmed external charge to a consistent end
// state exactly once: payment completed, booking created, inventory
// confirmed, photographer escrow opened, organizer wallet credited.
//
// Idempotency rests on two guards. The pending-only payment lookup makes a
// redelivered webhook a no-op, and the unique wallet-transaction reference
// makes a double credit impossible even if the first guard were bypassed.
// Everything between those guards runs in one atomic unit.
package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
)

var (
	// ErrNoop marks a webhook that is acknowledged without settling:
	// an unknown or already-settled reference.
	ErrNoop = errors.New("nothing to settle for this reference")

	// ErrAmountMismatch marks a webhook whose amount disagrees with the
	// pending payment. The payment stays pending for investigation.
	ErrAmountMismatch = errors.New("webhook amount does not match payment amount")

	// ErrNotRefundable is returned when the refund window has passed or the
	// payment is not in a refundable state.
	ErrNotRefundable = errors.New("payment is not refundable")
)

// EventChargeSucceeded is the only webhook event that settles. Everything
// else is acknowledged and dropped.
const EventChargeSucceeded = "charge.succeeded"

// Outcome is the result of handling one webhook delivery.
type Outcome string

const (
	OutcomeSettled Outcome = "settled"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
)

// Payload is the payment provider's webhook body.
type Payload struct {
	Event string `json:"event"`
	Data  Data   `json:"data"`
}

// Data is the charge detail inside a webhook payload.
type Data struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// VerifySignature checks the provider's HMAC-SHA256 hex signature over the
// raw request body. Constant-time compare; an invalid signature is a
// security failure, not a retryable one.
func VerifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature a provider would attach to body. Used by
// tests and local tooling.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParsePayload decodes a webhook body.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
