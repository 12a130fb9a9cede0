// Package gateway talks to the external payment provider's API. The webhook
// is the source of truth for settlement; this client exists for the optional
// server-side verification step and for issuing refunds.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/festivo/festivo/internal/retry"
)

// Charge is the provider's view of one payment attempt.
type Charge struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	PaidAt      string `json:"paidAt,omitempty"`
}

type chargeResponse struct {
	Data Charge `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
}

// Client is a payment-provider API client.
type Client struct {
	http    *resty.Client
	retries int
}

// NewClient creates a provider client. baseURL and apiKey come from config.
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	return &Client{http: c, retries: 3}
}

// VerifyCharge fetches the provider's record for a reference. Used to
// cross-check a webhook payload before settling when verification is
// enabled. Transient failures are retried with backoff.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*Charge, error) {
	var charge *Charge
	err := retry.Do(ctx, c.retries, 500*time.Millisecond, func() error {
		var ok chargeResponse
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&ok).
			SetError(&apiErr).
			Get("/v1/charges/" + reference)
		if err != nil {
			return err
		}
		switch {
		case resp.IsSuccess():
			charge = &ok.Data
			return nil
		case resp.StatusCode() == http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("charge %s not found", reference))
		case resp.StatusCode() >= 500:
			return fmt.Errorf("provider returned %d", resp.StatusCode())
		default:
			return retry.Permanent(fmt.Errorf("provider returned %d: %s", resp.StatusCode(), apiErr.Message))
		}
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// Succeeded reports whether the provider considers the charge settled.
func (ch *Charge) Succeeded() bool {
	return ch.Status == "succeeded" || ch.Status == "success"
}

// RequestRefund asks the provider to refund a charge. The provider confirms
// asynchronously via webhook; this only submits the request.
func (c *Client) RequestRefund(ctx context.Context, reference, reason string) error {
	return retry.Do(ctx, c.retries, 500*time.Millisecond, func() error {
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"reference": reference, "reason": reason}).
			SetError(&apiErr).
			Post("/v1/refunds")
		if err != nil {
			return err
		}
		if resp.IsSuccess() {
			return nil
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("provider returned %d", resp.StatusCode())
		}
		return retry.Permanent(fmt.Errorf("provider returned %d: %s", resp.StatusCode(), apiErr.Message))
	})
}
