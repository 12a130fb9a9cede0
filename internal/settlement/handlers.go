package settlement

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/festivo/festivo/internal/logging"
	"github.com/festivo/festivo/internal/metrics"
	"github.com/festivo/festivo/internal/payments"
)

// SignatureHeader carries the provider's HMAC over the raw body.
const SignatureHeader = "X-Webhook-Signature"

// Handler provides the webhook entrypoint and the refund endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterWebhook mounts the provider-facing webhook endpoint. Mounted on
// the root router, outside /v1 and outside rate limiting: throttling the
// provider only multiplies its retries.
func (h *Handler) RegisterWebhook(r gin.IRoutes) {
	r.POST("/webhooks/payment-provider", h.Webhook)
}

// RegisterRoutes sets up the internal settlement routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:id/refund", h.Refund)
}

// Webhook handles POST /webhooks/payment-provider.
//
// Response contract: 200 for settled, duplicate, and ignored deliveries
// alike, so the provider stops retrying; 401 only for a bad signature; 500
// when settlement aborted and a retry is wanted.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	if !h.service.VerifySignature(body, c.GetHeader(SignatureHeader)) {
		logging.L(c.Request.Context()).Warn("webhook signature verification failed")
		metrics.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
		return
	}

	payload, err := ParsePayload(body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed_payload"})
		return
	}

	outcome, err := h.service.HandleEvent(c.Request.Context(), payload, body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("failed").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement_failed"})
		return
	}

	switch outcome {
	case OutcomeSettled:
		metrics.WebhookEventsTotal.WithLabelValues("settled").Inc()
	case OutcomeNoop:
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
	default:
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
	}
	c.JSON(http.StatusOK, gin.H{"status": string(outcome)})
}

type refundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Refund handles POST /v1/payments/:id/refund.
func (h *Handler) Refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "reason is required"})
		return
	}

	payment, err := h.service.Refund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Payment not found"})
		case errors.Is(err, ErrNotRefundable):
			c.JSON(http.StatusConflict, gin.H{"error": "not_refundable", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refund_failed", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
