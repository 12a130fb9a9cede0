package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/festivo/festivo/internal/payments"
)

func newWebhookRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	handler := NewHandler(f.svc)

	r := gin.New()
	handler.RegisterWebhook(r)
	handler.RegisterRoutes(r.Group("/v1"))
	return r, f
}

func deliver(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment-provider", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndToEnd(t *testing.T) {
	r, f := newWebhookRouter(t)

	body, _ := json.Marshal(map[string]any{
		"event": EventChargeSucceeded,
		"data":  map[string]any{"reference": "txn_1", "amount": 10000, "currency": "USD"},
	})

	w := deliver(r, body, Sign(body, "whsec_test"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != string(OutcomeSettled) {
		t.Errorf("expected settled, got %s", resp["status"])
	}

	wallet, err := f.ledger.GetWallet(context.Background(), "org_1")
	if err != nil || wallet.AvailableBalanceCents != 9000 {
		t.Errorf("organizer wallet not credited: %v %+v", err, wallet)
	}

	// Redelivery acks 200 with a noop status.
	w = deliver(r, body, Sign(body, "whsec_test"))
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != string(OutcomeNoop) {
		t.Errorf("redelivery: expected noop, got %s", resp["status"])
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	r, f := newWebhookRouter(t)

	body, _ := json.Marshal(map[string]any{
		"event": EventChargeSucceeded,
		"data":  map[string]any{"reference": "txn_1", "amount": 10000},
	})

	if w := deliver(r, body, "deadbeef"); w.Code != http.StatusUnauthorized {
		t.Errorf("tampered signature: expected 401, got %d", w.Code)
	}
	if w := deliver(r, body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing signature: expected 401, got %d", w.Code)
	}
	if w := deliver(r, body, Sign(body, "wrong_secret")); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: expected 401, got %d", w.Code)
	}

	// Nothing settled.
	p, _ := f.payments.Get(context.Background(), f.payment.ID)
	if p.Status != payments.StatusPending {
		t.Errorf("rejected webhook must not settle, got %s", p.Status)
	}
}

func TestWebhookIgnoredEventStillAcks(t *testing.T) {
	r, _ := newWebhookRouter(t)

	body, _ := json.Marshal(map[string]any{
		"event": "charge.failed",
		"data":  map[string]any{"reference": "txn_1"},
	})
	w := deliver(r, body, Sign(body, "whsec_test"))
	if w.Code != http.StatusOK {
		t.Errorf("ignored event: expected 200, got %d", w.Code)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	r, _ := newWebhookRouter(t)

	body := []byte("{not json")
	w := deliver(r, body, Sign(body, "whsec_test"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

func TestRefundEndpoint(t *testing.T) {
	r, f := newWebhookRouter(t)

	body, _ := json.Marshal(map[string]any{
		"event": EventChargeSucceeded,
		"data":  map[string]any{"reference": "txn_1", "amount": 10000},
	})
	if w := deliver(r, body, Sign(body, "whsec_test")); w.Code != http.StatusOK {
		t.Fatalf("settlement failed: %d", w.Code)
	}

	refundBody, _ := json.Marshal(map[string]string{"reason": "customer_request"})
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/"+f.payment.ID+"/refund", bytes.NewReader(refundBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Second refund conflicts.
	req = httptest.NewRequest(http.MethodPost, "/v1/payments/"+f.payment.ID+"/refund", bytes.NewReader(refundBody))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on double refund, got %d", w.Code)
	}
}
