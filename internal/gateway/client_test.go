package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestVerifyCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/charges/txn_1" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"reference": "txn_1",
				"status":    "succeeded",
				"amount":    10000,
				"currency":  "USD",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test")
	charge, err := client.VerifyCharge(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("VerifyCharge failed: %v", err)
	}
	if !charge.Succeeded() || charge.AmountCents != 10000 {
		t.Errorf("unexpected charge: %+v", charge)
	}
}

func TestVerifyChargeNotFoundIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test")
	if _, err := client.VerifyCharge(context.Background(), "txn_missing"); err == nil {
		t.Fatal("expected error for unknown charge")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("404 must not be retried, got %d attempts", hits)
	}
}

func TestVerifyChargeRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"reference": "txn_1", "status": "succeeded", "amount": 500, "currency": "USD"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test")
	client.retries = 5
	charge, err := client.VerifyCharge(context.Background(), "txn_1")
	if err != nil {
		t.Fatalf("VerifyCharge failed after retries: %v", err)
	}
	if charge.AmountCents != 500 {
		t.Errorf("unexpected charge: %+v", charge)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("expected 3 attempts, got %d", hits)
	}
}

func TestRequestRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/refunds" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["reference"] != "txn_1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test")
	if err := client.RequestRefund(context.Background(), "txn_1", "customer_request"); err != nil {
		t.Fatalf("RequestRefund failed: %v", err)
	}
}
