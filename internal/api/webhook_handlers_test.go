package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fotopro/fotopro/internal/payment"
	"github.com/stripe/stripe-go/v81"
)

const webhookTestSecret = "whsec_test_secret"

// signedWebhookRequest builds a webhook request carrying a valid
// Stripe-Signature header for the given payload.
func signedWebhookRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	return req
}

// checkoutEventPayload builds a minimal checkout session event body.
func checkoutEventPayload(eventType, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q}}
	}`, stripe.APIVersion, eventType, sessionID))
}

// seedPendingPayment inserts a pending payment record for a session.
func seedPendingPayment(t *testing.T, repo payment.Repository, sessionID string) {
	t.Helper()
	if err := repo.Insert(context.Background(), &payment.PaymentRecord{
		SessionID: sessionID, Status: payment.StatusPending, Amount: 500,
		UserID: "buyer", EventID: "event-1", SelectionID: "sel-1",
	}); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

// TestHandleStripeWebhook_Transitions tests the status transitions driven by
// checkout session events.
func TestHandleStripeWebhook_Transitions(t *testing.T) {
	tests := []struct {
		eventType  string
		wantStatus string
	}{
		{"checkout.session.completed", payment.StatusSucceeded},
		{"checkout.session.expired", payment.StatusCanceled},
		{"checkout.session.async_payment_failed", payment.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			paymentRepo := payment.NewInMemoryRepository()
			seedPendingPayment(t, paymentRepo, "cs_123")
			h := NewWebhookHandlers(webhookTestSecret, paymentRepo, testLogger())

			req := signedWebhookRequest(t, checkoutEventPayload(tt.eventType, "cs_123"))
			rec := httptest.NewRecorder()

			h.HandleStripeWebhook(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			record, err := paymentRepo.GetBySessionID(context.Background(), "cs_123")
			if err != nil {
				t.Fatalf("get payment: %v", err)
			}
			if record.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, record.Status)
			}
		})
	}
}

// TestHandleStripeWebhook_NeverRegressesSettled tests that an expiry event
// arriving after completion does not undo the settled payment.
func TestHandleStripeWebhook_NeverRegressesSettled(t *testing.T) {
	paymentRepo := payment.NewInMemoryRepository()
	seedPendingPayment(t, paymentRepo, "cs_123")
	h := NewWebhookHandlers(webhookTestSecret, paymentRepo, testLogger())

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(t, checkoutEventPayload("checkout.session.completed", "cs_123")))
	if rec.Code != http.StatusOK {
		t.Fatalf("completed event: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(t, checkoutEventPayload("checkout.session.expired", "cs_123")))
	if rec.Code != http.StatusOK {
		t.Fatalf("expired event: expected 200, got %d", rec.Code)
	}

	record, err := paymentRepo.GetBySessionID(context.Background(), "cs_123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if record.Status != payment.StatusSucceeded {
		t.Errorf("expected payment to stay succeeded, got %s", record.Status)
	}
}

// TestHandleStripeWebhook_RejectsBadSignature tests signature enforcement.
func TestHandleStripeWebhook_RejectsBadSignature(t *testing.T) {
	paymentRepo := payment.NewInMemoryRepository()
	seedPendingPayment(t, paymentRepo, "cs_123")
	h := NewWebhookHandlers(webhookTestSecret, paymentRepo, testLogger())

	payload := checkoutEventPayload("checkout.session.completed", "cs_123")

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
		rec := httptest.NewRecorder()

		h.HandleStripeWebhook(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("forged header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		rec := httptest.NewRecorder()

		h.HandleStripeWebhook(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	record, err := paymentRepo.GetBySessionID(context.Background(), "cs_123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if record.Status != payment.StatusPending {
		t.Errorf("expected payment untouched, got %s", record.Status)
	}
}

// TestHandleStripeWebhook_UnknownSessionStillAcked tests that a verified
// event for a session we never recorded is acknowledged, not retried forever.
func TestHandleStripeWebhook_UnknownSessionStillAcked(t *testing.T) {
	h := NewWebhookHandlers(webhookTestSecret, payment.NewInMemoryRepository(), testLogger())

	req := signedWebhookRequest(t, checkoutEventPayload("checkout.session.completed", "cs_unknown"))
	rec := httptest.NewRecorder()

	h.HandleStripeWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// TestHandleStripeWebhook_IgnoresUnrelatedEvents tests that unhandled event
// types are acknowledged without touching payments.
func TestHandleStripeWebhook_IgnoresUnrelatedEvents(t *testing.T) {
	paymentRepo := payment.NewInMemoryRepository()
	seedPendingPayment(t, paymentRepo, "cs_123")
	h := NewWebhookHandlers(webhookTestSecret, paymentRepo, testLogger())

	req := signedWebhookRequest(t, checkoutEventPayload("invoice.paid", "cs_123"))
	rec := httptest.NewRecorder()

	h.HandleStripeWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	record, err := paymentRepo.GetBySessionID(context.Background(), "cs_123")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if record.Status != payment.StatusPending {
		t.Errorf("expected payment untouched, got %s", record.Status)
	}
}
