package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/payment"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// WebhookHandlers holds dependencies for Stripe webhook handling.
type WebhookHandlers struct {
	webhookSecret string
	paymentRepo   payment.Repository
	logger        *slog.Logger
}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers(webhookSecret string, paymentRepo payment.Repository, logger *slog.Logger) *WebhookHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandlers{
		webhookSecret: webhookSecret,
		paymentRepo:   paymentRepo,
		logger:        logger,
	}
}

// HandleStripeWebhook processes Stripe webhook events with signature verification.
// POST /webhooks/stripe
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "missing Stripe-Signature header")
		return
	}

	event, err := webhook.ConstructEvent(body, signature, h.webhookSecret)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid signature")
		return
	}

	// Log minimal event info (type and ID only, not full payload)
	h.logger.InfoContext(ctx, "webhook event received", "event_type", event.Type, "event_id", event.ID)

	switch event.Type {
	case "checkout.session.completed":
		h.transitionSession(ctx, event, payment.StatusSucceeded)
	case "checkout.session.expired":
		h.transitionSession(ctx, event, payment.StatusCanceled)
	case "checkout.session.async_payment_failed":
		h.transitionSession(ctx, event, payment.StatusFailed)
	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type, "event_id", event.ID)
	}

	// Always return 200 to acknowledge receipt
	w.WriteHeader(http.StatusOK)
}

// transitionSession resolves the payment record for the event's Checkout
// Session to the given status. Repeated deliveries of the same event are
// harmless: the transition is a plain status overwrite.
func (h *WebhookHandlers) transitionSession(ctx context.Context, event stripe.Event, status string) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse checkout session", "event_id", event.ID, "error", err)
		return
	}

	record, err := h.paymentRepo.GetBySessionID(ctx, session.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "payment record not found for session",
			"session_id", session.ID, "event_id", event.ID)
		return
	}

	// Never regress a settled payment.
	if record.Status == payment.StatusSucceeded && status != payment.StatusSucceeded {
		h.logger.WarnContext(ctx, "ignoring transition on settled payment",
			"session_id", session.ID, "requested_status", status)
		return
	}

	record.Status = status
	if err := h.paymentRepo.Update(ctx, record); err != nil {
		h.logger.ErrorContext(ctx, "failed to update payment record",
			"session_id", session.ID, "error", err)
		return
	}

	h.logger.InfoContext(ctx, "payment status updated",
		"session_id", session.ID,
		"selection_id", record.SelectionID,
		"status", status)
}
