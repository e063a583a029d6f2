package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/payment"
	"github.com/fotopro/fotopro/internal/selection"
)

// CheckoutResponse is the answer to a successful checkout creation.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CheckoutHandlers holds dependencies for payment HTTP handlers.
type CheckoutHandlers struct {
	stripeClient  payment.Client
	paymentRepo   payment.Repository
	selectionRepo selection.Repository
	successURL    string
	cancelURL     string
	logger        *slog.Logger
}

// NewCheckoutHandlers creates a new CheckoutHandlers instance.
func NewCheckoutHandlers(stripeClient payment.Client, paymentRepo payment.Repository, selectionRepo selection.Repository, successURL, cancelURL string, logger *slog.Logger) *CheckoutHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandlers{
		stripeClient:  stripeClient,
		paymentRepo:   paymentRepo,
		selectionRepo: selectionRepo,
		successURL:    successURL,
		cancelURL:     cancelURL,
		logger:        logger,
	}
}

// CreateCheckout handles POST /selections/{id}/checkout - starts a Stripe
// Checkout Session for the selection's server-computed total. A selection
// with a pending or succeeded payment cannot be checked out again.
func (h *CheckoutHandlers) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	selectionID := pathSegment(r.URL.Path, "/selections/", 0)
	if selectionID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Selection ID is required")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	sel, err := h.selectionRepo.GetByID(r.Context(), selectionID)
	if err != nil {
		if errors.Is(err, selection.ErrSelectionNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Selection not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get selection", "error", err, "selection_id", selectionID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}
	if sel.UserID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not your selection")
		return
	}

	if existing, err := h.paymentRepo.GetBySelectionID(r.Context(), selectionID); err == nil {
		if existing.Status == payment.StatusPending || existing.Status == payment.StatusSucceeded {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "This selection already has a payment in progress")
			return
		}
	}

	amountCents := int64(math.Round(sel.TotalPrice * 100))
	sess, err := h.stripeClient.CreateCheckoutSession(&payment.CheckoutSessionParams{
		SelectionID: sel.ID,
		Description: fmt.Sprintf("%d event photos", sel.TotalPhotos),
		AmountCents: amountCents,
		Quantity:    int64(sel.TotalPhotos),
		SuccessURL:  h.successURL,
		CancelURL:   h.cancelURL,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session", "error", err, "selection_id", sel.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to start checkout")
		return
	}

	record := &payment.PaymentRecord{
		SessionID:   sess.ID,
		Status:      payment.StatusPending,
		Amount:      amountCents,
		UserID:      userID,
		EventID:     sel.EventID,
		SelectionID: sel.ID,
	}
	if err := h.paymentRepo.Insert(r.Context(), record); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to record payment", "error", err, "session_id", sess.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record payment")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, CheckoutResponse{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
	})
}
