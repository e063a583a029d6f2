// Package payment provides Stripe Checkout integration for selection orders.
package payment

import "time"

// PaymentStatus represents the status of a payment record.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// PaymentRecord is the provisional record for one selection's Checkout
// Session, created pending and resolved by webhook.
type PaymentRecord struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"` // Stripe Checkout Session ID
	Status      string     `json:"status"`     // pending, succeeded, failed, canceled
	Amount      int64      `json:"amount"`     // Total amount in cents
	UserID      string     `json:"user_id"`    // User making the payment
	EventID     string     `json:"event_id"`   // Event the photos belong to
	SelectionID string     `json:"selection_id"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}
