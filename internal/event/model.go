// Package event provides models and repositories for photography events:
// the occasions photographers publish and customers browse.
package event

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Common errors for event operations.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrAccessDenied  = errors.New("access denied")

	// ErrMissingAccessHash is returned when a private event has no access hash.
	ErrMissingAccessHash = errors.New("private event requires an access password")

	// ErrNegativePrice is returned when price per photo is negative.
	ErrNegativePrice = errors.New("price per photo must not be negative")
)

// Event represents a photographed occasion owned by a photographer.
// Private events require an access hash; customers must present the matching
// password before the event's photos become visible to them.
type Event struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Date          time.Time `json:"date"`
	IsPublic      bool      `json:"is_public"`
	AccessHash    *string   `json:"-"` // bcrypt hash, never serialized
	PricePerPhoto float64   `json:"price_per_photo"`
	City          string    `json:"city,omitempty"`
	Venue         string    `json:"venue,omitempty"`

	// RelevanceScore orders the featured-events listing on the landing page.
	RelevanceScore float64 `json:"relevance_score,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Validate checks the event invariants: private events carry an access hash
// and the per-photo price is not negative.
func (e *Event) Validate() error {
	if !e.IsPublic && (e.AccessHash == nil || *e.AccessHash == "") {
		return ErrMissingAccessHash
	}
	if e.PricePerPhoto < 0 {
		return ErrNegativePrice
	}
	return nil
}

// SetAccessPassword hashes the given password with bcrypt and stores it as
// the event's access hash.
func (e *Event) SetAccessPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	h := string(hash)
	e.AccessHash = &h
	return nil
}

// VerifyAccess compares the given password against the event's access hash.
// Public events always grant access. Returns ErrAccessDenied on mismatch.
func (e *Event) VerifyAccess(password string) error {
	if e.IsPublic {
		return nil
	}
	if e.AccessHash == nil || *e.AccessHash == "" {
		return ErrMissingAccessHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*e.AccessHash), []byte(password)); err != nil {
		return ErrAccessDenied
	}
	return nil
}
