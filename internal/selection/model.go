// Package selection provides the customer's in-progress photo pick list and
// the durable record created when it is submitted.
package selection

import (
	"errors"
	"strings"
	"time"
)

// Common errors for selection operations.
var (
	ErrSelectionNotFound = errors.New("selection not found")

	// ErrEmptySelection is returned when submitting a session with no photos.
	ErrEmptySelection = errors.New("selection is empty")

	// ErrInvalidSelectionData is returned when a submitted payload is
	// missing fields or carries malformed totals.
	ErrInvalidSelectionData = errors.New("invalid selection data")
)

// Selection is the immutable record of a finalized photo pick list.
// PhotoIDs is the comma-joined list of chosen photo IDs, preserved exactly as
// submitted; TotalPhotos and TotalPrice are denormalized for listing views.
type Selection struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	PhotoIDs    string    `json:"photo_ids"`
	TotalPhotos int       `json:"total_photos"`
	TotalPrice  float64   `json:"total_price"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks that a selection payload is complete and well-formed.
func (s *Selection) Validate() error {
	if s.EventID == "" || s.UserID == "" {
		return ErrInvalidSelectionData
	}
	if strings.TrimSpace(s.PhotoIDs) == "" {
		return ErrInvalidSelectionData
	}
	if s.TotalPhotos <= 0 || s.TotalPhotos != len(s.PhotoIDList()) {
		return ErrInvalidSelectionData
	}
	if s.TotalPrice < 0 {
		return ErrInvalidSelectionData
	}
	return nil
}

// PhotoIDList splits the comma-joined photo IDs, dropping empty segments.
func (s *Selection) PhotoIDList() []string {
	parts := strings.Split(s.PhotoIDs, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
