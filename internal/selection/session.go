package selection

import (
	"math"
	"sort"
	"strings"
)

// Session accumulates a customer's in-progress pick list for one event.
// Picks have set semantics: adding a photo twice is a no-op pair, and the
// insertion order carries no meaning. A Session is not safe for concurrent
// use; each browsing customer owns their own.
type Session struct {
	picked map[string]struct{}
}

// NewSession creates an empty selection session.
func NewSession() *Session {
	return &Session{picked: make(map[string]struct{})}
}

// Toggle adds the photo ID if absent and removes it if present.
// Applying the same toggle twice restores the prior state.
func (s *Session) Toggle(photoID string) {
	if _, ok := s.picked[photoID]; ok {
		delete(s.picked, photoID)
		return
	}
	s.picked[photoID] = struct{}{}
}

// Contains reports whether the photo ID is currently picked.
func (s *Session) Contains(photoID string) bool {
	_, ok := s.picked[photoID]
	return ok
}

// Count returns the number of picked photos.
func (s *Session) Count() int {
	return len(s.picked)
}

// ComputeTotal returns count × pricePerPhoto rounded to two decimal places
// for currency display.
func (s *Session) ComputeTotal(pricePerPhoto float64) float64 {
	total := float64(len(s.picked)) * pricePerPhoto
	return math.Round(total*100) / 100
}

// SubmissionRequest is the immutable payload snapshotted from a session on
// submit. PhotoIDs are sorted so the same pick set always yields the same CSV.
type SubmissionRequest struct {
	EventID     string
	UserID      string
	PhotoIDs    string
	TotalPhotos int
	TotalPrice  float64
}

// Submit snapshots the current pick set into a SubmissionRequest and clears
// the session. Submitting an empty session returns ErrEmptySelection before
// anything else happens.
func (s *Session) Submit(userID, eventID string, pricePerPhoto float64) (*SubmissionRequest, error) {
	if len(s.picked) == 0 {
		return nil, ErrEmptySelection
	}

	ids := make([]string, 0, len(s.picked))
	for id := range s.picked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	req := &SubmissionRequest{
		EventID:     eventID,
		UserID:      userID,
		PhotoIDs:    strings.Join(ids, ","),
		TotalPhotos: len(ids),
		TotalPrice:  s.ComputeTotal(pricePerPhoto),
	}

	s.picked = make(map[string]struct{})
	return req, nil
}
