// Package photo provides models and repositories for the durable photo catalog.
// The repository also owns the cover-photo invariant: an event has at most one
// cover photo, and deleting the cover reassigns it to a remaining photo.
package photo

import (
	"errors"
	"time"
)

// Common errors for photo operations.
var (
	ErrPhotoNotFound = errors.New("photo not found")

	// ErrLastPhoto is returned when deleting the only photo of an event
	// while it is the cover. The delete is refused and the photo kept.
	ErrLastPhoto = errors.New("cannot delete the last photo of an event")

	// ErrMissingEventID is returned when a photo has no event reference.
	ErrMissingEventID = errors.New("photo requires an event ID")

	// ErrMissingFilename is returned when a photo has no durable filename.
	ErrMissingFilename = errors.New("photo requires a filename")
)

// Photo represents one durable photo record in an event's catalog.
// Filename is the stable key the face-match service reports back, so it must
// be unique within an event.
type Photo struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	IsCover      bool      `json:"is_cover"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks that the photo carries its required references.
func (p *Photo) Validate() error {
	if p.EventID == "" {
		return ErrMissingEventID
	}
	if p.Filename == "" {
		return ErrMissingFilename
	}
	return nil
}
