package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/facematch"
	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/staging"
)

// maxSelfieMemory bounds the multipart buffer for selfie uploads.
const maxSelfieMemory = 16 << 20

// Matcher runs the face-match pipeline for one selfie.
type Matcher interface {
	FindMatches(ctx context.Context, eventID, filename string, selfie io.Reader) ([]*photo.Photo, error)
}

// FaceMatchHandlers holds dependencies for face-match HTTP handlers.
type FaceMatchHandlers struct {
	matcher   Matcher
	eventRepo event.Repository
	logger    *slog.Logger
}

// NewFaceMatchHandlers creates a new FaceMatchHandlers instance.
func NewFaceMatchHandlers(matcher Matcher, eventRepo event.Repository, logger *slog.Logger) *FaceMatchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaceMatchHandlers{matcher: matcher, eventRepo: eventRepo, logger: logger}
}

// MatchFaces handles POST /events/{id}/face-match - finds the event's photos
// containing the person in the uploaded selfie (multipart field "selfie").
// An empty photo list is a valid success response: the matches may have been
// removed from the catalog since inference ran.
func (h *FaceMatchHandlers) MatchFaces(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	if eventID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	evt, err := h.eventRepo.GetByID(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, event.ErrEventNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to load event", "error", err, "event_id", eventID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return
	}

	// Private events require the owner's token or the access password.
	if !evt.IsPublic && middleware.GetUserID(r.Context()) != evt.UserID {
		if err := evt.VerifyAccess(r.Header.Get(EventPasswordHeader)); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAccessDenied)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeAccessDenied, "Wrong password for this event")
			return
		}
	}

	if err := r.ParseMultipartForm(maxSelfieMemory); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidUpload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidUpload, "Invalid multipart body")
		return
	}
	file, header, err := r.FormFile("selfie")
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidUpload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidUpload, "A selfie file is required")
		return
	}
	defer file.Close()

	matched, err := h.matcher.FindMatches(r.Context(), eventID, header.Filename, file)
	if err != nil {
		h.writeMatchError(w, r, err)
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"photos": matched})
}

func (h *FaceMatchHandlers) writeMatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, staging.ErrInvalidUpload):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidUpload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidUpload, "Invalid selfie upload")
	case errors.Is(err, staging.ErrNoCandidates):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNoCandidates)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNoCandidates, "This event has no photos to match against")
	case errors.Is(err, facematch.ErrNoMatch):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNoMatchFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNoMatchFound, "No photos matched the uploaded selfie")
	case errors.Is(err, facematch.ErrUnavailable):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInferenceUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeInferenceUnavailable, "Face recognition is temporarily unavailable")
	default:
		h.logger.ErrorContext(r.Context(), "face match failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Face match failed")
	}
}
