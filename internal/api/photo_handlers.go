package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/storage"
)

// Upload constraints.
const (
	maxUploadMemory = 64 << 20 // 64 MB multipart buffer
	uploadBatchSize = 5        // concurrent uploads per batch
)

// EventPasswordHeader carries the access password for private event reads.
const EventPasswordHeader = "X-Event-Password"

// PhotoStore persists photo files in the blob store.
type PhotoStore interface {
	Upload(ctx context.Context, eventID, filename, contentType string, body io.Reader, size int64) (string, error)
	UploadThumbnail(ctx context.Context, key string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Sanitizer re-encodes an uploaded image, stripping metadata. The api
// package takes it as a function so tests can substitute a passthrough.
type Sanitizer func(io.Reader) ([]byte, error)

// Thumbnailer renders a listing thumbnail from sanitized photo bytes.
type Thumbnailer func([]byte) ([]byte, error)

// PhotoHandlers holds dependencies for photo HTTP handlers.
type PhotoHandlers struct {
	photoRepo photo.Repository
	eventRepo event.Repository
	store     PhotoStore
	sanitize  Sanitizer
	thumbnail Thumbnailer
	logger    *slog.Logger
}

// NewPhotoHandlers creates a new PhotoHandlers instance. sanitize may be nil
// to store uploads unmodified; thumbnail may be nil to skip thumbnails.
func NewPhotoHandlers(photoRepo photo.Repository, eventRepo event.Repository, store PhotoStore, sanitize Sanitizer, thumbnail Thumbnailer, logger *slog.Logger) *PhotoHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhotoHandlers{
		photoRepo: photoRepo,
		eventRepo: eventRepo,
		store:     store,
		sanitize:  sanitize,
		thumbnail: thumbnail,
		logger:    logger,
	}
}

// uploadResult is one file's outcome within a concurrent batch.
type uploadResult struct {
	photo *photo.Photo
	err   error
}

// UploadPhotos handles POST /events/{id}/photos - multipart upload, owner only.
// Files are uploaded to the blob store in batches of five concurrent
// transfers, then registered in the catalog in one call so the cover
// invariant is decided once for the whole batch.
func (h *PhotoHandlers) UploadPhotos(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	evt, ok := h.loadOwnedEvent(w, r, eventID)
	if !ok {
		return
	}

	if h.store == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeInternal, "Photo storage is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidUpload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidUpload, "Invalid multipart body")
		return
	}
	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidUpload)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidUpload, "At least one photo file is required")
		return
	}

	records := make([]*photo.Photo, 0, len(files))
	for start := 0; start < len(files); start += uploadBatchSize {
		end := start + uploadBatchSize
		if end > len(files) {
			end = len(files)
		}

		results := make([]uploadResult, end-start)
		var wg sync.WaitGroup
		for i, header := range files[start:end] {
			wg.Add(1)
			go func(i int, header *multipart.FileHeader) {
				defer wg.Done()
				results[i] = h.uploadOne(r.Context(), evt.ID, header)
			}(i, header)
		}
		wg.Wait()

		// Collect the batch's successes before checking for errors, so a
		// failed request can discard every blob it already stored.
		for _, res := range results {
			if res.photo != nil {
				records = append(records, res.photo)
			}
		}
		for _, res := range results {
			if res.err != nil {
				h.discardUploaded(r.Context(), records)
				h.writeUploadError(w, r, res.err)
				return
			}
		}
	}

	created, err := h.photoRepo.CreateBatch(r.Context(), records)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to register photos", "error", err, "event_id", evt.ID)
		h.discardUploaded(r.Context(), records)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register photos")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, map[string]any{"photos": created})
}

// uploadOne sanitizes and stores a single file plus its listing thumbnail,
// returning the catalog record. A failed thumbnail never fails the upload.
func (h *PhotoHandlers) uploadOne(ctx context.Context, eventID string, header *multipart.FileHeader) uploadResult {
	f, err := header.Open()
	if err != nil {
		return uploadResult{err: storage.ErrUnsupportedType}
	}
	defer f.Close()

	contentType := header.Header.Get("Content-Type")
	if err := storage.ValidateContentType(contentType); err != nil {
		return uploadResult{err: err}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return uploadResult{err: err}
	}
	if h.sanitize != nil {
		clean, err := h.sanitize(bytes.NewReader(data))
		if err != nil {
			return uploadResult{err: storage.ErrUnsupportedType}
		}
		data = clean
	}

	key, err := h.store.Upload(ctx, eventID, header.Filename, contentType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return uploadResult{err: err}
	}

	rec := &photo.Photo{
		EventID:  eventID,
		Filename: key,
		URL:      h.store.PublicURL(key),
	}
	if h.thumbnail != nil {
		if thumb, err := h.thumbnail(data); err != nil {
			h.logger.WarnContext(ctx, "failed to render thumbnail", "error", err, "key", key)
		} else if thumbKey, err := h.store.UploadThumbnail(ctx, key, bytes.NewReader(thumb), int64(len(thumb))); err != nil {
			h.logger.WarnContext(ctx, "failed to store thumbnail", "error", err, "key", key)
		} else {
			rec.ThumbnailURL = h.store.PublicURL(thumbKey)
		}
	}
	return uploadResult{photo: rec}
}

// discardUploaded removes blobs stored by a request that failed partway.
// Without this, orphans with no catalog record would keep surfacing as
// face-match candidates through the event-prefix listing.
func (h *PhotoHandlers) discardUploaded(ctx context.Context, records []*photo.Photo) {
	for _, p := range records {
		if err := h.store.Delete(ctx, p.Filename); err != nil {
			h.logger.WarnContext(ctx, "failed to remove orphaned upload",
				"error", err, "key", p.Filename)
		}
		if p.ThumbnailURL != "" {
			if err := h.store.Delete(ctx, storage.ThumbnailKey(p.Filename)); err != nil {
				h.logger.WarnContext(ctx, "failed to remove orphaned thumbnail",
					"error", err, "key", p.Filename)
			}
		}
	}
}

func (h *PhotoHandlers) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnsupportedType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType, "Unsupported photo type")
	case errors.Is(err, storage.ErrFileTooLarge):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Photo exceeds the maximum allowed size")
	default:
		h.logger.ErrorContext(r.Context(), "failed to upload photo", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to upload photo")
	}
}

// ListPhotos handles GET /events/{id}/photos. Private events require the
// owner's token or the access password in the X-Event-Password header.
func (h *PhotoHandlers) ListPhotos(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	if eventID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	evt, err := h.eventRepo.GetByID(r.Context(), eventID)
	if err != nil {
		h.writeEventError(w, r, err)
		return
	}

	if !h.authorizeRead(w, r, evt) {
		return
	}

	photos, err := h.photoRepo.ListByEvent(r.Context(), eventID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list photos", "error", err, "event_id", eventID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list photos")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"photos": photos})
}

// DeletePhoto handles DELETE /events/{id}/photos/{photo_id} - owner only.
// The catalog decides cover reassignment; the blob is removed best effort
// afterwards so a storage hiccup cannot leave the catalog inconsistent.
func (h *PhotoHandlers) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	photoID := pathSegment(r.URL.Path, "/events/", 2)
	if _, ok := h.loadOwnedEvent(w, r, eventID); !ok {
		return
	}
	if photoID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Photo ID is required")
		return
	}

	existing, err := h.photoRepo.GetByID(r.Context(), photoID)
	if err != nil || existing.EventID != eventID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Photo not found")
		return
	}

	deleted, err := h.photoRepo.Delete(r.Context(), photoID)
	if err != nil {
		if errors.Is(err, photo.ErrLastPhoto) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeLastPhoto)
			WriteError(w, ctx, http.StatusConflict, ErrCodeLastPhoto, "Cannot delete the only photo of an event")
			return
		}
		if errors.Is(err, photo.ErrPhotoNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Photo not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to delete photo", "error", err, "photo_id", photoID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to delete photo")
		return
	}

	if h.store != nil {
		if err := h.store.Delete(r.Context(), deleted.Filename); err != nil {
			h.logger.WarnContext(r.Context(), "failed to delete photo object",
				"error", err, "key", deleted.Filename)
		}
		if deleted.ThumbnailURL != "" {
			if err := h.store.Delete(r.Context(), storage.ThumbnailKey(deleted.Filename)); err != nil {
				h.logger.WarnContext(r.Context(), "failed to delete thumbnail object",
					"error", err, "key", deleted.Filename)
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizeRead checks read access to an event's photos. On failure it
// writes the error response and returns false.
func (h *PhotoHandlers) authorizeRead(w http.ResponseWriter, r *http.Request, evt *event.Event) bool {
	if evt.IsPublic {
		return true
	}
	if middleware.GetUserID(r.Context()) == evt.UserID {
		return true
	}
	if err := evt.VerifyAccess(r.Header.Get(EventPasswordHeader)); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAccessDenied)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeAccessDenied, "Wrong password for this event")
		return false
	}
	return true
}

// loadOwnedEvent mirrors EventHandlers.loadOwnedEvent for photo routes.
func (h *PhotoHandlers) loadOwnedEvent(w http.ResponseWriter, r *http.Request, id string) (*event.Event, bool) {
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return nil, false
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return nil, false
	}

	evt, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err)
		return nil, false
	}
	if evt.UserID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event owner may do this")
		return nil, false
	}
	return evt, true
}

func (h *PhotoHandlers) writeEventError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, event.ErrEventNotFound) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
		return
	}
	h.logger.ErrorContext(r.Context(), "failed to load event", "error", err)
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}
