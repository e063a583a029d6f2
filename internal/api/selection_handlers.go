package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/middleware"
	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/selection"
)

// CreateSelectionRequest represents the request body for submitting a
// finalized photo selection. UserID identifies anonymous customers; when the
// request carries a valid access token, the token identity wins.
type CreateSelectionRequest struct {
	UserID      string   `json:"user_id,omitempty"`
	Name        string   `json:"name,omitempty"`
	PhotoIDs    []string `json:"photo_ids"`
	TotalPhotos int      `json:"total_photos"`
	TotalPrice  float64  `json:"total_price"`
}

// SelectionHandlers holds dependencies for selection HTTP handlers.
type SelectionHandlers struct {
	selectionRepo selection.Repository
	eventRepo     event.Repository
	photoRepo     photo.Repository
	logger        *slog.Logger
}

// NewSelectionHandlers creates a new SelectionHandlers instance.
func NewSelectionHandlers(selectionRepo selection.Repository, eventRepo event.Repository, photoRepo photo.Repository, logger *slog.Logger) *SelectionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectionHandlers{
		selectionRepo: selectionRepo,
		eventRepo:     eventRepo,
		photoRepo:     photoRepo,
		logger:        logger,
	}
}

// CreateSelection handles POST /events/{id}/selections.
// Anonymous customers are accepted: identity comes from the access token when
// one is present, and from the submitted user_id otherwise. The total is
// recomputed server-side from the event's current price; the client's total
// is only checked against it, never trusted.
func (h *SelectionHandlers) CreateSelection(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	if eventID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	var req CreateSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		userID = strings.TrimSpace(req.UserID)
	}
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "A customer ID is required to submit a selection")
		return
	}

	ids := dedupeIDs(req.PhotoIDs)
	if len(ids) == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeEmptySelection)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeEmptySelection, "A selection must contain at least one photo")
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

	// Every picked photo must belong to this event's catalog.
	for _, id := range ids {
		p, err := h.photoRepo.GetByID(r.Context(), id)
		if err != nil || p.EventID != eventID {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSelectionData)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSelectionData, "Selection references a photo not in this event")
			return
		}
	}

	serverTotal := math.Round(float64(len(ids))*evt.PricePerPhoto*100) / 100
	if req.TotalPrice != 0 && req.TotalPrice != serverTotal {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePriceMismatch)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodePriceMismatch, "Submitted total does not match the current price")
		return
	}

	created, err := h.selectionRepo.Create(r.Context(), &selection.Selection{
		EventID:     eventID,
		UserID:      userID,
		Name:        req.Name,
		PhotoIDs:    strings.Join(ids, ","),
		TotalPhotos: len(ids),
		TotalPrice:  serverTotal,
	})
	if err != nil {
		if errors.Is(err, selection.ErrInvalidSelectionData) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSelectionData)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSelectionData, "Invalid selection payload")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create selection", "error", err, "event_id", eventID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create selection")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, created)
}

// GetSelection handles GET /selections/{id} - visible to the buyer and the
// event owner.
func (h *SelectionHandlers) GetSelection(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/selections/", 0)
	sel, ok := h.loadVisibleSelection(w, r, id)
	if !ok {
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, sel)
}

// ListUserSelections handles GET /users/{id}/selections - own history only.
func (h *SelectionHandlers) ListUserSelections(w http.ResponseWriter, r *http.Request) {
	targetID := pathSegment(r.URL.Path, "/users/", 0)
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	if targetID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "You may only list your own selections")
		return
	}

	selections, err := h.selectionRepo.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list selections", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list selections")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"selections": selections})
}

// ListEventSelections handles GET /events/{id}/selections - event owner only.
func (h *SelectionHandlers) ListEventSelections(w http.ResponseWriter, r *http.Request) {
	eventID := pathSegment(r.URL.Path, "/events/", 0)
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
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
	if evt.UserID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event owner may list its selections")
		return
	}

	selections, err := h.selectionRepo.ListForEvent(r.Context(), eventID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list selections", "error", err, "event_id", eventID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list selections")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"selections": selections})
}

// loadVisibleSelection fetches a selection and checks the requester is its
// buyer or the event owner. Writes the error response on failure.
func (h *SelectionHandlers) loadVisibleSelection(w http.ResponseWriter, r *http.Request, id string) (*selection.Selection, bool) {
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Selection ID is required")
		return nil, false
	}
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return nil, false
	}

	sel, err := h.selectionRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, selection.ErrSelectionNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Selection not found")
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "failed to get selection", "error", err, "selection_id", id)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
		return nil, false
	}

	if sel.UserID != userID {
		evt, err := h.eventRepo.GetByID(r.Context(), sel.EventID)
		if err != nil || evt.UserID != userID {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not your selection")
			return nil, false
		}
	}
	return sel, true
}

// dedupeIDs trims, drops empties and duplicates, and sorts for a stable CSV.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
