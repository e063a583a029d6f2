// Package api provides HTTP handlers for the fotopro API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/middleware"
)

// Event title validation constraints
const (
	MinEventTitleLength = 3
	MaxEventTitleLength = 120
)

// CreateEventRequest represents the request body for creating an event.
type CreateEventRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Date           time.Time `json:"date"`
	IsPublic       bool      `json:"is_public"`
	AccessPassword string    `json:"access_password,omitempty"`
	PricePerPhoto  float64   `json:"price_per_photo"`
	City           string    `json:"city,omitempty"`
	Venue          string    `json:"venue,omitempty"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
}

// UpdateEventRequest represents the request body for updating an event.
// Only includes mutable fields (owner is immutable).
type UpdateEventRequest struct {
	Title          *string    `json:"title,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Date           *time.Time `json:"date,omitempty"`
	IsPublic       *bool      `json:"is_public,omitempty"`
	AccessPassword *string    `json:"access_password,omitempty"`
	PricePerPhoto  *float64   `json:"price_per_photo,omitempty"`
	City           *string    `json:"city,omitempty"`
	Venue          *string    `json:"venue,omitempty"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
}

// VerifyAccessRequest represents the request body for unlocking a private event.
type VerifyAccessRequest struct {
	Password string `json:"password"`
}

// EventListResponse is the paginated envelope for event listings.
type EventListResponse struct {
	Events  []*event.Event `json:"events"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// EventHandlers holds dependencies for event HTTP handlers.
type EventHandlers struct {
	eventRepo event.Repository
	logger    *slog.Logger
}

// NewEventHandlers creates a new EventHandlers instance.
func NewEventHandlers(eventRepo event.Repository, logger *slog.Logger) *EventHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandlers{eventRepo: eventRepo, logger: logger}
}

// validateEventTitle validates an event title.
// Returns error message if validation fails, empty string if valid.
func validateEventTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	if len(trimmed) < MinEventTitleLength {
		return fmt.Sprintf("event title must be at least %d characters", MinEventTitleLength)
	}
	if len(trimmed) > MaxEventTitleLength {
		return fmt.Sprintf("event title must not exceed %d characters", MaxEventTitleLength)
	}
	return ""
}

// sanitizeEventTitle sanitizes event title to prevent HTML injection.
// Should be called after validation passes.
func sanitizeEventTitle(title string) string {
	return html.EscapeString(strings.TrimSpace(title))
}

// CreateEvent handles POST /events - creates a new event.
func (h *EventHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if errMsg := validateEventTitle(req.Title); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}
	req.Title = sanitizeEventTitle(req.Title)

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	evt := &event.Event{
		UserID:         userID,
		Title:          req.Title,
		Description:    req.Description,
		Date:           req.Date,
		IsPublic:       req.IsPublic,
		PricePerPhoto:  req.PricePerPhoto,
		City:           req.City,
		Venue:          req.Venue,
		RelevanceScore: req.RelevanceScore,
	}

	if !req.IsPublic {
		if strings.TrimSpace(req.AccessPassword) == "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "private events require an access password")
			return
		}
		if err := evt.SetAccessPassword(req.AccessPassword); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to hash access password", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create event")
			return
		}
	}

	created, err := h.eventRepo.Create(r.Context(), evt)
	if err != nil {
		if errors.Is(err, event.ErrNegativePrice) || errors.Is(err, event.ErrMissingAccessHash) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to create event", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create event")
		return
	}

	WriteJSON(w, r.Context(), http.StatusCreated, created)
}

// ListEvents handles GET /events - lists public events with photos, paginated.
func (h *EventHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	if perPage > 100 {
		perPage = 100
	}

	events, total, err := h.eventRepo.ListPublic(r.Context(), page, perPage)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list events", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list events")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, EventListResponse{
		Events:  events,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// ListRelevantEvents handles GET /events/relevant - top events for the landing page.
func (h *EventHandlers) ListRelevantEvents(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", 3)
	if n > 20 {
		n = 20
	}

	events, err := h.eventRepo.ListRelevant(r.Context(), n)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list relevant events", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list events")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"events": events})
}

// GetEvent handles GET /events/{id}.
func (h *EventHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/events/", 0)
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	evt, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err, "failed to get event")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, evt)
}

// UpdateEvent handles PUT /events/{id} - owner only.
func (h *EventHandlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/events/", 0)
	evt, ok := h.loadOwnedEvent(w, r, id)
	if !ok {
		return
	}

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.Title != nil {
		if errMsg := validateEventTitle(*req.Title); errMsg != "" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
			return
		}
		evt.Title = sanitizeEventTitle(*req.Title)
	}
	if req.Description != nil {
		evt.Description = *req.Description
	}
	if req.Date != nil {
		evt.Date = *req.Date
	}
	if req.IsPublic != nil {
		evt.IsPublic = *req.IsPublic
	}
	if req.AccessPassword != nil && *req.AccessPassword != "" {
		if err := evt.SetAccessPassword(*req.AccessPassword); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to hash access password", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update event")
			return
		}
	}
	if req.PricePerPhoto != nil {
		evt.PricePerPhoto = *req.PricePerPhoto
	}
	if req.City != nil {
		evt.City = *req.City
	}
	if req.Venue != nil {
		evt.Venue = *req.Venue
	}
	if req.RelevanceScore != nil {
		evt.RelevanceScore = *req.RelevanceScore
	}

	updated, err := h.eventRepo.Update(r.Context(), evt)
	if err != nil {
		if errors.Is(err, event.ErrNegativePrice) || errors.Is(err, event.ErrMissingAccessHash) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		h.writeEventError(w, r, err, "failed to update event")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, updated)
}

// DeleteEvent handles DELETE /events/{id} - owner only.
func (h *EventHandlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/events/", 0)
	if _, ok := h.loadOwnedEvent(w, r, id); !ok {
		return
	}

	if err := h.eventRepo.Delete(r.Context(), id); err != nil {
		h.writeEventError(w, r, err, "failed to delete event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VerifyAccess handles POST /events/{id}/access - unlocks a private event.
func (h *EventHandlers) VerifyAccess(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/events/", 0)
	if id == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Event ID is required")
		return
	}

	var req VerifyAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	evt, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		h.writeEventError(w, r, err, "failed to get event")
		return
	}

	if err := evt.VerifyAccess(req.Password); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAccessDenied)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeAccessDenied, "Wrong password for this event")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]bool{"granted": true})
}

// loadOwnedEvent fetches the event and checks the requester owns it. On
// failure it writes the error response and returns ok=false.
func (h *EventHandlers) loadOwnedEvent(w http.ResponseWriter, r *http.Request, id string) (*event.Event, bool) {
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
		h.writeEventError(w, r, err, "failed to get event")
		return nil, false
	}
	if evt.UserID != userID {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the event owner may do this")
		return nil, false
	}
	return evt, true
}

func (h *EventHandlers) writeEventError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	if errors.Is(err, event.ErrEventNotFound) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Event not found")
		return
	}
	h.logger.ErrorContext(r.Context(), logMsg, "error", err)
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
}

// queryInt parses an integer query parameter with a fallback default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// pathSegment extracts the n-th segment after the given prefix.
// pathSegment("/events/abc/photos", "/events/", 0) returns "abc".
func pathSegment(path, prefix string, n int) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return ""
	}
	parts := strings.Split(rest, "/")
	if n >= len(parts) {
		return ""
	}
	return parts[n]
}
