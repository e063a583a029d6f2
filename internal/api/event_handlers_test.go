package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/middleware"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authedRequest builds a request with the given user already authenticated.
func authedRequest(method, target string, body io.Reader, userID string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), userID))
	}
	return req
}

// jsonBody marshals v into a request body reader.
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

// decodeErrorCode extracts the error code from a standard error response.
func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

// seedEvent creates an event directly in the repository.
func seedEvent(t *testing.T, repo event.Repository, evt *event.Event) *event.Event {
	t.Helper()
	created, err := repo.Create(context.Background(), evt)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return created
}

// TestCreateEvent_Success tests that a valid public event is created and
// returned with a generated ID.
func TestCreateEvent_Success(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())

	body := jsonBody(t, CreateEventRequest{
		Title:         "Summer Regatta",
		Date:          time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		IsPublic:      true,
		PricePerPhoto: 4.50,
		City:          "Lisbon",
	})
	req := authedRequest(http.MethodPost, "/events", body, "photographer-1")
	rec := httptest.NewRecorder()

	h.CreateEvent(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created event.Event
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated event ID")
	}
	if created.UserID != "photographer-1" {
		t.Errorf("expected owner photographer-1, got %q", created.UserID)
	}
	if created.PricePerPhoto != 4.50 {
		t.Errorf("expected price 4.50, got %v", created.PricePerPhoto)
	}
}

// TestCreateEvent_SanitizesTitle tests that HTML in titles is escaped.
func TestCreateEvent_SanitizesTitle(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())

	body := jsonBody(t, CreateEventRequest{
		Title:    "<script>alert(1)</script>",
		IsPublic: true,
	})
	req := authedRequest(http.MethodPost, "/events", body, "photographer-1")
	rec := httptest.NewRecorder()

	h.CreateEvent(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created event.Event
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Title == "<script>alert(1)</script>" {
		t.Error("expected title to be sanitized")
	}
}

// TestCreateEvent_TitleTooShort tests validation of the minimum title length.
func TestCreateEvent_TitleTooShort(t *testing.T) {
	h := NewEventHandlers(event.NewInMemoryRepository(), testLogger())

	body := jsonBody(t, CreateEventRequest{Title: "ab", IsPublic: true})
	req := authedRequest(http.MethodPost, "/events", body, "photographer-1")
	rec := httptest.NewRecorder()

	h.CreateEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeValidation {
		t.Errorf("expected %s, got %s", ErrCodeValidation, code)
	}
}

// TestCreateEvent_PrivateRequiresPassword tests that a private event without
// an access password is rejected.
func TestCreateEvent_PrivateRequiresPassword(t *testing.T) {
	h := NewEventHandlers(event.NewInMemoryRepository(), testLogger())

	body := jsonBody(t, CreateEventRequest{Title: "Private Gala", IsPublic: false})
	req := authedRequest(http.MethodPost, "/events", body, "photographer-1")
	rec := httptest.NewRecorder()

	h.CreateEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// TestCreateEvent_Unauthenticated tests that a missing user identity is
// rejected with 401.
func TestCreateEvent_Unauthenticated(t *testing.T) {
	h := NewEventHandlers(event.NewInMemoryRepository(), testLogger())

	body := jsonBody(t, CreateEventRequest{Title: "Summer Regatta", IsPublic: true})
	req := authedRequest(http.MethodPost, "/events", body, "")
	rec := httptest.NewRecorder()

	h.CreateEvent(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeAuthFailed {
		t.Errorf("expected %s, got %s", ErrCodeAuthFailed, code)
	}
}

// TestGetEvent_NotFound tests the 404 path for unknown event IDs.
func TestGetEvent_NotFound(t *testing.T) {
	h := NewEventHandlers(event.NewInMemoryRepository(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/events/missing", nil)
	rec := httptest.NewRecorder()

	h.GetEvent(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeNotFound {
		t.Errorf("expected %s, got %s", ErrCodeNotFound, code)
	}
}

// TestUpdateEvent_NonOwnerForbidden tests that only the owner may update.
func TestUpdateEvent_NonOwnerForbidden(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())
	evt := seedEvent(t, repo, &event.Event{UserID: "owner", Title: "Regatta", IsPublic: true})

	newTitle := "Stolen Event"
	body := jsonBody(t, UpdateEventRequest{Title: &newTitle})
	req := authedRequest(http.MethodPut, "/events/"+evt.ID, body, "intruder")
	rec := httptest.NewRecorder()

	h.UpdateEvent(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

// TestUpdateEvent_PartialUpdate tests that only provided fields change.
func TestUpdateEvent_PartialUpdate(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())
	evt := seedEvent(t, repo, &event.Event{
		UserID: "owner", Title: "Regatta", IsPublic: true, PricePerPhoto: 3, City: "Porto",
	})

	price := 5.25
	body := jsonBody(t, UpdateEventRequest{PricePerPhoto: &price})
	req := authedRequest(http.MethodPut, "/events/"+evt.ID, body, "owner")
	rec := httptest.NewRecorder()

	h.UpdateEvent(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated event.Event
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if updated.PricePerPhoto != 5.25 {
		t.Errorf("expected price 5.25, got %v", updated.PricePerPhoto)
	}
	if updated.Title != "Regatta" || updated.City != "Porto" {
		t.Errorf("expected untouched fields to survive, got %+v", updated)
	}
}

// TestDeleteEvent_Success tests event deletion by the owner.
func TestDeleteEvent_Success(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())
	evt := seedEvent(t, repo, &event.Event{UserID: "owner", Title: "Regatta", IsPublic: true})

	req := authedRequest(http.MethodDelete, "/events/"+evt.ID, nil, "owner")
	rec := httptest.NewRecorder()

	h.DeleteEvent(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, err := repo.GetByID(context.Background(), evt.ID); err == nil {
		t.Error("expected event to be gone")
	}
}

// TestVerifyAccess tests the private event unlock flow with right and wrong
// passwords.
func TestVerifyAccess(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())

	evt := &event.Event{UserID: "owner", Title: "Private Gala", IsPublic: false}
	if err := evt.SetAccessPassword("hunter2"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	created := seedEvent(t, repo, evt)

	t.Run("correct password grants access", func(t *testing.T) {
		body := jsonBody(t, VerifyAccessRequest{Password: "hunter2"})
		req := httptest.NewRequest(http.MethodPost, "/events/"+created.ID+"/access", body)
		rec := httptest.NewRecorder()

		h.VerifyAccess(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("wrong password is denied", func(t *testing.T) {
		body := jsonBody(t, VerifyAccessRequest{Password: "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/events/"+created.ID+"/access", body)
		rec := httptest.NewRecorder()

		h.VerifyAccess(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
		if code := decodeErrorCode(t, rec); code != ErrCodeAccessDenied {
			t.Errorf("expected %s, got %s", ErrCodeAccessDenied, code)
		}
	})
}

// TestListEvents_Pagination tests the paginated public listing envelope.
func TestListEvents_Pagination(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedEvent(t, repo, &event.Event{
			UserID:    "owner",
			Title:     "Event",
			IsPublic:  true,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	// Private events never appear in the public listing.
	private := &event.Event{UserID: "owner", Title: "Hidden", IsPublic: false}
	if err := private.SetAccessPassword("pw"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	seedEvent(t, repo, private)

	req := httptest.NewRequest(http.MethodGet, "/events?page=1&per_page=2", nil)
	rec := httptest.NewRecorder()

	h.ListEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp EventListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("expected total 5, got %d", resp.Total)
	}
	if len(resp.Events) != 2 {
		t.Errorf("expected 2 events on page, got %d", len(resp.Events))
	}
	if resp.Page != 1 || resp.PerPage != 2 {
		t.Errorf("unexpected pagination echo: page=%d per_page=%d", resp.Page, resp.PerPage)
	}
}

// TestListRelevantEvents_Order tests that relevant events come back ordered
// by relevance score.
func TestListRelevantEvents_Order(t *testing.T) {
	repo := event.NewInMemoryRepository()
	h := NewEventHandlers(repo, testLogger())

	seedEvent(t, repo, &event.Event{UserID: "o", Title: "Low", IsPublic: true, RelevanceScore: 1})
	seedEvent(t, repo, &event.Event{UserID: "o", Title: "High", IsPublic: true, RelevanceScore: 9})
	seedEvent(t, repo, &event.Event{UserID: "o", Title: "Mid", IsPublic: true, RelevanceScore: 5})

	req := httptest.NewRequest(http.MethodGet, "/events/relevant?limit=2", nil)
	rec := httptest.NewRecorder()

	h.ListRelevantEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Events []*event.Event `json:"events"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
	if resp.Events[0].Title != "High" || resp.Events[1].Title != "Mid" {
		t.Errorf("expected [High Mid], got [%s %s]", resp.Events[0].Title, resp.Events[1].Title)
	}
}
