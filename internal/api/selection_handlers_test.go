package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fotopro/fotopro/internal/event"
	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/selection"
)

// newSelectionTestFixture wires selection handlers over in-memory
// repositories with one public event and three photos seeded.
func newSelectionTestFixture(t *testing.T) (*SelectionHandlers, *event.Event, []*photo.Photo, *selection.InMemoryRepository) {
	t.Helper()
	eventRepo := event.NewInMemoryRepository()
	photoRepo := photo.NewInMemoryRepository()
	selectionRepo := selection.NewInMemoryRepository()

	evt := seedEvent(t, eventRepo, &event.Event{
		UserID: "owner", Title: "Regatta", IsPublic: true, PricePerPhoto: 2.50,
	})

	photos := make([]*photo.Photo, 0, 3)
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		p, err := photoRepo.Create(context.Background(), &photo.Photo{EventID: evt.ID, Filename: name})
		if err != nil {
			t.Fatalf("seed photo: %v", err)
		}
		photos = append(photos, p)
	}

	h := NewSelectionHandlers(selectionRepo, eventRepo, photoRepo, testLogger())
	return h, evt, photos, selectionRepo
}

// TestCreateSelection_Success tests that a valid submission stores the
// selection with a server-computed total.
func TestCreateSelection_Success(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		Name:     "My picks",
		PhotoIDs: []string{photos[0].ID, photos[1].ID},
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created selection.Selection
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.TotalPhotos != 2 {
		t.Errorf("expected 2 photos, got %d", created.TotalPhotos)
	}
	if created.TotalPrice != 5.00 {
		t.Errorf("expected server total 5.00, got %v", created.TotalPrice)
	}
	if created.UserID != "buyer" {
		t.Errorf("expected buyer as owner, got %q", created.UserID)
	}
	if len(created.PhotoIDList()) != 2 {
		t.Errorf("expected 2 photo IDs in CSV, got %v", created.PhotoIDs)
	}
}

// TestCreateSelection_DeduplicatesPhotoIDs tests that repeated and blank IDs
// collapse before pricing.
func TestCreateSelection_DeduplicatesPhotoIDs(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		PhotoIDs: []string{photos[0].ID, photos[0].ID, " ", photos[1].ID},
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created selection.Selection
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.TotalPhotos != 2 {
		t.Errorf("expected duplicates removed, got %d photos", created.TotalPhotos)
	}
	if created.TotalPrice != 5.00 {
		t.Errorf("expected total 5.00, got %v", created.TotalPrice)
	}
}

// TestCreateSelection_Empty tests that a submission with no photos is
// rejected with the empty-selection code.
func TestCreateSelection_Empty(t *testing.T) {
	h, evt, _, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{PhotoIDs: []string{"", "  "}})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeEmptySelection {
		t.Errorf("expected %s, got %s", ErrCodeEmptySelection, code)
	}
}

// TestCreateSelection_ForeignPhoto tests that a photo from another event
// invalidates the whole submission.
func TestCreateSelection_ForeignPhoto(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		PhotoIDs: []string{photos[0].ID, "not-in-this-event"},
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeInvalidSelectionData {
		t.Errorf("expected %s, got %s", ErrCodeInvalidSelectionData, code)
	}
}

// TestCreateSelection_PriceMismatch tests that a stale client total is
// rejected instead of silently repriced.
func TestCreateSelection_PriceMismatch(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		PhotoIDs:   []string{photos[0].ID, photos[1].ID},
		TotalPrice: 3.00, // server computes 5.00
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodePriceMismatch {
		t.Errorf("expected %s, got %s", ErrCodePriceMismatch, code)
	}
}

// TestCreateSelection_MatchingClientTotal tests that an agreeing client
// total passes the recomputation check.
func TestCreateSelection_MatchingClientTotal(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		PhotoIDs:   []string{photos[0].ID, photos[1].ID},
		TotalPrice: 5.00,
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestCreateSelection_AnonymousCustomer tests that a submission without a
// token is accepted under the customer ID carried in the body.
func TestCreateSelection_AnonymousCustomer(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		UserID:   "guest-42",
		PhotoIDs: []string{photos[0].ID},
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created selection.Selection
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.UserID != "guest-42" {
		t.Errorf("expected anonymous customer ID kept, got %q", created.UserID)
	}
}

// TestCreateSelection_TokenIdentityWins tests that a token identity overrides
// a customer ID in the body.
func TestCreateSelection_TokenIdentityWins(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{
		UserID:   "someone-else",
		PhotoIDs: []string{photos[0].ID},
	})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "buyer")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created selection.Selection
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.UserID != "buyer" {
		t.Errorf("expected token identity, got %q", created.UserID)
	}
}

// TestCreateSelection_MissingCustomerID tests that a submission with neither
// a token nor a body customer ID is rejected.
func TestCreateSelection_MissingCustomerID(t *testing.T) {
	h, evt, photos, _ := newSelectionTestFixture(t)

	body := jsonBody(t, CreateSelectionRequest{PhotoIDs: []string{photos[0].ID}})
	req := authedRequest(http.MethodPost, "/events/"+evt.ID+"/selections", body, "")
	rec := httptest.NewRecorder()

	h.CreateSelection(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeValidation {
		t.Errorf("expected %s, got %s", ErrCodeValidation, code)
	}
}

// TestGetSelection_Visibility tests that a selection is visible to its buyer
// and the event owner, and hidden from anyone else.
func TestGetSelection_Visibility(t *testing.T) {
	h, evt, photos, selectionRepo := newSelectionTestFixture(t)

	sel, err := selectionRepo.Create(context.Background(), &selection.Selection{
		EventID: evt.ID, UserID: "buyer", PhotoIDs: photos[0].ID, TotalPhotos: 1, TotalPrice: 2.50,
	})
	if err != nil {
		t.Fatalf("seed selection: %v", err)
	}

	tests := []struct {
		name       string
		userID     string
		wantStatus int
	}{
		{"buyer sees own selection", "buyer", http.StatusOK},
		{"event owner sees selection", "owner", http.StatusOK},
		{"stranger is refused", "stranger", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authedRequest(http.MethodGet, "/selections/"+sel.ID, nil, tt.userID)
			rec := httptest.NewRecorder()

			h.GetSelection(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

// TestListUserSelections_SelfOnly tests that a user may only list their own
// selection history.
func TestListUserSelections_SelfOnly(t *testing.T) {
	h, evt, photos, selectionRepo := newSelectionTestFixture(t)

	if _, err := selectionRepo.Create(context.Background(), &selection.Selection{
		EventID: evt.ID, UserID: "buyer", PhotoIDs: photos[0].ID, TotalPhotos: 1, TotalPrice: 2.50,
	}); err != nil {
		t.Fatalf("seed selection: %v", err)
	}

	t.Run("own history", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/users/buyer/selections", nil, "buyer")
		rec := httptest.NewRecorder()

		h.ListUserSelections(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Selections []*selection.Selection `json:"selections"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Selections) != 1 {
			t.Errorf("expected 1 selection, got %d", len(resp.Selections))
		}
	})

	t.Run("someone else's history is refused", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/users/buyer/selections", nil, "snoop")
		rec := httptest.NewRecorder()

		h.ListUserSelections(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

// TestListEventSelections_OwnerOnly tests that only the event owner may list
// the selections made against their event.
func TestListEventSelections_OwnerOnly(t *testing.T) {
	h, evt, photos, selectionRepo := newSelectionTestFixture(t)

	if _, err := selectionRepo.Create(context.Background(), &selection.Selection{
		EventID: evt.ID, UserID: "buyer", PhotoIDs: photos[0].ID, TotalPhotos: 1, TotalPrice: 2.50,
	}); err != nil {
		t.Fatalf("seed selection: %v", err)
	}

	t.Run("owner lists selections", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/events/"+evt.ID+"/selections", nil, "owner")
		rec := httptest.NewRecorder()

		h.ListEventSelections(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("buyer cannot list the event's selections", func(t *testing.T) {
		req := authedRequest(http.MethodGet, "/events/"+evt.ID+"/selections", nil, "buyer")
		rec := httptest.NewRecorder()

		h.ListEventSelections(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}
