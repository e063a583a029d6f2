package staging

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeStore is an in-memory CandidateStore for tests.
type fakeStore struct {
	objects map[string]string // key -> content
	listErr error
}

func (s *fakeStore) ListByEvent(ctx context.Context, eventID string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := []string{}
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *fakeStore) Download(ctx context.Context, key string, w io.Writer) error {
	content, ok := s.objects[key]
	if !ok {
		return errors.New("no such object")
	}
	_, err := io.WriteString(w, content)
	return err
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

// TestStage_CreatesAreaWithSelfie tests the happy path of staging a selfie.
func TestStage_CreatesAreaWithSelfie(t *testing.T) {
	m := newTestManager(t)

	area, err := m.Stage("event-1", "selfie.jpg", strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	defer m.Release(area)

	if area.EventID != "event-1" || area.Token == "" {
		t.Errorf("unexpected area identity: %+v", area)
	}
	if !strings.HasPrefix(filepath.Base(area.Root), "event-1-") {
		t.Errorf("expected directory prefixed with event ID, got %s", area.Root)
	}

	content, err := os.ReadFile(area.SelfiePath)
	if err != nil {
		t.Fatalf("failed to read staged selfie: %v", err)
	}
	if string(content) != "jpeg-bytes" {
		t.Errorf("unexpected selfie content: %q", content)
	}
}

// TestStage_InvalidUpload tests rejection of missing or unnamed selfies.
func TestStage_InvalidUpload(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Stage("event-1", "selfie.jpg", nil); err != ErrInvalidUpload {
		t.Errorf("nil reader: expected ErrInvalidUpload, got %v", err)
	}
	if _, err := m.Stage("event-1", "  ", strings.NewReader("x")); err != ErrInvalidUpload {
		t.Errorf("blank filename: expected ErrInvalidUpload, got %v", err)
	}
	if _, err := m.Stage("", "selfie.jpg", strings.NewReader("x")); err != ErrInvalidUpload {
		t.Errorf("missing event: expected ErrInvalidUpload, got %v", err)
	}
}

// TestStage_ConcurrentAreasDoNotCollide tests that two areas for the same
// event land in distinct directories.
func TestStage_ConcurrentAreasDoNotCollide(t *testing.T) {
	m := newTestManager(t)

	a, err := m.Stage("event-1", "a.jpg", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("failed to stage first area: %v", err)
	}
	b, err := m.Stage("event-1", "b.jpg", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("failed to stage second area: %v", err)
	}
	defer m.Release(a)
	defer m.Release(b)

	if a.Root == b.Root {
		t.Errorf("expected distinct area directories, both got %s", a.Root)
	}
}

// TestPopulateCandidates_DownloadsObjects tests syncing candidates locally.
func TestPopulateCandidates_DownloadsObjects(t *testing.T) {
	m := newTestManager(t)
	area, err := m.Stage("event-1", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	defer m.Release(area)

	store := &fakeStore{objects: map[string]string{
		"event-1-111-one.jpg": "one",
		"event-1-222-two.jpg": "two",
	}}

	paths, err := m.PopulateCandidates(context.Background(), area, store)
	if err != nil {
		t.Fatalf("failed to populate candidates: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected candidate file %s to exist: %v", p, err)
		}
	}
}

// TestPopulateCandidates_NilStoreDisabled tests that a nil store yields an
// empty list rather than an error.
func TestPopulateCandidates_NilStoreDisabled(t *testing.T) {
	m := newTestManager(t)
	area, err := m.Stage("event-1", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	defer m.Release(area)

	paths, err := m.PopulateCandidates(context.Background(), area, nil)
	if err != nil {
		t.Fatalf("expected nil store to be tolerated, got %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("expected empty candidate list, got %v", paths)
	}
}

// TestPopulateCandidates_EmptyEvent tests the no-candidates failure.
func TestPopulateCandidates_EmptyEvent(t *testing.T) {
	m := newTestManager(t)
	area, err := m.Stage("event-1", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	defer m.Release(area)

	_, err = m.PopulateCandidates(context.Background(), area, &fakeStore{objects: map[string]string{}})
	if err != ErrNoCandidates {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

// TestRelease_RemovesAreaAndIsIdempotent tests cleanup behavior.
func TestRelease_RemovesAreaAndIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	area, err := m.Stage("event-1", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}

	m.Release(area)
	if _, err := os.Stat(area.Root); !os.IsNotExist(err) {
		t.Errorf("expected area directory removed, stat err = %v", err)
	}

	m.Release(area)
	m.Release(nil)
}

// TestPurgeStale_RemovesOnlyOldAreas tests the stale sweep.
func TestPurgeStale_RemovesOnlyOldAreas(t *testing.T) {
	m := newTestManager(t)

	stale, err := m.Stage("event-old", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	fresh, err := m.Stage("event-new", "selfie.jpg", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to stage: %v", err)
	}
	defer m.Release(fresh)

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale.Root, old, old); err != nil {
		t.Fatalf("failed to age staging area: %v", err)
	}

	removed := m.PurgeStale(time.Hour)
	if removed != 1 {
		t.Errorf("expected 1 purged area, got %d", removed)
	}
	if _, err := os.Stat(stale.Root); !os.IsNotExist(err) {
		t.Error("expected stale area removed")
	}
	if _, err := os.Stat(fresh.Root); err != nil {
		t.Errorf("expected fresh area kept: %v", err)
	}
}
