package facematch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/staging"
)

// fakeClient returns canned inference answers.
type fakeClient struct {
	names []string
	err   error

	gotSelfiePath string
}

func (c *fakeClient) MatchFaces(ctx context.Context, selfiePath string) ([]string, error) {
	c.gotSelfiePath = selfiePath
	if c.err != nil {
		return nil, c.err
	}
	return c.names, nil
}

// fakeCandidateStore serves candidates from a fixed key set.
type fakeCandidateStore struct {
	keys []string
}

func (s *fakeCandidateStore) ListByEvent(ctx context.Context, eventID string) ([]string, error) {
	return s.keys, nil
}

func (s *fakeCandidateStore) Download(ctx context.Context, key string, w io.Writer) error {
	_, err := io.WriteString(w, "img")
	return err
}

func newTestService(t *testing.T, store staging.CandidateStore, client Client, photos PhotoResolver) (*Service, *staging.Manager) {
	t.Helper()
	mgr, err := staging.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create staging manager: %v", err)
	}
	return NewService(mgr, store, client, photos, NewMetrics(), nil), mgr
}

func seedPhotos(t *testing.T, repo *photo.InMemoryRepository, eventID string, filenames ...string) {
	t.Helper()
	for _, name := range filenames {
		_, err := repo.Create(context.Background(), &photo.Photo{
			EventID:  eventID,
			Filename: name,
			URL:      "https://cdn.example.com/" + name,
		})
		if err != nil {
			t.Fatalf("failed to seed photo %s: %v", name, err)
		}
	}
}

// TestFindMatches_EndToEnd tests the full pipeline with a matching answer.
func TestFindMatches_EndToEnd(t *testing.T) {
	repo := photo.NewInMemoryRepository()
	seedPhotos(t, repo, "e1", "one.jpg", "two.jpg", "three.jpg")

	client := &fakeClient{names: []string{"two.jpg", "three.jpg"}}
	store := &fakeCandidateStore{keys: []string{"e1-1-one.jpg", "e1-2-two.jpg", "e1-3-three.jpg"}}
	svc, mgr := newTestService(t, store, client, repo)

	matched, err := svc.FindMatches(context.Background(), "e1", "selfie.jpg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("failed to find matches: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	for _, p := range matched {
		if p.Filename != "two.jpg" && p.Filename != "three.jpg" {
			t.Errorf("unexpected matched photo %s", p.Filename)
		}
	}
	if client.gotSelfiePath == "" {
		t.Error("expected client to receive the staged selfie path")
	}

	entries, err := os.ReadDir(mgr.Root())
	if err != nil {
		t.Fatalf("failed to read staging root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected staging area released, found %d leftovers", len(entries))
	}
}

// TestFindMatches_UnknownFilenamesDropped tests reconciliation against the
// catalog: names the catalog no longer knows disappear without error.
func TestFindMatches_UnknownFilenamesDropped(t *testing.T) {
	repo := photo.NewInMemoryRepository()
	seedPhotos(t, repo, "e1", "one.jpg")

	client := &fakeClient{names: []string{"one.jpg", "deleted.jpg"}}
	svc, _ := newTestService(t, &fakeCandidateStore{keys: []string{"k1"}}, client, repo)

	matched, err := svc.FindMatches(context.Background(), "e1", "selfie.jpg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("failed to find matches: %v", err)
	}
	if len(matched) != 1 || matched[0].Filename != "one.jpg" {
		t.Errorf("expected only one.jpg to survive reconciliation, got %v", matched)
	}
}

// TestFindMatches_AllMatchesStale tests that a fully stale answer is an
// empty result, not a failure.
func TestFindMatches_AllMatchesStale(t *testing.T) {
	repo := photo.NewInMemoryRepository()
	seedPhotos(t, repo, "e1", "one.jpg")

	client := &fakeClient{names: []string{"gone-a.jpg", "gone-b.jpg"}}
	svc, _ := newTestService(t, &fakeCandidateStore{keys: []string{"k1"}}, client, repo)

	matched, err := svc.FindMatches(context.Background(), "e1", "selfie.jpg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("expected stale matches to reconcile to empty, got %v", err)
	}
	if len(matched) != 0 {
		t.Errorf("expected 0 matches, got %d", len(matched))
	}
}

// TestFindMatches_ErrorPropagation tests pass-through of pipeline failures.
func TestFindMatches_ErrorPropagation(t *testing.T) {
	repo := photo.NewInMemoryRepository()
	seedPhotos(t, repo, "e1", "one.jpg")

	cases := []struct {
		name    string
		store   staging.CandidateStore
		client  Client
		selfie  io.Reader
		wantErr error
	}{
		{"invalid upload", &fakeCandidateStore{keys: []string{"k"}}, &fakeClient{}, nil, staging.ErrInvalidUpload},
		{"no candidates", &fakeCandidateStore{}, &fakeClient{}, strings.NewReader("x"), staging.ErrNoCandidates},
		{"no match", &fakeCandidateStore{keys: []string{"k"}}, &fakeClient{err: ErrNoMatch}, strings.NewReader("x"), ErrNoMatch},
		{"unavailable", &fakeCandidateStore{keys: []string{"k"}}, &fakeClient{err: ErrUnavailable}, strings.NewReader("x"), ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mgr := newTestService(t, tc.store, tc.client, repo)
			_, err := svc.FindMatches(context.Background(), "e1", "selfie.jpg", tc.selfie)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}

			entries, readErr := os.ReadDir(mgr.Root())
			if readErr != nil {
				t.Fatalf("failed to read staging root: %v", readErr)
			}
			for _, e := range entries {
				t.Errorf("expected staging released on failure, found %s",
					filepath.Join(mgr.Root(), e.Name()))
			}
		})
	}
}
