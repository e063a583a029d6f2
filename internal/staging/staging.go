// Package staging manages per-request scratch directories for face-match
// uploads: one selfie plus optional local copies of the event's candidate
// photos, created at request start and removed unconditionally at request end.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors for staging operations.
var (
	// ErrInvalidUpload is returned when the selfie is missing or unnamed.
	ErrInvalidUpload = errors.New("invalid selfie upload")

	// ErrNoCandidates is returned when the remote store has no photos for
	// the event while candidate sync is enabled.
	ErrNoCandidates = errors.New("no candidate photos for event")
)

// Subdirectory names within a staging area.
const (
	selfieDir = "selfie"
	photosDir = "photos"
)

// CandidateStore lists and downloads an event's source photos from the
// remote blob store. A nil store means candidate sync is disabled.
type CandidateStore interface {
	// ListByEvent returns the object keys of the event's photos.
	ListByEvent(ctx context.Context, eventID string) ([]string, error)

	// Download writes the object's content to w.
	Download(ctx context.Context, key string, w io.Writer) error
}

// Area is one request's scratch directory. The token makes the directory
// name unique even when two requests for the same event start in the same
// instant, so concurrent requests never collide.
type Area struct {
	EventID    string
	Token      string
	Root       string // absolute path of the area directory
	SelfiePath string // absolute path of the staged selfie
}

// Manager creates and removes staging areas under one scratch root.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager creates a Manager, ensuring the scratch root exists.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "fotopro-staging")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	return &Manager{root: root, logger: logger}, nil
}

// Root returns the scratch root directory.
func (m *Manager) Root() string {
	return m.root
}

// Stage creates a fresh area for the event and writes the selfie into its
// selfie subdirectory. Returns ErrInvalidUpload when the selfie reader is nil
// or the filename is empty.
func (m *Manager) Stage(eventID, filename string, selfie io.Reader) (*Area, error) {
	if selfie == nil || strings.TrimSpace(filename) == "" {
		return nil, ErrInvalidUpload
	}
	if eventID == "" {
		return nil, ErrInvalidUpload
	}

	token := uuid.New().String()
	root := filepath.Join(m.root, eventID+"-"+token)

	if err := os.MkdirAll(filepath.Join(root, selfieDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging area: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, photosDir), 0o755); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create staging area: %w", err)
	}

	selfiePath := filepath.Join(root, selfieDir, filepath.Base(filename))
	f, err := os.Create(selfiePath)
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create staged selfie: %w", err)
	}
	if _, err := io.Copy(f, selfie); err != nil {
		_ = f.Close()
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to write staged selfie: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("failed to close staged selfie: %w", err)
	}

	return &Area{
		EventID:    eventID,
		Token:      token,
		Root:       root,
		SelfiePath: selfiePath,
	}, nil
}

// PopulateCandidates downloads the event's source photos into the area's
// photos subdirectory. When store is nil (candidate sync disabled) it returns
// an empty list. Returns ErrNoCandidates when the store lists zero objects.
func (m *Manager) PopulateCandidates(ctx context.Context, area *Area, store CandidateStore) ([]string, error) {
	if store == nil {
		return []string{}, nil
	}

	keys, err := store.ListByEvent(ctx, area.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate photos: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNoCandidates
	}

	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		local := filepath.Join(area.Root, photosDir, filepath.Base(key))
		f, err := os.Create(local)
		if err != nil {
			return nil, fmt.Errorf("failed to create candidate file: %w", err)
		}
		if err := store.Download(ctx, key, f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to download candidate %s: %w", key, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close candidate file: %w", err)
		}
		paths = append(paths, local)
	}
	return paths, nil
}

// Release removes the area's directory tree. Best effort: a failure is
// logged, never returned, so cleanup cannot mask the pipeline's own error.
// Safe to call more than once and with a nil area.
func (m *Manager) Release(area *Area) {
	if area == nil || area.Root == "" {
		return
	}
	if err := os.RemoveAll(area.Root); err != nil {
		m.logger.Warn("failed to remove staging area",
			slog.String("area", area.Root),
			slog.String("error", err.Error()))
	}
}

// PurgeStale removes staging areas older than maxAge, left behind by
// interrupted runs. Returns the number of areas removed.
func (m *Manager) PurgeStale(maxAge time.Duration) int {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("failed to read staging root", slog.String("error", err.Error()))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to purge stale staging area",
				slog.String("area", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed
}
