package facematch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fotopro/fotopro/internal/photo"
	"github.com/fotopro/fotopro/internal/staging"
)

// PhotoResolver reconciles matched filenames against the event's catalog.
type PhotoResolver interface {
	// GetByFilenames returns the event's photos whose filename appears in
	// filenames. Unknown filenames are skipped, not errors.
	GetByFilenames(ctx context.Context, eventID string, filenames []string) ([]*photo.Photo, error)
}

// Service runs the full face-match pipeline for one request: stage the
// selfie, sync the event's candidates, call inference, and reconcile the
// answer against the catalog. The staging area is released on every path.
type Service struct {
	staging *staging.Manager
	store   staging.CandidateStore
	client  Client
	photos  PhotoResolver
	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a face-match Service. store may be nil when candidate
// sync is disabled (the inference service then reads photos it already has).
func NewService(mgr *staging.Manager, store staging.CandidateStore, client Client, photos PhotoResolver, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		staging: mgr,
		store:   store,
		client:  client,
		photos:  photos,
		metrics: metrics,
		logger:  logger,
	}
}

// FindMatches returns the event's photos that contain the person in the
// uploaded selfie. Matched filenames the catalog no longer knows are dropped
// silently; an empty reconciled result is a valid answer, not a failure.
func (s *Service) FindMatches(ctx context.Context, eventID, filename string, selfie io.Reader) ([]*photo.Photo, error) {
	area, err := s.staging.Stage(eventID, filename, selfie)
	if err != nil {
		s.count(err)
		return nil, err
	}
	defer s.staging.Release(area)

	candidates, err := s.staging.PopulateCandidates(ctx, area, s.store)
	if err != nil {
		s.count(err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveCandidates(len(candidates))
	}

	start := time.Now()
	names, err := s.client.MatchFaces(ctx, area.SelfiePath)
	if s.metrics != nil {
		s.metrics.ObserveInference(time.Since(start).Seconds())
	}
	if err != nil {
		s.count(err)
		if errors.Is(err, ErrUnavailable) {
			s.logger.Error("inference service call failed",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()))
		}
		return nil, err
	}

	matched, err := s.photos.GetByFilenames(ctx, eventID, names)
	if err != nil {
		s.count(err)
		return nil, fmt.Errorf("failed to reconcile matches: %w", err)
	}

	s.count(nil)
	s.logger.Info("face match completed",
		slog.String("event_id", eventID),
		slog.Int("inferred", len(names)),
		slog.Int("reconciled", len(matched)))
	return matched, nil
}

func (s *Service) count(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.IncRequests(OutcomeMatched)
	case errors.Is(err, ErrNoMatch):
		s.metrics.IncRequests(OutcomeNoMatch)
	case errors.Is(err, ErrUnavailable):
		s.metrics.IncRequests(OutcomeUnavailable)
	case errors.Is(err, staging.ErrNoCandidates):
		s.metrics.IncRequests(OutcomeNoCandidates)
	case errors.Is(err, staging.ErrInvalidUpload):
		s.metrics.IncRequests(OutcomeInvalidUpload)
	default:
		s.metrics.IncRequests(OutcomeError)
	}
}
