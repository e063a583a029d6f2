package selection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for selection persistence.
// Selections are immutable once created: there is no update or delete, and
// repeated submits for the same user and event create independent records.
type Repository interface {
	// Create validates and stores a finalized selection, returning the
	// persisted record with its generated ID and timestamp.
	Create(ctx context.Context, sel *Selection) (*Selection, error)

	// GetByID retrieves a selection by its ID.
	GetByID(ctx context.Context, id string) (*Selection, error)

	// ListForUser returns a user's selections, newest first.
	ListForUser(ctx context.Context, userID string) ([]*Selection, error)

	// ListForEvent returns an event's selections, newest first.
	ListForEvent(ctx context.Context, eventID string) ([]*Selection, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	selections map[string]*Selection
	order      []string // insertion order, breaks CreatedAt ties stably
}

// NewInMemoryRepository creates a new in-memory selection repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		selections: make(map[string]*Selection),
	}
}

// Create validates and stores a finalized selection.
func (r *InMemoryRepository) Create(ctx context.Context, sel *Selection) (*Selection, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *sel
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	r.selections[copied.ID] = &copied
	r.order = append(r.order, copied.ID)

	result := copied
	return &result, nil
}

// GetByID retrieves a selection by its ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sel, ok := r.selections[id]
	if !ok {
		return nil, ErrSelectionNotFound
	}
	copied := *sel
	return &copied, nil
}

// ListForUser returns a user's selections, newest first.
func (r *InMemoryRepository) ListForUser(ctx context.Context, userID string) ([]*Selection, error) {
	return r.list(func(s *Selection) bool { return s.UserID == userID }), nil
}

// ListForEvent returns an event's selections, newest first.
func (r *InMemoryRepository) ListForEvent(ctx context.Context, eventID string) ([]*Selection, error) {
	return r.list(func(s *Selection) bool { return s.EventID == eventID }), nil
}

func (r *InMemoryRepository) list(match func(*Selection) bool) []*Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Walk insertion order so CreatedAt ties resolve stably.
	position := make(map[string]int, len(r.order))
	for i, id := range r.order {
		position[id] = i
	}

	matched := []*Selection{}
	for _, id := range r.order {
		sel := r.selections[id]
		if !match(sel) {
			continue
		}
		copied := *sel
		matched = append(matched, &copied)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return position[matched[i].ID] > position[matched[j].ID]
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}
