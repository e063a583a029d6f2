package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for event data operations.
type Repository interface {
	// Create stores a new event, generating an ID when absent.
	// Validates event invariants before storing.
	Create(ctx context.Context, event *Event) (*Event, error)

	// Update modifies an existing event. Returns ErrEventNotFound if missing.
	Update(ctx context.Context, event *Event) (*Event, error)

	// Delete removes an event by ID. Returns ErrEventNotFound if missing.
	Delete(ctx context.Context, id string) error

	// GetByID retrieves an event by its ID. Returns ErrEventNotFound if missing.
	GetByID(ctx context.Context, id string) (*Event, error)

	// ListPublic returns public events that have at least one photo,
	// newest first, paginated. The second return value is the total count.
	ListPublic(ctx context.Context, page, perPage int) ([]*Event, int, error)

	// ListRelevant returns up to n public events ordered by relevance score.
	ListRelevant(ctx context.Context, n int) ([]*Event, error)

	// ListByOwner returns all events owned by the given user, newest first.
	ListByOwner(ctx context.Context, userID string) ([]*Event, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events map[string]*Event

	// HasPhotos reports whether an event has at least one photo. When nil,
	// every event is treated as having photos. Set by tests and by dev-mode
	// wiring where the photo repository lives in the same process.
	HasPhotos func(eventID string) bool
}

// NewInMemoryRepository creates a new in-memory event repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string]*Event),
	}
}

// Create stores a new event, generating an ID when absent.
func (r *InMemoryRepository) Create(ctx context.Context, event *Event) (*Event, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *event
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	r.events[copied.ID] = &copied

	result := copied
	return &result, nil
}

// Update modifies an existing event.
func (r *InMemoryRepository) Update(ctx context.Context, event *Event) (*Event, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; !ok {
		return nil, ErrEventNotFound
	}

	now := time.Now()
	copied := *event
	copied.UpdatedAt = &now
	r.events[copied.ID] = &copied

	result := copied
	return &result, nil
}

// Delete removes an event by ID.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

// GetByID retrieves an event by its ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

// ListPublic returns public events that have at least one photo, newest first.
func (r *InMemoryRepository) ListPublic(ctx context.Context, page, perPage int) ([]*Event, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Event
	for _, e := range r.events {
		if !e.IsPublic {
			continue
		}
		if r.HasPhotos != nil && !r.HasPhotos(e.ID) {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []*Event{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListRelevant returns up to n public events ordered by relevance score.
func (r *InMemoryRepository) ListRelevant(ctx context.Context, n int) ([]*Event, error) {
	if n < 1 {
		n = 3
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Event
	for _, e := range r.events {
		if !e.IsPublic {
			continue
		}
		if r.HasPhotos != nil && !r.HasPhotos(e.ID) {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].RelevanceScore == matched[j].RelevanceScore {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].RelevanceScore > matched[j].RelevanceScore
	})

	if len(matched) > n {
		matched = matched[:n]
	}
	return matched, nil
}

// ListByOwner returns all events owned by the given user, newest first.
func (r *InMemoryRepository) ListByOwner(ctx context.Context, userID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Event
	for _, e := range r.events {
		if e.UserID != userID {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}
