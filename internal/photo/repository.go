package photo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for photo data operations.
//
// Implementations must serialize Delete with respect to concurrent deletes on
// the same event: after any sequence of deletes, an event with remaining
// photos has exactly one cover.
type Repository interface {
	// Create stores a single photo. The first photo of an event becomes
	// its cover.
	Create(ctx context.Context, photo *Photo) (*Photo, error)

	// CreateBatch stores several photos for one event. If the event has no
	// photos yet, the first photo of the batch becomes the cover.
	CreateBatch(ctx context.Context, photos []*Photo) ([]*Photo, error)

	// GetByID retrieves a photo by its ID.
	GetByID(ctx context.Context, id string) (*Photo, error)

	// ListByEvent returns all photos of an event, oldest first.
	ListByEvent(ctx context.Context, eventID string) ([]*Photo, error)

	// GetByFilenames returns the photos of an event whose filename is a
	// member of the given set. A pure filter: unknown filenames are ignored
	// and an empty result is not an error.
	GetByFilenames(ctx context.Context, eventID string, filenames []string) ([]*Photo, error)

	// CountByEvent returns the number of photos an event has.
	CountByEvent(ctx context.Context, eventID string) (int, error)

	// Delete removes a photo. Deleting the cover reassigns the cover flag to
	// another remaining photo; deleting the sole photo of an event while it
	// is the cover returns ErrLastPhoto and leaves the photo in place.
	Delete(ctx context.Context, id string) (*Photo, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. The single mutex serializes delete and
// cover reassignment, upholding the one-cover invariant under concurrency.
type InMemoryRepository struct {
	mu     sync.RWMutex
	photos map[string]*Photo
}

// NewInMemoryRepository creates a new in-memory photo repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		photos: make(map[string]*Photo),
	}
}

// Create stores a single photo. The first photo of an event becomes its cover.
func (r *InMemoryRepository) Create(ctx context.Context, photo *Photo) (*Photo, error) {
	if err := photo.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	copied := r.insertLocked(photo)
	result := *copied
	return &result, nil
}

// CreateBatch stores several photos for one event.
func (r *InMemoryRepository) CreateBatch(ctx context.Context, photos []*Photo) ([]*Photo, error) {
	for _, p := range photos {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]*Photo, 0, len(photos))
	for _, p := range photos {
		copied := *r.insertLocked(p)
		results = append(results, &copied)
	}
	return results, nil
}

// insertLocked stores a photo and assigns the cover flag when the event has
// none. Caller must hold the write lock.
func (r *InMemoryRepository) insertLocked(photo *Photo) *Photo {
	copied := *photo
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	if !r.eventHasCoverLocked(copied.EventID) {
		copied.IsCover = true
	} else if copied.IsCover {
		// Demote any existing cover so the invariant holds.
		for _, other := range r.photos {
			if other.EventID == copied.EventID && other.IsCover {
				other.IsCover = false
			}
		}
	}
	r.photos[copied.ID] = &copied
	return &copied
}

func (r *InMemoryRepository) eventHasCoverLocked(eventID string) bool {
	for _, p := range r.photos {
		if p.EventID == eventID && p.IsCover {
			return true
		}
	}
	return false
}

// GetByID retrieves a photo by its ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, ErrPhotoNotFound
	}
	copied := *p
	return &copied, nil
}

// ListByEvent returns all photos of an event, oldest first.
func (r *InMemoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Photo
	for _, p := range r.photos {
		if p.EventID != eventID {
			continue
		}
		copied := *p
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

// GetByFilenames returns the photos of an event whose filename is in the set.
func (r *InMemoryRepository) GetByFilenames(ctx context.Context, eventID string, filenames []string) ([]*Photo, error) {
	wanted := make(map[string]bool, len(filenames))
	for _, name := range filenames {
		wanted[name] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*Photo{}
	for _, p := range r.photos {
		if p.EventID != eventID || !wanted[p.Filename] {
			continue
		}
		copied := *p
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

// CountByEvent returns the number of photos an event has.
func (r *InMemoryRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, p := range r.photos {
		if p.EventID == eventID {
			count++
		}
	}
	return count, nil
}

// Delete removes a photo, reassigning the cover when needed.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) (*Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, ErrPhotoNotFound
	}

	if p.IsCover {
		// Pick the oldest remaining sibling as the new cover, refusing the
		// delete when this is the event's only photo.
		var successor *Photo
		for _, other := range r.photos {
			if other.ID == p.ID || other.EventID != p.EventID {
				continue
			}
			if successor == nil || other.CreatedAt.Before(successor.CreatedAt) ||
				(other.CreatedAt.Equal(successor.CreatedAt) && other.ID < successor.ID) {
				successor = other
			}
		}
		if successor == nil {
			return nil, ErrLastPhoto
		}
		successor.IsCover = true
	}

	deleted := *p
	delete(r.photos, id)
	return &deleted, nil
}
