package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentRecordNotFound is returned when a payment record is not found.
var ErrPaymentRecordNotFound = errors.New("payment record not found")

// Repository defines methods for payment record persistence.
type Repository interface {
	Insert(ctx context.Context, record *PaymentRecord) error
	GetByID(ctx context.Context, id string) (*PaymentRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*PaymentRecord, error)
	GetBySelectionID(ctx context.Context, selectionID string) (*PaymentRecord, error)
	Update(ctx context.Context, record *PaymentRecord) error
}

// InMemoryRepository implements Repository with in-memory storage.
// Used for testing and development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*PaymentRecord
}

// NewInMemoryRepository creates a new in-memory payment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*PaymentRecord),
	}
}

// Insert adds a new payment record.
func (r *InMemoryRepository) Insert(ctx context.Context, record *PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}

	// Deep copy to prevent external mutation
	copied := *record
	r.records[record.ID] = &copied
	return nil
}

// GetByID retrieves a payment record by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, ErrPaymentRecordNotFound
	}
	copied := *record
	return &copied, nil
}

// GetBySessionID retrieves a payment record by Checkout Session ID.
func (r *InMemoryRepository) GetBySessionID(ctx context.Context, sessionID string) (*PaymentRecord, error) {
	return r.find(func(rec *PaymentRecord) bool { return rec.SessionID == sessionID })
}

// GetBySelectionID retrieves a payment record by selection ID.
func (r *InMemoryRepository) GetBySelectionID(ctx context.Context, selectionID string) (*PaymentRecord, error) {
	return r.find(func(rec *PaymentRecord) bool { return rec.SelectionID == selectionID })
}

func (r *InMemoryRepository) find(match func(*PaymentRecord) bool) (*PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if match(record) {
			copied := *record
			return &copied, nil
		}
	}
	return nil, ErrPaymentRecordNotFound
}

// Update updates an existing payment record.
func (r *InMemoryRepository) Update(ctx context.Context, record *PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; !ok {
		return ErrPaymentRecordNotFound
	}

	now := time.Now()
	record.UpdatedAt = &now

	copied := *record
	r.records[record.ID] = &copied
	return nil
}
