package event

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const eventColumns = `id, user_id, title, description, date, is_public, access_hash,
	price_per_photo, city, venue, relevance_score, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var description, city, venue sql.NullString
	var accessHash sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(&e.ID, &e.UserID, &e.Title, &description, &e.Date, &e.IsPublic,
		&accessHash, &e.PricePerPhoto, &city, &venue, &e.RelevanceScore,
		&e.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.Description = description.String
	e.City = city.String
	e.Venue = venue.String
	if accessHash.Valid {
		h := accessHash.String
		e.AccessHash = &h
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		e.UpdatedAt = &t
	}
	return &e, nil
}

// Create stores a new event, generating an ID when absent.
func (r *PostgresRepository) Create(ctx context.Context, event *Event) (*Event, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	copied := *event
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO events (id, user_id, title, description, date, is_public, access_hash,
			price_per_photo, city, venue, relevance_score, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		copied.ID, copied.UserID, copied.Title, copied.Description, copied.Date,
		copied.IsPublic, copied.AccessHash, copied.PricePerPhoto, copied.City,
		copied.Venue, copied.RelevanceScore, copied.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	return &copied, nil
}

// Update modifies an existing event.
func (r *PostgresRepository) Update(ctx context.Context, event *Event) (*Event, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	query := `
		UPDATE events
		SET title = $2, description = NULLIF($3, ''), date = $4, is_public = $5,
			access_hash = $6, price_per_photo = $7, city = NULLIF($8, ''),
			venue = NULLIF($9, ''), relevance_score = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		event.ID, event.Title, event.Description, event.Date, event.IsPublic,
		event.AccessHash, event.PricePerPhoto, event.City, event.Venue,
		event.RelevanceScore, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrEventNotFound
	}

	copied := *event
	copied.UpdatedAt = &now
	return &copied, nil
}

// Delete removes an event by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetByID retrieves an event by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListPublic returns public events that have at least one photo, newest first.
func (r *PostgresRepository) ListPublic(ctx context.Context, page, perPage int) ([]*Event, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	countQuery := `
		SELECT COUNT(*) FROM events e
		WHERE e.is_public AND EXISTS (SELECT 1 FROM photos p WHERE p.event_id = e.id)
	`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count public events: %w", err)
	}

	query := `
		SELECT ` + eventColumns + ` FROM events e
		WHERE e.is_public AND EXISTS (SELECT 1 FROM photos p WHERE p.event_id = e.id)
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list public events: %w", err)
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// ListRelevant returns up to n public events ordered by relevance score.
func (r *PostgresRepository) ListRelevant(ctx context.Context, n int) ([]*Event, error) {
	if n < 1 {
		n = 3
	}
	query := `
		SELECT ` + eventColumns + ` FROM events e
		WHERE e.is_public AND EXISTS (SELECT 1 FROM photos p WHERE p.event_id = e.id)
		ORDER BY e.relevance_score DESC, e.id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list relevant events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByOwner returns all events owned by the given user, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]*Event, error) {
	query := `
		SELECT ` + eventColumns + ` FROM events
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by owner: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]*Event, error) {
	events := []*Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}
