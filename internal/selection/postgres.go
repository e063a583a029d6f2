package selection

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

const selectionColumns = `id, event_id, user_id, name, photo_ids, total_photos, total_price, created_at`

func scanSelection(row interface{ Scan(...any) error }) (*Selection, error) {
	var s Selection
	var name sql.NullString
	err := row.Scan(&s.ID, &s.EventID, &s.UserID, &name, &s.PhotoIDs,
		&s.TotalPhotos, &s.TotalPrice, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Name = name.String
	return &s, nil
}

// Create validates and stores a finalized selection.
func (r *PostgresRepository) Create(ctx context.Context, sel *Selection) (*Selection, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	copied := *sel
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO selections (id, event_id, user_id, name, photo_ids, total_photos, total_price, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`, copied.ID, copied.EventID, copied.UserID, copied.Name, copied.PhotoIDs,
		copied.TotalPhotos, copied.TotalPrice, copied.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert selection: %w", err)
	}
	return &copied, nil
}

// GetByID retrieves a selection by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Selection, error) {
	s, err := scanSelection(r.db.QueryRowContext(ctx,
		`SELECT `+selectionColumns+` FROM selections WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrSelectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}
	return s, nil
}

// ListForUser returns a user's selections, newest first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*Selection, error) {
	return r.list(ctx, `user_id`, userID)
}

// ListForEvent returns an event's selections, newest first.
func (r *PostgresRepository) ListForEvent(ctx context.Context, eventID string) ([]*Selection, error) {
	return r.list(ctx, `event_id`, eventID)
}

func (r *PostgresRepository) list(ctx context.Context, column, value string) ([]*Selection, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM selections
		WHERE %s = $1
		ORDER BY created_at DESC, id DESC
	`, selectionColumns, column)

	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list selections: %w", err)
	}
	defer rows.Close()

	selections := []*Selection{}
	for rows.Next() {
		s, err := scanSelection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan selection row: %w", err)
		}
		selections = append(selections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate selection rows: %w", err)
	}
	return selections, nil
}
