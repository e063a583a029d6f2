package photo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository backed by PostgreSQL.
// Writes that can move the cover (CreateBatch, Delete) run inside a
// transaction holding a per-event advisory lock, so two concurrent uploads
// or a delete racing an upload cannot both decide the cover.
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

const photoColumns = `id, event_id, filename, url, thumbnail_url, is_cover, created_at`

func scanPhoto(row interface{ Scan(...any) error }) (*Photo, error) {
	var p Photo
	if err := row.Scan(&p.ID, &p.EventID, &p.Filename, &p.URL, &p.ThumbnailURL, &p.IsCover, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create stores a single photo. The first photo of an event becomes its cover.
func (r *PostgresRepository) Create(ctx context.Context, photo *Photo) (*Photo, error) {
	photos, err := r.CreateBatch(ctx, []*Photo{photo})
	if err != nil {
		return nil, err
	}
	return photos[0], nil
}

// CreateBatch stores several photos for one event inside one transaction.
func (r *PostgresRepository) CreateBatch(ctx context.Context, photos []*Photo) ([]*Photo, error) {
	for _, p := range photos {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	if len(photos) == 0 {
		return []*Photo{}, nil
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	// Serialize per event with an advisory lock: row locks cannot cover an
	// empty catalog, where two concurrent first uploads would both see no
	// cover and both insert one.
	eventID := photos[0].EventID
	if err := lockEvent(ctx, tx, eventID); err != nil {
		return nil, err
	}
	var hasCover bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM photos WHERE event_id = $1 AND is_cover)
	`, eventID).Scan(&hasCover)
	if err != nil {
		return nil, fmt.Errorf("failed to check cover state: %w", err)
	}

	results := make([]*Photo, 0, len(photos))
	for _, p := range photos {
		copied := *p
		if copied.ID == "" {
			copied.ID = uuid.New().String()
		}
		if copied.CreatedAt.IsZero() {
			copied.CreatedAt = time.Now()
		}
		copied.IsCover = false
		if copied.EventID == eventID && !hasCover {
			copied.IsCover = true
			hasCover = true
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO photos (id, event_id, filename, url, thumbnail_url, is_cover, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, copied.ID, copied.EventID, copied.Filename, copied.URL, copied.ThumbnailURL, copied.IsCover, copied.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert photo %s: %w", copied.Filename, err)
		}
		results = append(results, &copied)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit photo batch: %w", err)
	}
	return results, nil
}

// GetByID retrieves a photo by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Photo, error) {
	p, err := scanPhoto(r.db.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return p, nil
}

// ListByEvent returns all photos of an event, oldest first.
func (r *PostgresRepository) ListByEvent(ctx context.Context, eventID string) ([]*Photo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+photoColumns+` FROM photos
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()
	return collectPhotos(rows)
}

// GetByFilenames returns the photos of an event whose filename is in the set.
func (r *PostgresRepository) GetByFilenames(ctx context.Context, eventID string, filenames []string) ([]*Photo, error) {
	if len(filenames) == 0 {
		return []*Photo{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+photoColumns+` FROM photos
		WHERE event_id = $1 AND filename = ANY($2)
		ORDER BY id ASC
	`, eventID, pq.Array(filenames))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve photos by filename: %w", err)
	}
	defer rows.Close()
	return collectPhotos(rows)
}

// CountByEvent returns the number of photos an event has.
func (r *PostgresRepository) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM photos WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}

// Delete removes a photo, reassigning the cover under row locks when needed.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (*Photo, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	// Resolve the event first, then take the same per-event lock as
	// CreateBatch. All cover decisions run under it, so the photo must be
	// re-read once the lock is held.
	var eventID string
	err = tx.QueryRowContext(ctx,
		`SELECT event_id FROM photos WHERE id = $1`, id).Scan(&eventID)
	if err == sql.ErrNoRows {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve photo event: %w", err)
	}
	if err := lockEvent(ctx, tx, eventID); err != nil {
		return nil, err
	}

	p, err := scanPhoto(tx.QueryRowContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}

	if p.IsCover {
		// Pick the oldest sibling as the successor cover.
		successor, err := scanPhoto(tx.QueryRowContext(ctx, `
			SELECT `+photoColumns+` FROM photos
			WHERE event_id = $1 AND id <> $2
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		`, p.EventID, p.ID))
		if err == sql.ErrNoRows {
			return nil, ErrLastPhoto
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pick successor cover: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE photos SET is_cover = TRUE WHERE id = $1`, successor.ID); err != nil {
			return nil, fmt.Errorf("failed to reassign cover: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, p.ID); err != nil {
		return nil, fmt.Errorf("failed to delete photo: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit photo delete: %w", err)
	}
	return p, nil
}

// lockEvent takes a transaction-scoped advisory lock keyed on the event, so
// cover decisions for one event never run concurrently. Released at commit
// or rollback.
func lockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, eventID); err != nil {
		return fmt.Errorf("failed to lock event %s: %w", eventID, err)
	}
	return nil
}

func collectPhotos(rows *sql.Rows) ([]*Photo, error) {
	photos := []*Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photo rows: %w", err)
	}
	return photos, nil
}
