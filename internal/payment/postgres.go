package payment

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

const paymentColumns = `id, session_id, status, amount, user_id, event_id, selection_id, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*PaymentRecord, error) {
	var rec PaymentRecord
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Status, &rec.Amount,
		&rec.UserID, &rec.EventID, &rec.SelectionID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert adds a new payment record.
func (r *PostgresRepository) Insert(ctx context.Context, record *PaymentRecord) error {
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

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, session_id, status, amount, user_id, event_id, selection_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.SessionID, record.Status, record.Amount,
		record.UserID, record.EventID, record.SelectionID, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment record: %w", err)
	}
	return nil
}

// GetByID retrieves a payment record by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*PaymentRecord, error) {
	return r.get(ctx, `id`, id)
}

// GetBySessionID retrieves a payment record by Checkout Session ID.
func (r *PostgresRepository) GetBySessionID(ctx context.Context, sessionID string) (*PaymentRecord, error) {
	return r.get(ctx, `session_id`, sessionID)
}

// GetBySelectionID retrieves a payment record by selection ID.
func (r *PostgresRepository) GetBySelectionID(ctx context.Context, selectionID string) (*PaymentRecord, error) {
	return r.get(ctx, `selection_id`, selectionID)
}

func (r *PostgresRepository) get(ctx context.Context, column, value string) (*PaymentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s = $1`, paymentColumns, column)

	rec, err := scanPayment(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, ErrPaymentRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}
	return rec, nil
}

// Update updates an existing payment record's status and timestamps.
func (r *PostgresRepository) Update(ctx context.Context, record *PaymentRecord) error {
	now := time.Now()
	record.UpdatedAt = &now

	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, amount = $3, updated_at = $4
		WHERE id = $1
	`, record.ID, record.Status, record.Amount, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update payment record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrPaymentRecordNotFound
	}
	return nil
}
