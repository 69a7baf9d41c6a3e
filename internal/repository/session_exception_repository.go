package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

const sessionExceptionColumns = `id, class_id, original_date, new_date, new_time, is_cancelled, cancellation_reason, version, created_at, updated_at`

// SessionExceptionRepository manages per-occurrence schedule overrides.
// Rows are identified by (class_id, original_date) and are never deleted;
// restoring a session is just another update.
type SessionExceptionRepository struct {
	db *sqlx.DB
}

// NewSessionExceptionRepository constructs a new session exception repository.
func NewSessionExceptionRepository(db *sqlx.DB) *SessionExceptionRepository {
	return &SessionExceptionRepository{db: db}
}

// ListByClass returns every exception stored for a class, ordered by the
// original occurrence date. Orphaned rows are included; the caller decides
// what to surface.
func (r *SessionExceptionRepository) ListByClass(ctx context.Context, classID string) ([]models.SessionException, error) {
	query := fmt.Sprintf("SELECT %s FROM session_exceptions WHERE class_id = $1 ORDER BY original_date ASC", sessionExceptionColumns)
	var exceptions []models.SessionException
	if err := r.db.SelectContext(ctx, &exceptions, query, classID); err != nil {
		return nil, fmt.Errorf("list session exceptions: %w", err)
	}
	return exceptions, nil
}

// FindByOriginalDate looks up one exception by its occurrence identity.
// The lookup works for orphaned rows too since it never consults the rule.
func (r *SessionExceptionRepository) FindByOriginalDate(ctx context.Context, classID string, originalDate time.Time) (*models.SessionException, error) {
	query := fmt.Sprintf("SELECT %s FROM session_exceptions WHERE class_id = $1 AND original_date = $2", sessionExceptionColumns)
	var exception models.SessionException
	if err := r.db.GetContext(ctx, &exception, query, classID, originalDate); err != nil {
		return nil, err
	}
	return &exception, nil
}

// Insert persists a brand-new exception at version 1.
func (r *SessionExceptionRepository) Insert(ctx context.Context, exception *models.SessionException) error {
	if exception.ID == "" {
		exception.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exception.CreatedAt = now
	exception.UpdatedAt = now
	exception.Version = 1

	const query = `INSERT INTO session_exceptions (id, class_id, original_date, new_date, new_time, is_cancelled, cancellation_reason, version, created_at, updated_at)
VALUES (:id, :class_id, :original_date, :new_date, :new_time, :is_cancelled, :cancellation_reason, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exception); err != nil {
		return fmt.Errorf("insert session exception: %w", err)
	}
	return nil
}

// Update writes the merged exception row guarded by the stored version. A
// zero row count means a concurrent edit moved the row on.
func (r *SessionExceptionRepository) Update(ctx context.Context, exception *models.SessionException, expectedVersion int) error {
	exception.UpdatedAt = time.Now().UTC()
	const query = `UPDATE session_exceptions
SET new_date = $1, new_time = $2, is_cancelled = $3, cancellation_reason = $4, version = version + 1, updated_at = $5
WHERE class_id = $6 AND original_date = $7 AND version = $8`
	result, err := r.db.ExecContext(ctx, query,
		exception.NewDate, exception.NewTime, exception.Cancelled, exception.CancellationReason,
		exception.UpdatedAt, exception.ClassID, exception.OriginalDate, expectedVersion)
	if err != nil {
		return fmt.Errorf("update session exception: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session exception: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrStaleVersion
	}
	exception.Version = expectedVersion + 1
	return nil
}
