package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlas-tutoring/portal-api/internal/models"
)

const classFileColumns = `id, class_id, title, week_number, is_current, file_path, mime_type, size_bytes, uploaded_by, created_at, updated_at`

// ClassFileRepository manages persistence for uploaded class materials.
type ClassFileRepository struct {
	db *sqlx.DB
}

// NewClassFileRepository constructs the repository.
func NewClassFileRepository(db *sqlx.DB) *ClassFileRepository {
	return &ClassFileRepository{db: db}
}

// List returns materials matching the filter, newest first.
func (r *ClassFileRepository) List(ctx context.Context, filter models.ClassFileFilter) ([]models.ClassFile, error) {
	where := []string{"class_id = $1"}
	args := []interface{}{filter.ClassID}
	if filter.WeekNumber != nil {
		where = append(where, fmt.Sprintf("week_number = $%d", len(args)+1))
		args = append(args, *filter.WeekNumber)
	}
	if filter.OnlyCurrent {
		where = append(where, "is_current = TRUE")
	}

	query := fmt.Sprintf("SELECT %s FROM class_files WHERE %s ORDER BY created_at DESC", classFileColumns, strings.Join(where, " AND "))
	var files []models.ClassFile
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("list class files: %w", err)
	}
	return files, nil
}

// FindByID returns a material by ID.
func (r *ClassFileRepository) FindByID(ctx context.Context, id string) (*models.ClassFile, error) {
	query := fmt.Sprintf("SELECT %s FROM class_files WHERE id = $1", classFileColumns)
	var file models.ClassFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}

// Create persists a material record. When the upload targets a week that
// already has a current file, the previous one is demoted in the same
// transaction.
func (r *ClassFileRepository) Create(ctx context.Context, file *models.ClassFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	file.CreatedAt = now
	file.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin class file create: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	if file.IsCurrent && file.WeekNumber != nil {
		const demote = `UPDATE class_files SET is_current = FALSE, updated_at = $1 WHERE class_id = $2 AND week_number = $3 AND is_current = TRUE`
		if _, err := tx.ExecContext(ctx, demote, now, file.ClassID, *file.WeekNumber); err != nil {
			return fmt.Errorf("demote current class file: %w", err)
		}
	}

	const query = `INSERT INTO class_files (id, class_id, title, week_number, is_current, file_path, mime_type, size_bytes, uploaded_by, created_at, updated_at)
VALUES (:id, :class_id, :title, :week_number, :is_current, :file_path, :mime_type, :size_bytes, :uploaded_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create class file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit class file create: %w", err)
	}
	commit = true
	return nil
}

// SetCurrent promotes one material to be the current file for its week and
// demotes any sibling in the same class and week.
func (r *ClassFileRepository) SetCurrent(ctx context.Context, file *models.ClassFile) error {
	now := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current class file: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	if file.WeekNumber != nil {
		const demote = `UPDATE class_files SET is_current = FALSE, updated_at = $1 WHERE class_id = $2 AND week_number = $3 AND is_current = TRUE AND id <> $4`
		if _, err := tx.ExecContext(ctx, demote, now, file.ClassID, *file.WeekNumber, file.ID); err != nil {
			return fmt.Errorf("demote current class file: %w", err)
		}
	}

	const promote = `UPDATE class_files SET is_current = TRUE, updated_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, promote, now, file.ID); err != nil {
		return fmt.Errorf("promote class file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set current class file: %w", err)
	}
	commit = true
	file.IsCurrent = true
	file.UpdatedAt = now
	return nil
}

// Delete removes a material record.
func (r *ClassFileRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM class_files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class file: %w", err)
	}
	return nil
}
