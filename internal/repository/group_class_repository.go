package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

const groupClassColumns = `id, title, subject, schedule_days, schedule_time, duration_minutes, start_date, end_date, location, location_link, max_students, active, version, created_at, updated_at`

// GroupClassRepository manages persistence for group classes.
type GroupClassRepository struct {
	db *sqlx.DB
}

// NewGroupClassRepository constructs a new group class repository.
func NewGroupClassRepository(db *sqlx.DB) *GroupClassRepository {
	return &GroupClassRepository{db: db}
}

// List returns classes matching filter criteria along with the total count.
func (r *GroupClassRepository) List(ctx context.Context, filter models.GroupClassFilter) ([]models.GroupClass, int, error) {
	base := "FROM group_classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"subject":    true,
		"start_date": true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", groupClassColumns, base, sortBy, order, size, offset)
	var classes []models.GroupClass
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list group classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count group classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a group class by ID.
func (r *GroupClassRepository) FindByID(ctx context.Context, id string) (*models.GroupClass, error) {
	query := fmt.Sprintf("SELECT %s FROM group_classes WHERE id = $1", groupClassColumns)
	var class models.GroupClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a group class record.
func (r *GroupClassRepository) Create(ctx context.Context, class *models.GroupClass) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	if class.Version == 0 {
		class.Version = 1
	}

	const query = `INSERT INTO group_classes (id, title, subject, schedule_days, schedule_time, duration_minutes, start_date, end_date, location, location_link, max_students, active, version, created_at, updated_at)
VALUES (:id, :title, :subject, :schedule_days, :schedule_time, :duration_minutes, :start_date, :end_date, :location, :location_link, :max_students, :active, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create group class: %w", err)
	}
	return nil
}

// Update modifies the non-schedule fields of a class.
func (r *GroupClassRepository) Update(ctx context.Context, class *models.GroupClass) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE group_classes SET title = :title, subject = :subject, location = :location, location_link = :location_link, max_students = :max_students, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update group class: %w", err)
	}
	return nil
}

// UpdateSchedule writes the schedule fields guarded by the stored version.
// The write bumps the version; a zero row count means another edit landed
// first.
func (r *GroupClassRepository) UpdateSchedule(ctx context.Context, class *models.GroupClass, expectedVersion int) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE group_classes
SET schedule_days = $1, schedule_time = $2, duration_minutes = $3, start_date = $4, end_date = $5, location = $6, location_link = $7, version = version + 1, updated_at = $8
WHERE id = $9 AND version = $10`
	result, err := r.db.ExecContext(ctx, query,
		class.ScheduleDays, class.ScheduleTime, class.DurationMinutes,
		class.StartDate, class.EndDate, class.Location, class.LocationLink,
		class.UpdatedAt, class.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update group class schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update group class schedule: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrStaleVersion
	}
	class.Version = expectedVersion + 1
	return nil
}

// Delete removes a group class record.
// Delete deactivates a class. Rows are kept so past sessions, attendance and
// audit history stay resolvable.
func (r *GroupClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE group_classes SET active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate group class: %w", err)
	}
	return nil
}
