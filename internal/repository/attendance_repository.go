package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/atlas-tutoring/portal-api/internal/models"
)

// AttendanceRepository handles persistence for session attendance records.
// Records are keyed by (class_id, original_date, enrollment_id) so a
// rescheduled occurrence keeps its attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListForSession returns one row per ENROLLED student of the class, joined
// with the stored attendance for the occurrence. Students without a stored
// record come back UNMARKED.
func (r *AttendanceRepository) ListForSession(ctx context.Context, classID string, originalDate time.Time) ([]models.SessionAttendanceRow, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, s.full_name AS student_name,
COALESCE(ar.status, 'UNMARKED') AS status, ar.notes
FROM enrollments e
JOIN students s ON s.id = e.student_id
LEFT JOIN attendance_records ar ON ar.enrollment_id = e.id AND ar.class_id = $1 AND ar.original_date = $2
WHERE e.class_id = $1 AND e.status = $3
ORDER BY s.full_name ASC`
	var rows []models.SessionAttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, classID, originalDate, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// ReplaceForSession atomically swaps the full attendance set for one
// occurrence. Partial saves are never visible.
func (r *AttendanceRepository) ReplaceForSession(ctx context.Context, classID string, originalDate time.Time, records []models.AttendanceRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance replace: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE class_id = $1 AND original_date = $2`, classID, originalDate); err != nil {
		return fmt.Errorf("clear session attendance: %w", err)
	}

	const query = `INSERT INTO attendance_records (id, class_id, original_date, enrollment_id, status, notes, created_at, updated_at)
VALUES (:id, :class_id, :original_date, :enrollment_id, :status, :notes, :created_at, :updated_at)`
	now := time.Now().UTC()
	for i := range records {
		record := &records[i]
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.ClassID = classID
		record.OriginalDate = originalDate
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("insert attendance record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance replace: %w", err)
	}
	commit = true
	return nil
}

// StudentSummary aggregates one enrollment's attendance across the class.
func (r *AttendanceRepository) StudentSummary(ctx context.Context, classID, enrollmentID string) (*models.StudentAttendanceSummary, error) {
	const query = `SELECT status, COUNT(*) AS cnt
FROM attendance_records
WHERE class_id = $1 AND enrollment_id = $2
GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, classID, enrollmentID); err != nil {
		return nil, fmt.Errorf("student attendance summary: %w", err)
	}
	summary := &models.StudentAttendanceSummary{}
	for _, row := range rows {
		switch models.AttendanceStatus(row.Status) {
		case models.AttendanceStatusAttended:
			summary.Attended += row.Count
		case models.AttendanceStatusAbsent:
			summary.Absent += row.Count
		case models.AttendanceStatusCancelledAdvance:
			summary.CancelledAdvance += row.Count
		}
		summary.Total += row.Count
	}
	if summary.Total > 0 {
		summary.Percent = float64(summary.Attended) / float64(summary.Total) * 100
	}
	return summary, nil
}
