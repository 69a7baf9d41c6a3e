package models

import "time"

// AttendanceStatus represents per-student attendance for one occurrence.
// CANCELLED_ADVANCE records that a single student opted out ahead of a
// session that otherwise proceeded; it is distinct from the session-level
// CANCELLED state, which means the whole occurrence did not happen.
type AttendanceStatus string

const (
	AttendanceStatusUnmarked         AttendanceStatus = "UNMARKED"
	AttendanceStatusAttended         AttendanceStatus = "ATTENDED"
	AttendanceStatusAbsent           AttendanceStatus = "ABSENT"
	AttendanceStatusCancelledAdvance AttendanceStatus = "CANCELLED_ADVANCE"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusUnmarked, AttendanceStatusAttended,
		AttendanceStatusAbsent, AttendanceStatusCancelledAdvance:
		return true
	default:
		return false
	}
}

// AttendanceRecord is keyed by (class_id, original_date, enrollment_id). The
// original date keys the occurrence even after a reschedule.
type AttendanceRecord struct {
	ID           string           `db:"id" json:"id"`
	ClassID      string           `db:"class_id" json:"class_id"`
	OriginalDate time.Time        `db:"original_date" json:"original_date"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// SessionAttendanceRow extends the record with student metadata for rosters.
type SessionAttendanceRow struct {
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Notes        *string          `db:"notes" json:"notes,omitempty"`
}

// StudentAttendanceSummary aggregates a student's attendance within a class.
type StudentAttendanceSummary struct {
	Attended         int     `json:"attended"`
	Absent           int     `json:"absent"`
	CancelledAdvance int     `json:"cancelled_advance"`
	Total            int     `json:"total"`
	Percent          float64 `json:"percent"`
}
