package models

import "time"

// EnrollmentStatus represents the lifecycle of a group-class enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPendingDiagnostic   EnrollmentStatus = "PENDING_DIAGNOSTIC"
	EnrollmentStatusDiagnosticSubmitted EnrollmentStatus = "DIAGNOSTIC_SUBMITTED"
	EnrollmentStatusEnrolled            EnrollmentStatus = "ENROLLED"
	EnrollmentStatusRejected            EnrollmentStatus = "REJECTED"
)

// Valid returns true when the status is a supported value.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPendingDiagnostic, EnrollmentStatusDiagnosticSubmitted,
		EnrollmentStatusEnrolled, EnrollmentStatusRejected:
		return true
	default:
		return false
	}
}

// Enrollment captures a student's registration to a group class. Only
// ENROLLED entries feed attendance and notification fan-out.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and parent info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	ParentName  string `db:"parent_name" json:"parent_name"`
	ParentEmail string `db:"parent_email" json:"parent_email"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ClassID   string
	StudentID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// ParentContact identifies the notification recipient for one enrolled
// student.
type ParentContact struct {
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	StudentName  string `db:"student_name" json:"student_name"`
	ParentName   string `db:"parent_name" json:"parent_name"`
	ParentEmail  string `db:"parent_email" json:"parent_email"`
}
