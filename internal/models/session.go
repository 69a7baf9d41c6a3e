package models

import "time"

// SessionState classifies a materialized session occurrence.
type SessionState string

const (
	SessionStateGenerated SessionState = "GENERATED"
	SessionStateModified  SessionState = "MODIFIED"
	SessionStateCancelled SessionState = "CANCELLED"
)

// Occurrence is one raw calendar instance produced by expanding a schedule
// rule, before any exception is applied.
type Occurrence struct {
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// SessionException is a persisted per-occurrence override. The pair
// (class_id, original_date) is the identity of the occurrence and never
// changes, even when the occurrence is rescheduled. Exceptions are never
// deleted; restoring a cancelled session clears is_cancelled while keeping
// the cancellation reason for audit.
type SessionException struct {
	ID                 string     `db:"id" json:"id"`
	ClassID            string     `db:"class_id" json:"class_id"`
	OriginalDate       time.Time  `db:"original_date" json:"original_date"`
	NewDate            *time.Time `db:"new_date" json:"new_date,omitempty"`
	NewTime            *string    `db:"new_time" json:"new_time,omitempty"`
	Cancelled          bool       `db:"is_cancelled" json:"is_cancelled"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	Version            int        `db:"version" json:"version"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// MaterializedSession is the read-time merge of a rule-generated occurrence
// and its exception, as rendered by every calendar view. It is derived, never
// persisted.
type MaterializedSession struct {
	ClassID            string       `json:"class_id"`
	OriginalDate       time.Time    `json:"original_date"`
	EffectiveDate      time.Time    `json:"effective_date"`
	EffectiveStartTime string       `json:"effective_start_time"`
	EffectiveEndTime   string       `json:"effective_end_time"`
	State              SessionState `json:"state"`
	HasException       bool         `json:"has_exception"`
	CancellationReason *string      `json:"cancellation_reason,omitempty"`
}

// WeekBucket is a 7-day label window derived from the class start date, used
// to organize uploaded materials independent of actual meeting days.
type WeekBucket struct {
	WeekNumber int       `json:"week_number"`
	WeekStart  time.Time `json:"week_start"`
	WeekEnd    time.Time `json:"week_end"`
}
