package models

import (
	"time"

	"github.com/lib/pq"
)

// Weekday is a day-of-week code used in a class schedule rule.
type Weekday string

const (
	WeekdayMonday    Weekday = "MON"
	WeekdayTuesday   Weekday = "TUE"
	WeekdayWednesday Weekday = "WED"
	WeekdayThursday  Weekday = "THU"
	WeekdayFriday    Weekday = "FRI"
	WeekdaySaturday  Weekday = "SAT"
	WeekdaySunday    Weekday = "SUN"
)

// Valid returns true when the code is a supported weekday.
func (d Weekday) Valid() bool {
	switch d {
	case WeekdayMonday, WeekdayTuesday, WeekdayWednesday, WeekdayThursday,
		WeekdayFriday, WeekdaySaturday, WeekdaySunday:
		return true
	default:
		return false
	}
}

// Time maps the code onto the standard library weekday.
func (d Weekday) Time() time.Weekday {
	switch d {
	case WeekdayMonday:
		return time.Monday
	case WeekdayTuesday:
		return time.Tuesday
	case WeekdayWednesday:
		return time.Wednesday
	case WeekdayThursday:
		return time.Thursday
	case WeekdayFriday:
		return time.Friday
	case WeekdaySaturday:
		return time.Saturday
	default:
		return time.Sunday
	}
}

// GroupClass represents a recurring group class offered by the business.
// Schedule fields are only mutated through the dedicated schedule-edit
// operation since they drive occurrence generation.
type GroupClass struct {
	ID              string         `db:"id" json:"id"`
	Title           string         `db:"title" json:"title"`
	Subject         string         `db:"subject" json:"subject"`
	ScheduleDays    pq.StringArray `db:"schedule_days" json:"schedule_days"`
	ScheduleTime    *string        `db:"schedule_time" json:"schedule_time,omitempty"`
	DurationMinutes int            `db:"duration_minutes" json:"duration_minutes"`
	StartDate       time.Time      `db:"start_date" json:"start_date"`
	EndDate         time.Time      `db:"end_date" json:"end_date"`
	Location        string         `db:"location" json:"location"`
	LocationLink    *string        `db:"location_link" json:"location_link,omitempty"`
	MaxStudents     int            `db:"max_students" json:"max_students"`
	Active          bool           `db:"active" json:"active"`
	Version         int            `db:"version" json:"version"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Rule extracts the recurrence rule driving session generation.
func (c *GroupClass) Rule() ScheduleRule {
	days := make([]Weekday, 0, len(c.ScheduleDays))
	for _, raw := range c.ScheduleDays {
		days = append(days, Weekday(raw))
	}
	rule := ScheduleRule{
		Days:            days,
		DurationMinutes: c.DurationMinutes,
		StartDate:       c.StartDate,
		EndDate:         c.EndDate,
	}
	if c.ScheduleTime != nil {
		rule.StartTime = *c.ScheduleTime
	}
	return rule
}

// ScheduleRule is the weekly recurrence rule: which weekdays, at what time,
// for how long, over which inclusive date range.
type ScheduleRule struct {
	Days            []Weekday `json:"days"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

// GroupClassFilter captures filtering criteria for listing classes.
type GroupClassFilter struct {
	Subject   string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FieldChange records one changed schedule field with its old and new values.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// ScheduleDelta captures which schedule fields changed in an edit.
type ScheduleDelta struct {
	ClassID string        `json:"class_id"`
	Changes []FieldChange `json:"changes"`
}

// Changed reports whether the delta carries any change.
func (d ScheduleDelta) Changed() bool {
	return len(d.Changes) > 0
}
