package service

import (
	"fmt"
	"time"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

const (
	// DateFormat is the wire format for calendar dates.
	DateFormat = "2006-01-02"
	// TimeOfDayFormat is the wire format for times of day.
	TimeOfDayFormat = "15:04"

	minutesPerDay = 24 * 60
)

// ParseTimeOfDay converts "HH:MM" into minutes since midnight.
func ParseTimeOfDay(raw string) (int, error) {
	parsed, err := time.Parse(TimeOfDayFormat, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", raw, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// FormatTimeOfDay renders minutes since midnight as "HH:MM".
func FormatTimeOfDay(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// NormalizeDate truncates a timestamp to its UTC calendar date.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidateRule rejects rules that could never yield a well-formed session
// set. Empty days or an unset time are valid (the class simply has no
// recurring sessions yet); a duration that rolls the end time past midnight
// is an input error, never silently wrapped.
func ValidateRule(rule models.ScheduleRule) error {
	if rule.EndDate.Before(rule.StartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "end date must not precede start date")
	}
	for _, day := range rule.Days {
		if !day.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown weekday %q", day))
		}
	}
	if rule.StartTime == "" {
		return nil
	}
	start, err := ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "schedule time must be HH:MM")
	}
	if rule.DurationMinutes <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	if start+rule.DurationMinutes >= minutesPerDay {
		return appErrors.Clone(appErrors.ErrValidation, "session must end before midnight")
	}
	return nil
}

// ExpandRule turns a weekly recurrence rule into the ordered list of raw
// occurrences: one per date in [StartDate, EndDate] whose weekday is in the
// rule's day set. Pure function of its input.
func ExpandRule(rule models.ScheduleRule) ([]models.Occurrence, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if len(rule.Days) == 0 || rule.StartTime == "" {
		return []models.Occurrence{}, nil
	}

	startMinutes, err := ParseTimeOfDay(rule.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule time must be HH:MM")
	}
	endTime := FormatTimeOfDay(startMinutes + rule.DurationMinutes)

	wanted := make(map[time.Weekday]struct{}, len(rule.Days))
	for _, day := range rule.Days {
		wanted[day.Time()] = struct{}{}
	}

	first := NormalizeDate(rule.StartDate)
	last := NormalizeDate(rule.EndDate)

	occurrences := make([]models.Occurrence, 0)
	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		if _, ok := wanted[date.Weekday()]; !ok {
			continue
		}
		occurrences = append(occurrences, models.Occurrence{
			Date:      date,
			StartTime: rule.StartTime,
			EndTime:   endTime,
		})
	}
	return occurrences, nil
}

// BucketWeeks splits the class date range into sequential 7-day windows
// starting at the class start date. The final bucket is clamped to the class
// end date. Bucketing is independent of which weekdays actually meet.
func BucketWeeks(startDate, endDate time.Time) []models.WeekBucket {
	first := NormalizeDate(startDate)
	last := NormalizeDate(endDate)
	if last.Before(first) {
		return []models.WeekBucket{}
	}

	buckets := make([]models.WeekBucket, 0)
	for weekStart, number := first, 1; !weekStart.After(last); weekStart, number = weekStart.AddDate(0, 0, 7), number+1 {
		weekEnd := weekStart.AddDate(0, 0, 6)
		if weekEnd.After(last) {
			weekEnd = last
		}
		buckets = append(buckets, models.WeekBucket{
			WeekNumber: number,
			WeekStart:  weekStart,
			WeekEnd:    weekEnd,
		})
	}
	return buckets
}

// FindWeekBucket resolves a stored week number against the bucket list.
func FindWeekBucket(buckets []models.WeekBucket, weekNumber int) (models.WeekBucket, bool) {
	for _, bucket := range buckets {
		if bucket.WeekNumber == weekNumber {
			return bucket, true
		}
	}
	return models.WeekBucket{}, false
}

// WeekLabel formats a bucket into the human label shown on materials.
func WeekLabel(bucket models.WeekBucket) string {
	return fmt.Sprintf("Week %d (%s – %s)", bucket.WeekNumber,
		bucket.WeekStart.Format("Jan 2"), bucket.WeekEnd.Format("Jan 2"))
}
