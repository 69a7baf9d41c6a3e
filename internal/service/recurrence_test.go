package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func juneRule() models.ScheduleRule {
	return models.ScheduleRule{
		Days:            []models.Weekday{models.WeekdayTuesday, models.WeekdayThursday},
		StartTime:       "14:00",
		DurationMinutes: 60,
		StartDate:       date(2024, time.June, 3),
		EndDate:         date(2024, time.June, 30),
	}
}

func TestExpandRuleTueThuJune(t *testing.T) {
	occurrences, err := ExpandRule(juneRule())
	require.NoError(t, err)

	// June 3 2024 is a Monday; Tue/Thu through June 30 gives 8 sessions.
	expected := []time.Time{
		date(2024, time.June, 4), date(2024, time.June, 6),
		date(2024, time.June, 11), date(2024, time.June, 13),
		date(2024, time.June, 18), date(2024, time.June, 20),
		date(2024, time.June, 25), date(2024, time.June, 27),
	}
	require.Len(t, occurrences, len(expected))
	for i, occ := range occurrences {
		assert.Equal(t, expected[i], occ.Date)
		assert.Equal(t, "14:00", occ.StartTime)
		assert.Equal(t, "15:00", occ.EndTime)
	}
}

func TestExpandRuleStrictlyAscending(t *testing.T) {
	rule := juneRule()
	rule.Days = []models.Weekday{
		models.WeekdayMonday, models.WeekdayWednesday, models.WeekdayFriday,
		models.WeekdaySaturday, models.WeekdaySunday,
	}
	occurrences, err := ExpandRule(rule)
	require.NoError(t, err)
	require.NotEmpty(t, occurrences)
	for i := 1; i < len(occurrences); i++ {
		assert.True(t, occurrences[i-1].Date.Before(occurrences[i].Date))
	}
}

func TestExpandRuleEmptyDays(t *testing.T) {
	rule := juneRule()
	rule.Days = nil
	occurrences, err := ExpandRule(rule)
	require.NoError(t, err)
	assert.Empty(t, occurrences)
}

func TestExpandRuleUnsetTime(t *testing.T) {
	rule := juneRule()
	rule.StartTime = ""
	occurrences, err := ExpandRule(rule)
	require.NoError(t, err)
	assert.Empty(t, occurrences)
}

func TestExpandRuleInclusiveBounds(t *testing.T) {
	rule := juneRule()
	rule.Days = []models.Weekday{models.WeekdayMonday, models.WeekdaySunday}
	// Both endpoints land on scheduled weekdays.
	occurrences, err := ExpandRule(rule)
	require.NoError(t, err)
	require.NotEmpty(t, occurrences)
	assert.Equal(t, rule.StartDate, occurrences[0].Date)
	assert.Equal(t, rule.EndDate, occurrences[len(occurrences)-1].Date)
}

func TestValidateRuleRejectsInvertedRange(t *testing.T) {
	rule := juneRule()
	rule.StartDate, rule.EndDate = rule.EndDate, rule.StartDate
	err := ValidateRule(rule)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateRuleRejectsNonPositiveDuration(t *testing.T) {
	rule := juneRule()
	rule.DurationMinutes = 0
	require.Error(t, ValidateRule(rule))
	rule.DurationMinutes = -30
	require.Error(t, ValidateRule(rule))
}

func TestValidateRuleRejectsMidnightRollover(t *testing.T) {
	rule := juneRule()
	rule.StartTime = "23:30"
	rule.DurationMinutes = 45
	err := ValidateRule(rule)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestValidateRuleRejectsUnknownWeekday(t *testing.T) {
	rule := juneRule()
	rule.Days = []models.Weekday{"TUESDAY"}
	require.Error(t, ValidateRule(rule))
}

func TestBucketWeeksJune(t *testing.T) {
	buckets := BucketWeeks(date(2024, time.June, 3), date(2024, time.June, 30))
	require.Len(t, buckets, 4)

	assert.Equal(t, 1, buckets[0].WeekNumber)
	assert.Equal(t, date(2024, time.June, 3), buckets[0].WeekStart)
	assert.Equal(t, date(2024, time.June, 9), buckets[0].WeekEnd)
	assert.Equal(t, date(2024, time.June, 10), buckets[1].WeekStart)
	assert.Equal(t, date(2024, time.June, 16), buckets[1].WeekEnd)
	assert.Equal(t, date(2024, time.June, 17), buckets[2].WeekStart)
	assert.Equal(t, date(2024, time.June, 23), buckets[2].WeekEnd)
	assert.Equal(t, date(2024, time.June, 24), buckets[3].WeekStart)
	assert.Equal(t, date(2024, time.June, 30), buckets[3].WeekEnd)
}

func TestBucketWeeksClampsFinalBucket(t *testing.T) {
	buckets := BucketWeeks(date(2024, time.June, 3), date(2024, time.June, 12))
	require.Len(t, buckets, 2)
	assert.Equal(t, date(2024, time.June, 12), buckets[1].WeekEnd)
}

func TestBucketWeeksTileWithoutGaps(t *testing.T) {
	start := date(2024, time.September, 2)
	end := date(2024, time.December, 20)
	buckets := BucketWeeks(start, end)
	require.NotEmpty(t, buckets)

	assert.Equal(t, start, buckets[0].WeekStart)
	assert.Equal(t, end, buckets[len(buckets)-1].WeekEnd)
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].WeekEnd.AddDate(0, 0, 1), buckets[i].WeekStart)
	}
	for _, bucket := range buckets {
		assert.False(t, bucket.WeekEnd.After(end))
		assert.False(t, bucket.WeekEnd.Before(bucket.WeekStart))
	}
}

func TestBucketWeeksSingleDayRange(t *testing.T) {
	day := date(2024, time.June, 3)
	buckets := BucketWeeks(day, day)
	require.Len(t, buckets, 1)
	assert.Equal(t, day, buckets[0].WeekStart)
	assert.Equal(t, day, buckets[0].WeekEnd)
}

func TestFindWeekBucket(t *testing.T) {
	buckets := BucketWeeks(date(2024, time.June, 3), date(2024, time.June, 30))

	bucket, ok := FindWeekBucket(buckets, 2)
	require.True(t, ok)
	assert.Equal(t, date(2024, time.June, 10), bucket.WeekStart)

	_, ok = FindWeekBucket(buckets, 9)
	assert.False(t, ok)
}

func TestWeekLabel(t *testing.T) {
	buckets := BucketWeeks(date(2024, time.June, 3), date(2024, time.June, 30))
	assert.Equal(t, "Week 1 (Jun 3 – Jun 9)", WeekLabel(buckets[0]))
}

func TestParseTimeOfDay(t *testing.T) {
	minutes, err := ParseTimeOfDay("14:30")
	require.NoError(t, err)
	assert.Equal(t, 870, minutes)

	_, err = ParseTimeOfDay("25:00")
	require.Error(t, err)
	_, err = ParseTimeOfDay("2pm")
	require.Error(t, err)

	assert.Equal(t, "09:05", FormatTimeOfDay(545))
}
