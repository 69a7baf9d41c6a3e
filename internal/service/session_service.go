package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

type sessionClassReader interface {
	FindByID(ctx context.Context, id string) (*models.GroupClass, error)
}

type exceptionRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.SessionException, error)
	FindByOriginalDate(ctx context.Context, classID string, originalDate time.Time) (*models.SessionException, error)
	Insert(ctx context.Context, exception *models.SessionException) error
	Update(ctx context.Context, exception *models.SessionException, expectedVersion int) error
}

type calendarCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type sessionNotifier interface {
	Notify(ctx context.Context, classID string, message models.NotificationMessage) models.NotificationResult
}

type calendarMetrics interface {
	RecordCacheOperation(hit bool)
	RecordSessionsServed(count int)
}

// CalendarQuery narrows a materialized calendar view. Cancelled sessions are
// part of the merged view by default; ExcludeCancelled opts out.
type CalendarQuery struct {
	WeekNumber       *int
	From             *time.Time
	To               *time.Time
	ExcludeCancelled bool
}

// UpsertExceptionRequest is the partial override payload for one occurrence.
type UpsertExceptionRequest struct {
	NewDate            *time.Time `json:"new_date"`
	NewTime            *string    `json:"new_time"`
	Cancelled          *bool      `json:"cancelled"`
	CancellationReason *string    `json:"cancellation_reason"`
	ExpectedVersion    *int       `json:"expected_version"`
}

// SessionService materializes calendar views by expanding each class's
// recurrence rule and merging stored exceptions on top. Materialized sessions
// are a pure projection; nothing here writes occurrence rows.
type SessionService struct {
	classes    sessionClassReader
	exceptions exceptionRepository
	cache      calendarCache
	notifier   sessionNotifier
	metrics    calendarMetrics
	cacheTTL   time.Duration
	useCache   bool
	logger     *zap.Logger
}

// NewSessionService constructs the session materializer.
func NewSessionService(classes sessionClassReader, exceptions exceptionRepository, cache calendarCache, notifier sessionNotifier, metrics calendarMetrics, cacheTTL time.Duration, useCache bool, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SessionService{
		classes:    classes,
		exceptions: exceptions,
		cache:      cache,
		notifier:   notifier,
		metrics:    metrics,
		cacheTTL:   cacheTTL,
		useCache:   useCache,
		logger:     logger,
	}
}

func calendarCacheKey(classID string, version int) string {
	return fmt.Sprintf("calendar:%s:v%d", classID, version)
}

// Materialize returns the full merged session list for a class, sorted by
// effective date then start time. Exceptions whose original date no longer
// matches the rule are silently excluded from the merge.
func (s *SessionService) Materialize(ctx context.Context, classID string, query CalendarQuery) ([]models.MaterializedSession, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.materializeClass(ctx, class)
	if err != nil {
		return nil, err
	}
	filtered, err := s.filter(class, sessions, query)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordSessionsServed(len(filtered))
	}
	return filtered, nil
}

func (s *SessionService) materializeClass(ctx context.Context, class *models.GroupClass) ([]models.MaterializedSession, error) {
	key := calendarCacheKey(class.ID, class.Version)
	if s.useCache && s.cache != nil {
		var cached []models.MaterializedSession
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordCacheOperation(true)
			}
			return cached, nil
		} else if err != appErrors.ErrCacheMiss {
			s.logger.Sugar().Warnw("calendar cache read failed", "class_id", class.ID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false)
		}
	}

	occurrences, err := ExpandRule(class.Rule())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored schedule rule is invalid")
	}

	exceptions, err := s.exceptions.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session exceptions")
	}
	byDate := make(map[string]*models.SessionException, len(exceptions))
	for i := range exceptions {
		byDate[exceptions[i].OriginalDate.Format(DateFormat)] = &exceptions[i]
	}

	sessions := make([]models.MaterializedSession, 0, len(occurrences))
	for _, occurrence := range occurrences {
		sessions = append(sessions, mergeOccurrence(class, occurrence, byDate[occurrence.Date.Format(DateFormat)]))
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].EffectiveDate.Equal(sessions[j].EffectiveDate) {
			return sessions[i].EffectiveDate.Before(sessions[j].EffectiveDate)
		}
		return sessions[i].EffectiveStartTime < sessions[j].EffectiveStartTime
	})

	if s.useCache && s.cache != nil {
		if err := s.cache.Set(ctx, key, sessions, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("calendar cache write failed", "class_id", class.ID, "error", err)
		}
	}
	return sessions, nil
}

// mergeOccurrence applies an exception on top of a rule-generated occurrence.
// The occurrence identity stays the original date; reschedules only move the
// effective fields. A cancelled override wins over reschedule fields.
func mergeOccurrence(class *models.GroupClass, occurrence models.Occurrence, exception *models.SessionException) models.MaterializedSession {
	session := models.MaterializedSession{
		ClassID:            class.ID,
		OriginalDate:       occurrence.Date,
		EffectiveDate:      occurrence.Date,
		EffectiveStartTime: occurrence.StartTime,
		EffectiveEndTime:   occurrence.EndTime,
		State:              models.SessionStateGenerated,
	}
	if exception == nil {
		return session
	}

	session.HasException = true
	if exception.NewDate != nil {
		session.EffectiveDate = NormalizeDate(*exception.NewDate)
		session.State = models.SessionStateModified
	}
	if exception.NewTime != nil {
		session.EffectiveStartTime = *exception.NewTime
		if start, err := ParseTimeOfDay(*exception.NewTime); err == nil {
			session.EffectiveEndTime = FormatTimeOfDay(start + class.DurationMinutes)
		}
		session.State = models.SessionStateModified
	}
	if exception.Cancelled {
		session.State = models.SessionStateCancelled
		session.CancellationReason = exception.CancellationReason
	}
	return session
}

func (s *SessionService) filter(class *models.GroupClass, sessions []models.MaterializedSession, query CalendarQuery) ([]models.MaterializedSession, error) {
	from, to := query.From, query.To
	if query.WeekNumber != nil {
		buckets := BucketWeeks(class.StartDate, class.EndDate)
		bucket, ok := FindWeekBucket(buckets, *query.WeekNumber)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "week not found")
		}
		from, to = &bucket.WeekStart, &bucket.WeekEnd
	}

	filtered := make([]models.MaterializedSession, 0, len(sessions))
	for _, session := range sessions {
		if query.ExcludeCancelled && session.State == models.SessionStateCancelled {
			continue
		}
		if from != nil && session.EffectiveDate.Before(NormalizeDate(*from)) {
			continue
		}
		if to != nil && session.EffectiveDate.After(NormalizeDate(*to)) {
			continue
		}
		filtered = append(filtered, session)
	}
	return filtered, nil
}

// GetSession resolves one occurrence by its identity (class, original date).
func (s *SessionService) GetSession(ctx context.Context, classID string, originalDate time.Time) (*models.MaterializedSession, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.materializeClass(ctx, class)
	if err != nil {
		return nil, err
	}
	wanted := NormalizeDate(originalDate)
	for i := range sessions {
		if sessions[i].OriginalDate.Equal(wanted) {
			return &sessions[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
}

// Weeks returns the week buckets for a class.
func (s *SessionService) Weeks(ctx context.Context, classID string) ([]models.WeekBucket, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return BucketWeeks(class.StartDate, class.EndDate), nil
}

// UpsertException creates or patches the override for one occurrence. Nil
// request fields leave stored values untouched, so restoring a cancelled
// session keeps its recorded reason. A stale ExpectedVersion is rejected.
func (s *SessionService) UpsertException(ctx context.Context, classID string, originalDate time.Time, req UpsertExceptionRequest) (*models.SessionException, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	originalDate = NormalizeDate(originalDate)

	if err := s.validateExceptionRequest(class, req); err != nil {
		return nil, err
	}

	existing, err := s.exceptions.FindByOriginalDate(ctx, classID, originalDate)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session exception")
	}

	if existing == nil {
		if !s.ruleProduces(class, originalDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "no session is scheduled on that date")
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != 0 {
			return nil, appErrors.ErrStaleVersion
		}
		exception := &models.SessionException{
			ClassID:      classID,
			OriginalDate: originalDate,
			NewDate:      req.NewDate,
			NewTime:      req.NewTime,
		}
		if req.Cancelled != nil {
			exception.Cancelled = *req.Cancelled
		}
		exception.CancellationReason = req.CancellationReason
		if err := s.exceptions.Insert(ctx, exception); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session exception")
		}
		s.afterExceptionWrite(ctx, class, exception)
		return exception, nil
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion != existing.Version {
		return nil, appErrors.ErrStaleVersion
	}

	merged := *existing
	if req.NewDate != nil {
		normalized := NormalizeDate(*req.NewDate)
		merged.NewDate = &normalized
	}
	if req.NewTime != nil {
		merged.NewTime = req.NewTime
	}
	if req.Cancelled != nil {
		merged.Cancelled = *req.Cancelled
	}
	if req.CancellationReason != nil {
		merged.CancellationReason = req.CancellationReason
	}
	if err := s.exceptions.Update(ctx, &merged, existing.Version); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrStaleVersion.Code {
			return nil, appErrors.ErrStaleVersion
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session exception")
	}
	s.afterExceptionWrite(ctx, class, &merged)
	return &merged, nil
}

func (s *SessionService) validateExceptionRequest(class *models.GroupClass, req UpsertExceptionRequest) error {
	if req.NewTime != nil {
		start, err := ParseTimeOfDay(*req.NewTime)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "new time must be HH:MM")
		}
		if start+class.DurationMinutes >= minutesPerDay {
			return appErrors.Clone(appErrors.ErrValidation, "session must end before midnight")
		}
	}
	return nil
}

func (s *SessionService) ruleProduces(class *models.GroupClass, date time.Time) bool {
	occurrences, err := ExpandRule(class.Rule())
	if err != nil {
		return false
	}
	for _, occurrence := range occurrences {
		if occurrence.Date.Equal(date) {
			return true
		}
	}
	return false
}

func (s *SessionService) afterExceptionWrite(ctx context.Context, class *models.GroupClass, exception *models.SessionException) {
	if s.useCache && s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("calendar:%s:*", class.ID)); err != nil {
			s.logger.Sugar().Warnw("calendar cache invalidation failed", "class_id", class.ID, "error", err)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, class.ID, BuildSessionChangeMessage(class, exception))
	}
}

// GetException returns the stored override row for one occurrence. Unlike
// GetSession this reads the raw exception, orphaned or not.
func (s *SessionService) GetException(ctx context.Context, classID string, originalDate time.Time) (*models.SessionException, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	exception, err := s.exceptions.FindByOriginalDate(ctx, classID, NormalizeDate(originalDate))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no override exists for that date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session exception")
	}
	return exception, nil
}

// ListOrphanedExceptions returns the stored overrides whose original date is
// no longer produced by the current rule. They stay out of every calendar
// view but remain queryable for review.
func (s *SessionService) ListOrphanedExceptions(ctx context.Context, classID string) ([]models.SessionException, error) {
	class, err := s.loadClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	occurrences, err := ExpandRule(class.Rule())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored schedule rule is invalid")
	}
	live := make(map[string]struct{}, len(occurrences))
	for _, occurrence := range occurrences {
		live[occurrence.Date.Format(DateFormat)] = struct{}{}
	}

	exceptions, err := s.exceptions.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session exceptions")
	}
	orphans := make([]models.SessionException, 0)
	for _, exception := range exceptions {
		if _, ok := live[exception.OriginalDate.Format(DateFormat)]; !ok {
			orphans = append(orphans, exception)
		}
	}
	return orphans, nil
}

func (s *SessionService) loadClass(ctx context.Context, classID string) (*models.GroupClass, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}
