package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

type groupClassRepository interface {
	List(ctx context.Context, filter models.GroupClassFilter) ([]models.GroupClass, int, error)
	FindByID(ctx context.Context, id string) (*models.GroupClass, error)
	Create(ctx context.Context, class *models.GroupClass) error
	Update(ctx context.Context, class *models.GroupClass) error
	UpdateSchedule(ctx context.Context, class *models.GroupClass, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditStore interface {
	auditWriter
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type classNotifier interface {
	Notify(ctx context.Context, classID string, message models.NotificationMessage) models.NotificationResult
}

// CreateClassRequest captures the creation payload.
type CreateClassRequest struct {
	Title           string   `json:"title" validate:"required"`
	Subject         string   `json:"subject" validate:"required"`
	ScheduleDays    []string `json:"schedule_days" validate:"dive,oneof=MON TUE WED THU FRI SAT SUN"`
	ScheduleTime    *string  `json:"schedule_time"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,gt=0"`
	StartDate       string   `json:"start_date" validate:"required"`
	EndDate         string   `json:"end_date" validate:"required"`
	Location        string   `json:"location" validate:"required"`
	LocationLink    *string  `json:"location_link"`
	MaxStudents     int      `json:"max_students" validate:"required,gt=0"`
}

// UpdateClassRequest modifies the non-schedule fields of a class.
type UpdateClassRequest struct {
	Title        string  `json:"title" validate:"required"`
	Subject      string  `json:"subject" validate:"required"`
	Location     string  `json:"location" validate:"required"`
	LocationLink *string `json:"location_link"`
	MaxStudents  int     `json:"max_students" validate:"required,gt=0"`
	Active       bool    `json:"active"`
}

// UpdateScheduleRequest edits the schedule-bearing fields. ExpectedVersion
// carries the version the editor loaded; a mismatch rejects the write instead
// of silently overwriting a concurrent edit.
type UpdateScheduleRequest struct {
	ScheduleDays    []string `json:"schedule_days" validate:"dive,oneof=MON TUE WED THU FRI SAT SUN"`
	ScheduleTime    *string  `json:"schedule_time"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,gt=0"`
	StartDate       string   `json:"start_date" validate:"required"`
	EndDate         string   `json:"end_date" validate:"required"`
	Location        string   `json:"location" validate:"required"`
	LocationLink    *string  `json:"location_link"`
	ExpectedVersion int      `json:"expected_version" validate:"required,gt=0"`
	NotifyParents   bool     `json:"notify_parents"`
}

// ScheduleUpdateResult reports the saved class plus the change set and the
// notification fan-out outcome.
type ScheduleUpdateResult struct {
	Class        *models.GroupClass        `json:"class"`
	Delta        models.ScheduleDelta      `json:"delta"`
	Notification models.NotificationResult `json:"notification"`
}

// ClassService coordinates group class operations.
type ClassService struct {
	repo      groupClassRepository
	audit     auditStore
	cache     calendarCache
	notifier  classNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo groupClassRepository, audit auditStore, cache calendarCache, notifier classNotifier, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, audit: audit, cache: cache, notifier: notifier, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.GroupClassFilter) ([]models.GroupClass, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return classes, pagination, nil
}

// Get returns a class by ID.
func (s *ClassService) Get(ctx context.Context, id string) (*models.GroupClass, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a new group class after validating its recurrence rule.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.GroupClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	class := &models.GroupClass{
		Title:           req.Title,
		Subject:         req.Subject,
		ScheduleDays:    pq.StringArray(req.ScheduleDays),
		ScheduleTime:    req.ScheduleTime,
		DurationMinutes: req.DurationMinutes,
		StartDate:       startDate,
		EndDate:         endDate,
		Location:        req.Location,
		LocationLink:    req.LocationLink,
		MaxStudents:     req.MaxStudents,
		Active:          true,
	}
	if err := ValidateRule(class.Rule()); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return class, nil
}

// Update modifies the non-schedule fields of a class.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.GroupClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	class.Title = req.Title
	class.Subject = req.Subject
	class.Location = req.Location
	class.LocationLink = req.LocationLink
	class.MaxStudents = req.MaxStudents
	class.Active = req.Active

	if err := s.repo.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return class, nil
}

// UpdateSchedule edits the schedule rule of a class. The write is guarded by
// the version the editor loaded, the change set is audited, calendar caches
// are dropped, and parents are notified when the editor opted in.
func (s *ClassService) UpdateSchedule(ctx context.Context, id string, req UpdateScheduleRequest, actor *models.JWTClaims) (*ScheduleUpdateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if class.Version != req.ExpectedVersion {
		return nil, appErrors.ErrStaleVersion
	}
	before := *class

	startDate, endDate, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	class.ScheduleDays = pq.StringArray(req.ScheduleDays)
	class.ScheduleTime = req.ScheduleTime
	class.DurationMinutes = req.DurationMinutes
	class.StartDate = startDate
	class.EndDate = endDate
	class.Location = req.Location
	class.LocationLink = req.LocationLink

	if err := ValidateRule(class.Rule()); err != nil {
		return nil, err
	}

	delta := DiffSchedule(&before, class)
	if !delta.Changed() {
		return &ScheduleUpdateResult{Class: class, Delta: delta}, nil
	}

	if err := s.repo.UpdateSchedule(ctx, class, req.ExpectedVersion); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrStaleVersion.Code {
			return nil, appErrors.ErrStaleVersion
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}

	s.recordScheduleAudit(ctx, &before, class, delta, actor)
	s.invalidateCalendar(ctx, class.ID)

	result := &ScheduleUpdateResult{Class: class, Delta: delta}
	if req.NotifyParents && s.notifier != nil {
		result.Notification = s.notifier.Notify(ctx, class.ID, BuildScheduleChangeMessage(class, delta))
	}
	return result, nil
}

// AuditTrail returns the recorded audit entries for a class, newest first.
func (s *ClassService) AuditTrail(ctx context.Context, id string, limit int) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audit.ListByResource(ctx, "group_class", id, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	return logs, nil
}

// Delete removes a group class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.invalidateCalendar(ctx, id)
	return nil
}

func (s *ClassService) recordScheduleAudit(ctx context.Context, before, after *models.GroupClass, delta models.ScheduleDelta, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(before)
	newValues, _ := json.Marshal(map[string]interface{}{"class": after, "changes": delta.Changes})
	log := &models.AuditLog{
		Action:     models.AuditActionScheduleEdit,
		Resource:   "group_class",
		ResourceID: &after.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Sugar().Warnw("failed to record schedule audit", "class_id", after.ID, "error", err)
	}
}

func (s *ClassService) invalidateCalendar(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("calendar:%s:*", classID)); err != nil {
		s.logger.Sugar().Warnw("calendar cache invalidation failed", "class_id", classID, "error", err)
	}
}

func parseDateRange(start, end string) (time.Time, time.Time, error) {
	startDate, err := time.Parse(DateFormat, start)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	endDate, err := time.Parse(DateFormat, end)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
	}
	return startDate, endDate, nil
}
