package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ExistsForStudent(ctx context.Context, classID, studentID string) (bool, error)
	CountEnrolled(ctx context.Context, classID string) (int, error)
}

// enrollmentTransitions lists the allowed lifecycle moves. Every new
// enrollment starts at PENDING_DIAGNOSTIC; ENROLLED and REJECTED are
// terminal.
var enrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusPendingDiagnostic:   {models.EnrollmentStatusDiagnosticSubmitted},
	models.EnrollmentStatusDiagnosticSubmitted: {models.EnrollmentStatusEnrolled, models.EnrollmentStatusRejected},
}

// CreateEnrollmentRequest registers a student into a class.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// UpdateEnrollmentStatusRequest moves an enrollment through its lifecycle.
type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING_DIAGNOSTIC DIAGNOSTIC_SUBMITTED ENROLLED REJECTED"`
}

// EnrollmentService coordinates the enrollment lifecycle.
type EnrollmentService struct {
	repo      enrollmentRepository
	classes   sessionClassReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, classes sessionClassReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// List returns enrollment details with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create registers a student at PENDING_DIAGNOSTIC.
func (s *EnrollmentService) Create(ctx context.Context, classID string, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	exists, err := s.repo.ExistsForStudent(ctx, classID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an enrollment in this class")
	}

	enrollment := &models.Enrollment{
		ClassID:   classID,
		StudentID: req.StudentID,
		Status:    models.EnrollmentStatusPendingDiagnostic,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// UpdateStatus moves an enrollment through its lifecycle. Moving into
// ENROLLED is refused when the class is already at capacity.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	target := models.EnrollmentStatus(req.Status)

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if !transitionAllowed(enrollment.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move enrollment from %s to %s", enrollment.Status, target))
	}

	if target == models.EnrollmentStatusEnrolled {
		class, err := s.classes.FindByID(ctx, enrollment.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
		count, err := s.repo.CountEnrolled(ctx, enrollment.ClassID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrolled students")
		}
		if count >= class.MaxStudents {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class is full")
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = target
	return enrollment, nil
}

func transitionAllowed(from, to models.EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
