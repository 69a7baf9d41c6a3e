package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	enrolled    int
	exists      bool
	created     *models.Enrollment
}

func (m *mockEnrollmentRepo) List(_ context.Context, _ models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	if enrollment, ok := m.enrollments[id]; ok {
		return &enrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(_ context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = "enr-new"
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(_ context.Context, id string, status models.EnrollmentStatus) error {
	enrollment := m.enrollments[id]
	enrollment.Status = status
	m.enrollments[id] = enrollment
	return nil
}

func (m *mockEnrollmentRepo) ExistsForStudent(_ context.Context, _, _ string) (bool, error) {
	return m.exists, nil
}

func (m *mockEnrollmentRepo) CountEnrolled(_ context.Context, _ string) (int, error) {
	return m.enrolled, nil
}

func newEnrollmentService(repo *mockEnrollmentRepo) *EnrollmentService {
	classes := &mockClassReader{classes: map[string]*models.GroupClass{"class-1": juneClass()}}
	return NewEnrollmentService(repo, classes, nil, nil)
}

func TestEnrollmentCreateStartsPendingDiagnostic(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	svc := newEnrollmentService(repo)

	enrollment, err := svc.Create(context.Background(), "class-1", CreateEnrollmentRequest{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPendingDiagnostic, enrollment.Status)
}

func TestEnrollmentCreateRejectsDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{exists: true}
	svc := newEnrollmentService(repo)

	_, err := svc.Create(context.Background(), "class-1", CreateEnrollmentRequest{StudentID: "stu-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentStatusTransitions(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", ClassID: "class-1", StudentID: "stu-1", Status: models.EnrollmentStatusPendingDiagnostic},
	}}
	svc := newEnrollmentService(repo)

	enrollment, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "DIAGNOSTIC_SUBMITTED"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDiagnosticSubmitted, enrollment.Status)

	enrollment, err = svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ENROLLED"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)

	// ENROLLED is terminal.
	_, err = svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "REJECTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentSkippingDiagnosticRejected(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", ClassID: "class-1", StudentID: "stu-1", Status: models.EnrollmentStatusPendingDiagnostic},
	}}
	svc := newEnrollmentService(repo)

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ENROLLED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentCapacityEnforced(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enr-1": {ID: "enr-1", ClassID: "class-1", StudentID: "stu-1", Status: models.EnrollmentStatusDiagnosticSubmitted},
		},
		enrolled: 12, // class capacity from juneClass
	}
	svc := newEnrollmentService(repo)

	_, err := svc.UpdateStatus(context.Background(), "enr-1", UpdateEnrollmentStatusRequest{Status: "ENROLLED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
