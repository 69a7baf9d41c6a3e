package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
)

func TestEnrollmentRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "class_id", "student_id", "status", "created_at", "updated_at",
		"student_name", "parent_name", "parent_email",
	}).AddRow("enr-1", "class-1", "stu-1", "ENROLLED", time.Now(), time.Now(), "Ada Park", "Jo Park", "jo@example.com")
	mock.ExpectQuery("SELECT e.id, e.class_id").
		WithArgs("class-1", string(models.EnrollmentStatusEnrolled)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments")).
		WithArgs("class-1", string(models.EnrollmentStatusEnrolled)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		ClassID: "class-1",
		Status:  models.EnrollmentStatusEnrolled,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "Ada Park", enrollments[0].StudentName)
	assert.Equal(t, "jo@example.com", enrollments[0].ParentEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment := &models.Enrollment{
		ClassID:   "class-1",
		StudentID: "stu-1",
		Status:    models.EnrollmentStatusPendingDiagnostic,
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCountEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments")).
		WithArgs("class-1", string(models.EnrollmentStatusEnrolled)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	count, err := repo.CountEnrolled(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, 9, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListParentContacts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"enrollment_id", "student_name", "parent_name", "parent_email"}).
		AddRow("enr-1", "Ada Park", "Jo Park", "jo@example.com").
		AddRow("enr-2", "Ben Wu", "Kim Wu", "kim@example.com")
	mock.ExpectQuery("SELECT e.id AS enrollment_id").
		WithArgs("class-1", string(models.EnrollmentStatusEnrolled)).
		WillReturnRows(rows)

	contacts, err := repo.ListParentContacts(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "kim@example.com", contacts[1].ParentEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}
