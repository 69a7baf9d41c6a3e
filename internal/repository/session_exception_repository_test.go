package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
)

func sessionExceptionRows(dates ...time.Time) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "class_id", "original_date", "new_date", "new_time",
		"is_cancelled", "cancellation_reason", "version", "created_at", "updated_at",
	})
	for i, date := range dates {
		rows.AddRow("exc-"+string(rune('a'+i)), "class-1", date, nil, nil, false, nil, 1, time.Now(), time.Now())
	}
	return rows
}

func TestSessionExceptionRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionExceptionRepository(db)

	first := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)
	second := time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, class_id, original_date").
		WithArgs("class-1").
		WillReturnRows(sessionExceptionRows(first, second))

	exceptions, err := repo.ListByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, exceptions, 2)
	assert.Equal(t, first, exceptions[0].OriginalDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExceptionRepositoryFindByOriginalDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionExceptionRepository(db)

	date := time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, class_id, original_date").
		WithArgs("class-1", date).
		WillReturnRows(sessionExceptionRows(date))

	exception, err := repo.FindByOriginalDate(context.Background(), "class-1", date)
	require.NoError(t, err)
	assert.Equal(t, date, exception.OriginalDate)
	assert.False(t, exception.Cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExceptionRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionExceptionRepository(db)

	mock.ExpectExec("INSERT INTO session_exceptions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	reason := "tutor travel"
	exception := &models.SessionException{
		ClassID:            "class-1",
		OriginalDate:       time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC),
		Cancelled:          true,
		CancellationReason: &reason,
	}
	require.NoError(t, repo.Insert(context.Background(), exception))
	assert.NotEmpty(t, exception.ID)
	assert.Equal(t, 1, exception.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExceptionRepositoryUpdateBumpsVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionExceptionRepository(db)

	mock.ExpectExec("UPDATE session_exceptions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	newTime := "16:00"
	exception := &models.SessionException{
		ClassID:      "class-1",
		OriginalDate: time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC),
		NewTime:      &newTime,
	}
	require.NoError(t, repo.Update(context.Background(), exception, 1))
	assert.Equal(t, 2, exception.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionExceptionRepositoryUpdateStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionExceptionRepository(db)

	mock.ExpectExec("UPDATE session_exceptions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	exception := &models.SessionException{
		ClassID:      "class-1",
		OriginalDate: time.Date(2024, time.June, 4, 0, 0, 0, 0, time.UTC),
	}
	err := repo.Update(context.Background(), exception, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStaleVersion.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
