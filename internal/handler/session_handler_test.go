package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/internal/service"
)

type classReaderStub struct {
	class *models.GroupClass
}

func (s *classReaderStub) FindByID(_ context.Context, id string) (*models.GroupClass, error) {
	if s.class == nil || s.class.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.class, nil
}

type exceptionRepoStub struct{}

func (s *exceptionRepoStub) ListByClass(context.Context, string) ([]models.SessionException, error) {
	return nil, nil
}

func (s *exceptionRepoStub) FindByOriginalDate(context.Context, string, time.Time) (*models.SessionException, error) {
	return nil, sql.ErrNoRows
}

func (s *exceptionRepoStub) Insert(context.Context, *models.SessionException) error { return nil }

func (s *exceptionRepoStub) Update(context.Context, *models.SessionException, int) error { return nil }

func tueThuClass() *models.GroupClass {
	startTime := "14:00"
	return &models.GroupClass{
		ID:              "class-1",
		Title:           "Algebra Foundations",
		Subject:         "Math",
		ScheduleDays:    pq.StringArray{"TUE", "THU"},
		ScheduleTime:    &startTime,
		DurationMinutes: 60,
		StartDate:       time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		Location:        "Room 4",
		MaxStudents:     12,
		Active:          true,
		Version:         1,
	}
}

func newTestSessionHandler(class *models.GroupClass) *SessionHandler {
	svc := service.NewSessionService(&classReaderStub{class: class}, &exceptionRepoStub{}, nil, nil, nil, time.Minute, false, nil)
	return NewSessionHandler(svc)
}

func TestSessionHandlerCalendarReturnsSessions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSessionHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/sessions", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Calendar(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.MaterializedSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 8)
	require.Equal(t, models.SessionStateGenerated, envelope.Data[0].State)
	require.Equal(t, "14:00", envelope.Data[0].EffectiveStartTime)
}

func TestSessionHandlerCalendarWeekFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSessionHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/sessions?week=2", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Calendar(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.MaterializedSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
}

func TestSessionHandlerCalendarRejectsBadWeek(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSessionHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/sessions?week=two", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Calendar(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerRejectsInvalidDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSessionHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/sessions/June-4", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}, {Key: "date", Value: "June-4"}}

	handler.Get(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionHandlerUnknownClassIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestSessionHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/missing/sessions", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Calendar(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}
