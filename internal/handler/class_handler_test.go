package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/atlas-tutoring/portal-api/internal/middleware"
	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/internal/service"
)

type classRepoStub struct {
	class *models.GroupClass
}

func (s *classRepoStub) List(context.Context, models.GroupClassFilter) ([]models.GroupClass, int, error) {
	if s.class == nil {
		return nil, 0, nil
	}
	return []models.GroupClass{*s.class}, 1, nil
}

func (s *classRepoStub) FindByID(_ context.Context, id string) (*models.GroupClass, error) {
	if s.class == nil || s.class.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.class
	return &clone, nil
}

func (s *classRepoStub) Create(_ context.Context, class *models.GroupClass) error {
	class.ID = "class-new"
	class.Version = 1
	return nil
}

func (s *classRepoStub) Update(context.Context, *models.GroupClass) error { return nil }

func (s *classRepoStub) UpdateSchedule(_ context.Context, class *models.GroupClass, expectedVersion int) error {
	class.Version = expectedVersion + 1
	return nil
}

func (s *classRepoStub) Delete(context.Context, string) error { return nil }

func newTestClassHandler(class *models.GroupClass) *ClassHandler {
	svc := service.NewClassService(&classRepoStub{class: class}, nil, nil, nil, nil, nil)
	return NewClassHandler(svc)
}

func schedulePayload(expectedVersion int) map[string]interface{} {
	return map[string]interface{}{
		"schedule_days":    []string{"MON", "WED"},
		"schedule_time":    "16:00",
		"duration_minutes": 90,
		"start_date":       "2024-06-03",
		"end_date":         "2024-06-30",
		"location":         "Room 7",
		"expected_version": expectedVersion,
	}
}

func TestClassHandlerCreateRejectsMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestClassHandler(nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/classes", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestClassHandler(tueThuClass())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/missing", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassHandlerUpdateScheduleHappyPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestClassHandler(tueThuClass())
	body, _ := json.Marshal(schedulePayload(1))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/classes/class-1/schedule", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.UpdateSchedule(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.ScheduleUpdateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.Data.Class.Version)
	require.NotEmpty(t, envelope.Data.Delta.Changes)
}

func TestClassHandlerUpdateScheduleStaleVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestClassHandler(tueThuClass())
	body, _ := json.Marshal(schedulePayload(7))
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPut, "/classes/class-1/schedule", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.UpdateSchedule(c)

	require.Equal(t, http.StatusConflict, w.Code)
}
