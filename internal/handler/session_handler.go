package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlas-tutoring/portal-api/internal/service"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
	"github.com/atlas-tutoring/portal-api/pkg/response"
)

// SessionHandler exposes the materialized calendar endpoints.
type SessionHandler struct {
	service *service.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

func parseSessionDate(raw string) (time.Time, error) {
	date, err := time.Parse(service.DateFormat, raw)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	return date, nil
}

// Calendar godoc
// @Summary List materialized sessions for a class
// @Tags Sessions
// @Produce json
// @Param id path string true "Class ID"
// @Param week query int false "Week number, 1-based"
// @Param from query string false "Lower bound, YYYY-MM-DD"
// @Param to query string false "Upper bound, YYYY-MM-DD"
// @Param exclude_cancelled query bool false "Hide cancelled sessions"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions [get]
func (h *SessionHandler) Calendar(c *gin.Context) {
	var query service.CalendarQuery
	if raw := c.Query("week"); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "week must be an integer"))
			return
		}
		query.WeekNumber = &week
	}
	if raw := c.Query("from"); raw != "" {
		from, err := parseSessionDate(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		query.From = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := parseSessionDate(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		query.To = &to
	}
	if raw := c.Query("exclude_cancelled"); raw != "" {
		exclude, err := strconv.ParseBool(raw)
		if err == nil {
			query.ExcludeCancelled = exclude
		}
	}

	sessions, err := h.service.Materialize(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Get godoc
// @Summary Get one materialized session by its original date
// @Tags Sessions
// @Produce json
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/{date} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// UpsertException godoc
// @Summary Reschedule, cancel, or restore one session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Param payload body service.UpsertExceptionRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Version conflict"
// @Router /classes/{id}/sessions/{date} [patch]
func (h *SessionHandler) UpsertException(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpsertExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exception, err := h.service.UpsertException(c.Request.Context(), c.Param("id"), date, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exception, nil)
}

// GetException godoc
// @Summary Get the stored override for one session
// @Tags Sessions
// @Produce json
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/{date}/exception [get]
func (h *SessionHandler) GetException(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	exception, err := h.service.GetException(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exception, nil)
}

// Weeks godoc
// @Summary List week buckets for a class
// @Tags Sessions
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/weeks [get]
func (h *SessionHandler) Weeks(c *gin.Context) {
	weeks, err := h.service.Weeks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weeks, nil)
}

// OrphanedExceptions godoc
// @Summary List exceptions whose original date left the schedule rule
// @Tags Sessions
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/exceptions/orphaned [get]
func (h *SessionHandler) OrphanedExceptions(c *gin.Context) {
	orphans, err := h.service.ListOrphanedExceptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orphans, nil)
}
