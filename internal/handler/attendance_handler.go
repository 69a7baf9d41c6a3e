package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlas-tutoring/portal-api/internal/service"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
	"github.com/atlas-tutoring/portal-api/pkg/response"
)

// AttendanceHandler exposes per-session attendance endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Get godoc
// @Summary Get the attendance sheet for one session
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/{date}/attendance [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := h.service.GetForSession(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Save godoc
// @Summary Replace the attendance sheet for one session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Param payload body service.SaveAttendanceRequest true "Attendance entries"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/sessions/{date}/attendance [put]
func (h *AttendanceHandler) Save(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.SaveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	sheet, err := h.service.SaveForSession(c.Request.Context(), c.Param("id"), date, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Export godoc
// @Summary Export one session's attendance sheet as PDF or CSV
// @Tags Attendance
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param date path string true "Original date, YYYY-MM-DD"
// @Param format query string false "pdf or csv" default(pdf)
// @Success 200 {file} binary
// @Router /classes/{id}/sessions/{date}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	date, err := parseSessionDate(c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	format := c.DefaultQuery("format", "pdf")
	payload, contentType, err := h.service.ExportSession(c.Request.Context(), c.Param("id"), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "pdf"
	if format == "csv" {
		ext = "csv"
	}
	filename := fmt.Sprintf("attendance-%s-%s.%s", c.Param("id"), c.Param("date"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// StudentSummary godoc
// @Summary Summarize one student's attendance across a class
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param enrollmentId path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/attendance/{enrollmentId} [get]
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	summary, err := h.service.StudentSummary(c.Request.Context(), c.Param("id"), c.Param("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
