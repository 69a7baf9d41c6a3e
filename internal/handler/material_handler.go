package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/atlas-tutoring/portal-api/internal/models"
	"github.com/atlas-tutoring/portal-api/internal/service"
	appErrors "github.com/atlas-tutoring/portal-api/pkg/errors"
	"github.com/atlas-tutoring/portal-api/pkg/response"
)

// MaterialHandler exposes class material endpoints.
type MaterialHandler struct {
	service *service.MaterialService
}

// NewMaterialHandler constructs a material handler.
func NewMaterialHandler(svc *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{service: svc}
}

// Upload godoc
// @Summary Upload a class material
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Class ID"
// @Param file formData file true "Material file"
// @Param title formData string true "Display title"
// @Param week_number formData int false "Week bucket number"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/materials [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer src.Close()

	req := service.UploadMaterialRequest{
		Title:     c.PostForm("title"),
		MimeType:  fileHeader.Header.Get("Content-Type"),
		SizeBytes: fileHeader.Size,
		Filename:  fileHeader.Filename,
		Body:      src,
	}
	if raw := c.PostForm("week_number"); raw != "" {
		week, convErr := strconv.Atoi(raw)
		if convErr != nil {
			response.Error(c, appErrors.Wrap(convErr, appErrors.ErrValidation.Code, http.StatusBadRequest, "week_number must be an integer"))
			return
		}
		req.WeekNumber = &week
	}
	if claims := claimsFromContext(c); claims != nil {
		req.UploadedBy = claims.UserID
	}

	material, err := h.service.Upload(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// List godoc
// @Summary List class materials
// @Tags Materials
// @Produce json
// @Param id path string true "Class ID"
// @Param week query int false "Filter by week bucket"
// @Param current query bool false "Only the current material per week"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/materials [get]
func (h *MaterialHandler) List(c *gin.Context) {
	filter := models.ClassFileFilter{ClassID: c.Param("id")}
	if raw := c.Query("week"); raw != "" {
		week, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "week must be an integer"))
			return
		}
		filter.WeekNumber = &week
	}
	if raw := c.Query("current"); raw != "" {
		if current, err := strconv.ParseBool(raw); err == nil {
			filter.OnlyCurrent = current
		}
	}

	materials, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, nil)
}

// GrantDownload godoc
// @Summary Issue a short-lived signed download link
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/download [get]
func (h *MaterialHandler) GrantDownload(c *gin.Context) {
	grant, err := h.service.GrantDownload(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grant, nil)
}

// MarkCurrent godoc
// @Summary Mark a material as current for its week
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id}/current [patch]
func (h *MaterialHandler) MarkCurrent(c *gin.Context) {
	material, err := h.service.SetCurrent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// Download godoc
// @Summary Stream a material through a signed token
// @Tags Materials
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /downloads [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, reader, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Title))
	c.DataFromReader(http.StatusOK, file.SizeBytes, file.MimeType, reader, nil)
}

// Delete godoc
// @Summary Delete a class material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 204
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
