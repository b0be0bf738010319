package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

// AttendanceHandler exposes the read-only dashboard query surface.
type AttendanceHandler struct {
	dashboard *service.DashboardService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(dashboard *service.DashboardService) *AttendanceHandler {
	return &AttendanceHandler{dashboard: dashboard}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param classroomId query string false "Filter by classroom"
// @Param studentId query string false "Filter by student"
// @Param status query string false "PRESENT or REJECTED"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, err := parseAttendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, pagination, err := h.dashboard.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Export godoc
// @Summary Export attendance records
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	filter, err := parseAttendanceFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.dashboard.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := "attendance." + format
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}

func parseAttendanceFilter(c *gin.Context) (models.AttendanceFilter, error) {
	var filter models.AttendanceFilter
	filter.ClassroomID = c.Query("classroomId")
	filter.StudentID = c.Query("studentId")

	if raw := c.Query("status"); raw != "" {
		status := models.AttendanceStatus(raw)
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "status must be PRESENT or REJECTED")
		}
		filter.Status = &status
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "from must be RFC3339")
		}
		filter.DateFrom = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "to must be RFC3339")
		}
		filter.DateTo = &ts
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	filter.SortOrder = c.Query("order")
	return filter, nil
}
