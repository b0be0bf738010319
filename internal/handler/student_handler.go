package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

// StudentHandler exposes the administrative device reset.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// ResetDevice godoc
// @Summary Reset a student's bound device
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/reset-device [post]
func (h *StudentHandler) ResetDevice(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	if err := h.students.ResetDevice(c.Request.Context(), *caller, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
