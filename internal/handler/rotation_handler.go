package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

// RotationHandler exposes the administrative secret rotation endpoints.
type RotationHandler struct {
	rotations *service.RotationService
}

// NewRotationHandler constructs RotationHandler.
func NewRotationHandler(rotations *service.RotationService) *RotationHandler {
	return &RotationHandler{rotations: rotations}
}

// Rotate godoc
// @Summary Rotate a classroom secret
// @Tags Classrooms
// @Accept json
// @Produce json
// @Param id path string true "Classroom ID"
// @Param payload body service.RotateSecretRequest true "Rotation"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classrooms/{id}/rotate-secret [post]
func (h *RotationHandler) Rotate(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req service.RotateSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed rotation body"))
		return
	}

	rotation, err := h.rotations.Rotate(c.Request.Context(), *caller, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"classroom_id": rotation.ClassroomID,
		"rotated_at":   rotation.RotatedAt,
	}, nil)
}

// History godoc
// @Summary List secret rotations for a classroom
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classrooms/{id}/rotations [get]
func (h *RotationHandler) History(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	rotations, err := h.rotations.History(c.Request.Context(), *caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, rotations, nil)
}
