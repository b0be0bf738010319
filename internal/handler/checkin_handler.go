package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/service"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/response"
)

// CheckInHandler exposes the decision entry point.
type CheckInHandler struct {
	checkins *service.CheckInService
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkins *service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkins: checkins}
}

// Submit godoc
// @Summary Submit an attendance check-in
// @Tags Check-ins
// @Accept json
// @Produce json
// @Param payload body service.CheckInRequest true "Submission"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /checkins [post]
func (h *CheckInHandler) Submit(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}

	var req service.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "malformed submission body"))
		return
	}

	decision, err := h.checkins.CheckIn(c.Request.Context(), *caller, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	// Rejections are outcomes, not errors: always 200 with a definitive status.
	response.JSON(c, http.StatusOK, decision, nil)
}
