package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type activityService interface {
	Recent(ctx context.Context) ([]models.ActivityLogView, bool, error)
}

// ActivityHandler serves the dashboard activity feed.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler builds a new handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// Recent godoc
// @Summary Latest activity entries
// @Tags Activities
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /activities/recent [get]
func (h *ActivityHandler) Recent(c *gin.Context) {
	items, hit, err := h.service.Recent(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, http.StatusOK, items, nil, hit)
}
