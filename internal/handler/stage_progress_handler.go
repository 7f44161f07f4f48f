package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type stageProgressService interface {
	List(ctx context.Context, applicationID string, actor models.Actor) ([]models.StageProgressDetail, error)
	Update(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.UpdateStageProgressRequest) (*models.StageProgressDetail, error)
}

// StageProgressHandler exposes the post-validation stage checklist.
type StageProgressHandler struct {
	service stageProgressService
}

// NewStageProgressHandler builds a new handler.
func NewStageProgressHandler(service stageProgressService) *StageProgressHandler {
	return &StageProgressHandler{service: service}
}

// List godoc
// @Summary List the stage checklist of an application
// @Tags Stage Progress
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/stages [get]
func (h *StageProgressHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.service.List(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Update godoc
// @Summary Update one stage checklist row
// @Tags Stage Progress
// @Accept json
// @Produce json
// @Param id path string true "Stage progress ID"
// @Param payload body dto.UpdateStageProgressRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /stage-progress/{id} [patch]
func (h *StageProgressHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStageProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	row, err := h.service.Update(c.Request.Context(), c.Param("id"), actor, requestMeta(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}
