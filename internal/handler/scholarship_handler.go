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

type scholarshipService interface {
	List(ctx context.Context) ([]models.Scholarship, bool, error)
	UpdateStatus(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.UpdateScholarshipStatusRequest) (*models.Scholarship, error)
}

// ScholarshipHandler exposes scholarship programs.
type ScholarshipHandler struct {
	service scholarshipService
}

// NewScholarshipHandler builds a new handler.
func NewScholarshipHandler(service scholarshipService) *ScholarshipHandler {
	return &ScholarshipHandler{service: service}
}

// List godoc
// @Summary List scholarships
// @Tags Scholarships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scholarships [get]
func (h *ScholarshipHandler) List(c *gin.Context) {
	items, hit, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, http.StatusOK, items, nil, hit)
}

// UpdateStatus godoc
// @Summary Open or close a scholarship
// @Tags Scholarships
// @Accept json
// @Produce json
// @Param id path string true "Scholarship ID"
// @Param payload body dto.UpdateScholarshipStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /scholarships/{id}/status [patch]
func (h *ScholarshipHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateScholarshipStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	item, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), actor, requestMeta(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
