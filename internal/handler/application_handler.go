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

type applicationService interface {
	Create(ctx context.Context, actor models.Actor, meta models.RequestMeta, req dto.CreateApplicationRequest) (*models.Application, error)
	Get(ctx context.Context, id string, actor models.Actor) (*models.Application, error)
	History(ctx context.Context, id string, actor models.Actor) ([]models.ActivityLogView, error)
	Submit(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error)
	Verify(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error)
	RejectByVerifier(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error)
	RequestRevision(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RequestRevisionRequest) (*dto.TransitionResult, error)
	Validate(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error)
	RejectByValidator(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error)
}

// ApplicationHandler exposes the scholarship application review workflow.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

// Create godoc
// @Summary Create a draft application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	app, err := h.service.Create(c.Request.Context(), actor, requestMeta(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Get godoc
// @Summary Get an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Activities godoc
// @Summary List the activity trail of an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/activities [get]
func (h *ApplicationHandler) Activities(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	logs, err := h.service.History(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if logs == nil {
		logs = []models.ActivityLogView{}
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Submit godoc
// @Summary Submit an application for verification
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit)
}

// Verify godoc
// @Summary Verify an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/verify [post]
func (h *ApplicationHandler) Verify(c *gin.Context) {
	h.transition(c, h.service.Verify)
}

// Validate godoc
// @Summary Validate a verified application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/validate [post]
func (h *ApplicationHandler) Validate(c *gin.Context) {
	h.transition(c, h.service.Validate)
}

// RejectByVerifier godoc
// @Summary Reject an application during verification
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/verifier-reject [post]
func (h *ApplicationHandler) RejectByVerifier(c *gin.Context) {
	h.reject(c, h.service.RejectByVerifier)
}

// RejectByValidator godoc
// @Summary Reject a verified application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/validator-reject [post]
func (h *ApplicationHandler) RejectByValidator(c *gin.Context) {
	h.reject(c, h.service.RejectByValidator)
}

// RequestRevision godoc
// @Summary Send an application back to the student for revision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RequestRevisionRequest true "Revision request"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications/{id}/request-revision [post]
func (h *ApplicationHandler) RequestRevision(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RequestRevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.service.RequestRevision(c.Request.Context(), c.Param("id"), actor, requestMeta(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

type transitionFunc func(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error)

type rejectFunc func(ctx context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error)

func (h *ApplicationHandler) transition(c *gin.Context, fn transitionFunc) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), c.Param("id"), actor, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *ApplicationHandler) reject(c *gin.Context, fn rejectFunc) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "notes are required"))
		return
	}
	result, err := fn(c.Request.Context(), c.Param("id"), actor, requestMeta(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
