package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

type exportService interface {
	ExportApplications(ctx context.Context, actor models.Actor, meta models.RequestMeta, scope models.AnalyticsScope, filter models.ApplicationListFilter, format string) (*service.ExportResult, error)
}

type scopeResolver interface {
	Scope(actor models.Actor, query dto.AnalyticsQuery) (models.AnalyticsScope, error)
}

// ExportHandler streams application exports.
type ExportHandler struct {
	exports exportService
	scopes  scopeResolver
}

// NewExportHandler builds a new handler.
func NewExportHandler(exports exportService, scopes scopeResolver) *ExportHandler {
	return &ExportHandler{exports: exports, scopes: scopes}
}

// Applications godoc
// @Summary Download the application listing
// @Tags Exports
// @Produce application/octet-stream
// @Param format query string false "csv, xlsx or pdf (default xlsx)"
// @Param year query int false "Year filter"
// @Param faculty_id query string false "Faculty filter"
// @Param department_id query string false "Department filter"
// @Param gender query string false "L or P"
// @Param search query string false "Name, NIM or scholarship"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/applications [get]
func (h *ExportHandler) Applications(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query, err := parseAnalyticsQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	scope, err := h.scopes.Scope(actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.ApplicationListFilter{
		DepartmentID: query.DepartmentID,
		Gender:       query.Gender,
		Search:       query.Search,
	}
	result, err := h.exports.ExportApplications(c.Request.Context(), actor, requestMeta(c), scope, filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, result.Filename, result.ContentType, result.Payload)
}
