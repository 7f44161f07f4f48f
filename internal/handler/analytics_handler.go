package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
	"github.com/noah-isme/scholarship-api/pkg/response"
)

const (
	minQueryYear = 2000
	maxQueryYear = 2100
)

type analyticsService interface {
	Scope(actor models.Actor, query dto.AnalyticsQuery) (models.AnalyticsScope, error)
	Summary(ctx context.Context, scope models.AnalyticsScope) (*models.AnalyticsSummary, bool, error)
	MonthlyTrend(ctx context.Context, scope models.AnalyticsScope) ([]models.TrendPoint, bool, error)
	YearlyTrend(ctx context.Context, scope models.AnalyticsScope) ([]models.TrendPoint, bool, error)
	StatusDistribution(ctx context.Context, scope models.AnalyticsScope) ([]models.StatusCount, bool, error)
	Distribution(ctx context.Context, scope models.AnalyticsScope) (*models.ApplicationDistribution, bool, error)
	TopFaculties(ctx context.Context, scope models.AnalyticsScope) ([]models.DistributionRow, bool, error)
	ListApplications(ctx context.Context, scope models.AnalyticsScope, query dto.AnalyticsQuery) (*models.ApplicationListPage, bool, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Summary godoc
// @Summary Dashboard headline counters
// @Tags Analytics
// @Produce json
// @Param year query int false "Year filter"
// @Param faculty_id query string false "Faculty filter (ignored for faculty-scoped roles)"
// @Success 200 {object} response.Envelope
// @Router /analytics/summary [get]
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	serveAggregate(c, h, h.analytics.Summary)
}

// MonthlyTrend godoc
// @Summary Monthly application trend
// @Tags Analytics
// @Produce json
// @Param year query int false "Year (defaults to current)"
// @Success 200 {object} response.Envelope
// @Router /analytics/monthly-trend [get]
func (h *AnalyticsHandler) MonthlyTrend(c *gin.Context) {
	serveAggregate(c, h, h.analytics.MonthlyTrend)
}

// YearlyTrend godoc
// @Summary Five-year application trend
// @Tags Analytics
// @Produce json
// @Param year query int false "Last year of the window (defaults to current)"
// @Success 200 {object} response.Envelope
// @Router /analytics/yearly-trend [get]
func (h *AnalyticsHandler) YearlyTrend(c *gin.Context) {
	serveAggregate(c, h, h.analytics.YearlyTrend)
}

// Status godoc
// @Summary Application count per review status
// @Tags Analytics
// @Produce json
// @Param year query int false "Year filter"
// @Success 200 {object} response.Envelope
// @Router /analytics/status [get]
func (h *AnalyticsHandler) Status(c *gin.Context) {
	serveAggregate(c, h, h.analytics.StatusDistribution)
}

// Distribution godoc
// @Summary Applications by faculty, department and gender
// @Tags Analytics
// @Produce json
// @Param year query int false "Year filter"
// @Success 200 {object} response.Envelope
// @Router /analytics/distribution [get]
func (h *AnalyticsHandler) Distribution(c *gin.Context) {
	serveAggregate(c, h, h.analytics.Distribution)
}

// TopFaculties godoc
// @Summary Faculties with the highest acceptance rate
// @Tags Analytics
// @Produce json
// @Param year query int false "Year filter"
// @Success 200 {object} response.Envelope
// @Router /analytics/top-faculties [get]
func (h *AnalyticsHandler) TopFaculties(c *gin.Context) {
	serveAggregate(c, h, h.analytics.TopFaculties)
}

// Applications godoc
// @Summary Paginated flattened application listing
// @Tags Analytics
// @Produce json
// @Param year query int false "Year filter"
// @Param faculty_id query string false "Faculty filter"
// @Param department_id query string false "Department filter"
// @Param gender query string false "L or P"
// @Param search query string false "Name, NIM or scholarship"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /analytics/applications [get]
func (h *AnalyticsHandler) Applications(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query, err := parseAnalyticsQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	scope, err := h.analytics.Scope(actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, hit, err := h.analytics.ListApplications(c.Request.Context(), scope, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := page.Pagination
	respondCached(c, http.StatusOK, page.Items, &pagination, hit)
}

// System godoc
// @Summary Instrumentation snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	respondCached(c, http.StatusOK, h.analytics.SystemMetrics(), nil, false)
}

func serveAggregate[T any](c *gin.Context, h *AnalyticsHandler, fn func(context.Context, models.AnalyticsScope) (T, bool, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query, err := parseAnalyticsQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	scope, err := h.analytics.Scope(actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, hit, err := fn(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, http.StatusOK, data, nil, hit)
}

func parseAnalyticsQuery(c *gin.Context) (dto.AnalyticsQuery, error) {
	year, err := queryInt(c, "year")
	if err != nil {
		return dto.AnalyticsQuery{}, err
	}
	if year != 0 && (year < minQueryYear || year > maxQueryYear) {
		return dto.AnalyticsQuery{}, appErrors.Clone(appErrors.ErrValidation, "year is out of range")
	}
	page, err := queryInt(c, "page")
	if err != nil {
		return dto.AnalyticsQuery{}, err
	}
	pageSize, err := queryInt(c, "page_size")
	if err != nil {
		return dto.AnalyticsQuery{}, err
	}
	return dto.AnalyticsQuery{
		Year:         year,
		FacultyID:    strings.TrimSpace(c.Query("faculty_id")),
		DepartmentID: strings.TrimSpace(c.Query("department_id")),
		Gender:       strings.ToUpper(strings.TrimSpace(c.Query("gender"))),
		Search:       strings.TrimSpace(c.Query("search")),
		Page:         page,
		PageSize:     pageSize,
	}, nil
}
