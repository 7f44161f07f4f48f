package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler mounted by Setup.
type Handlers struct {
	Applications  *handler.ApplicationHandler
	StageProgress *handler.StageProgressHandler
	Analytics     *handler.AnalyticsHandler
	Activities    *handler.ActivityHandler
	Scholarships  *handler.ScholarshipHandler
	Exports       *handler.ExportHandler
	Metrics       *handler.MetricsHandler
}

// Setup builds the gin engine with global middleware and the versioned route table.
func Setup(cfg *config.Config, h Handlers, tokens middleware.TokenValidator, metrics *service.MetricsService, log *zap.Logger) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if cfg.Env != config.EnvProduction && cfg.Docs.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta(), middleware.JWT(tokens))

	applications := api.Group("/applications")
	{
		applications.POST("", middleware.RBAC(middleware.StudentsOnly...), h.Applications.Create)
		applications.GET("/:id", middleware.RBAC(middleware.Authenticated...), h.Applications.Get)
		applications.GET("/:id/activities", middleware.RBAC(middleware.Authenticated...), h.Applications.Activities)
		applications.GET("/:id/stages", middleware.RBAC(middleware.Authenticated...), h.StageProgress.List)
		applications.POST("/:id/submit", middleware.RBAC(middleware.StudentsOnly...), h.Applications.Submit)
		applications.POST("/:id/verify", middleware.RBAC(middleware.Verifiers...), h.Applications.Verify)
		applications.POST("/:id/verifier-reject", middleware.RBAC(middleware.Verifiers...), h.Applications.RejectByVerifier)
		applications.POST("/:id/request-revision", middleware.RBAC(middleware.Verifiers...), h.Applications.RequestRevision)
		applications.POST("/:id/validate", middleware.RBAC(middleware.Validators...), h.Applications.Validate)
		applications.POST("/:id/validator-reject", middleware.RBAC(middleware.Validators...), h.Applications.RejectByValidator)
	}

	api.PATCH("/stage-progress/:id", middleware.RBAC(middleware.Validators...), h.StageProgress.Update)

	analytics := api.Group("/analytics", middleware.RBAC(middleware.Reviewers...))
	{
		analytics.GET("/summary", h.Analytics.Summary)
		analytics.GET("/monthly-trend", h.Analytics.MonthlyTrend)
		analytics.GET("/yearly-trend", h.Analytics.YearlyTrend)
		analytics.GET("/status", h.Analytics.Status)
		analytics.GET("/distribution", h.Analytics.Distribution)
		analytics.GET("/top-faculties", h.Analytics.TopFaculties)
		analytics.GET("/applications", h.Analytics.Applications)
		analytics.GET("/system", middleware.RBAC(middleware.SuperAdminOnly...), h.Analytics.System)
	}

	api.GET("/activities/recent", middleware.RBAC(middleware.Reviewers...), h.Activities.Recent)
	api.GET("/scholarships", middleware.RBAC(middleware.Authenticated...), h.Scholarships.List)
	api.PATCH("/scholarships/:id/status", middleware.RBAC(middleware.SuperAdminOnly...), h.Scholarships.UpdateStatus)
	api.GET("/exports/applications", middleware.RBAC(middleware.Reviewers...), h.Exports.Applications)

	return r
}
