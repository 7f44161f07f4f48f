package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/noah-isme/scholarship-api/api/swagger"
	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/internal/router"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/cache"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/database"
	"github.com/noah-isme/scholarship-api/pkg/logger"
)

// @title Scholarship API
// @version 1.0.0
// @description Scholarship application review, stage tracking and analytics
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running with cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr, cfg.Cache.ScanBatchSize)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, logr, service.CacheOptions{
		DefaultTTL:       cfg.Analytics.CacheTTL,
		OperationTimeout: cfg.Cache.OperationTimeout,
		Enabled:          cfg.Cache.Enabled && cacheRepo.Available(),
	})

	applicationRepo := repository.NewApplicationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	stageRepo := repository.NewStageProgressRepository(db)
	scholarshipRepo := repository.NewScholarshipRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	applicationSvc := service.NewApplicationService(applicationRepo, activityRepo, cacheSvc, metrics, logr)
	stageSvc := service.NewStageProgressService(stageRepo, applicationRepo, cacheSvc, logr)
	activitySvc := service.NewActivityService(activityRepo, cacheSvc, cfg.Cache.ActivityTTL, logr)
	scholarshipSvc := service.NewScholarshipService(scholarshipRepo, cacheSvc, cfg.Cache.ScholarshipTTL, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metrics, logr, service.AnalyticsOptions{
		CacheTTL:         cfg.Analytics.CacheTTL,
		YearlyWindow:     cfg.Analytics.YearlyWindow,
		ListingPageLimit: cfg.Analytics.ListingPageLimit,
	})
	exportSvc := service.NewExportService(analyticsRepo, activityRepo, cacheSvc, service.ExportConfig{MaxRows: cfg.Exports.MaxRows}, logr)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	handlers := router.Handlers{
		Applications:  handler.NewApplicationHandler(applicationSvc),
		StageProgress: handler.NewStageProgressHandler(stageSvc),
		Analytics:     handler.NewAnalyticsHandler(analyticsSvc),
		Activities:    handler.NewActivityHandler(activitySvc),
		Scholarships:  handler.NewScholarshipHandler(scholarshipSvc),
		Exports:       handler.NewExportHandler(exportSvc, analyticsSvc),
		Metrics:       handler.NewMetricsHandler(metrics, map[string]handler.Pinger{"database": db, "cache": cacheRepo}),
	}
	engine := router.Setup(cfg, handlers, tokens, metrics, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.Bool("cache_enabled", cacheSvc.Enabled()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logr.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
