package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const recentActivityLimit = 10

type recentActivityReader interface {
	Recent(ctx context.Context, limit int) ([]models.ActivityLogView, error)
}

// ActivityService serves the dashboard activity feed.
type ActivityService struct {
	repo   recentActivityReader
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewActivityService constructs the feed service. ttl applies to the cached feed.
func NewActivityService(repo recentActivityReader, cache *CacheService, ttl time.Duration, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Recent returns the newest activity entries across the system.
func (s *ActivityService) Recent(ctx context.Context) ([]models.ActivityLogView, bool, error) {
	items, hit, err := GetOrCompute(ctx, s.cache, cachekey.RecentActivities, s.ttl, func(ctx context.Context) ([]models.ActivityLogView, error) {
		rows, err := s.repo.Recent(ctx, recentActivityLimit)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []models.ActivityLogView{}
		}
		return rows, nil
	})
	if err != nil {
		return nil, false, appErrors.Persistence(err, "failed to load recent activities")
	}
	return items, hit, nil
}

func newActivityLog(actor models.Actor, meta models.RequestMeta, action, entityType, entityID, description string, now time.Time) *models.ActivityLog {
	var userID *string
	if actor.ID != "" {
		id := actor.ID
		userID = &id
	}
	return &models.ActivityLog{
		UserID:      userID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: description,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
	}
}

// invalidateAfterCommit runs after a write has committed. Failures are logged and never surface to the caller.
func invalidateAfterCommit(ctx context.Context, cache *CacheService, logger *zap.Logger, op string, fn func(context.Context) (int, error)) {
	if !cache.Enabled() {
		return
	}
	removed, err := fn(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("cache invalidation failed", zap.String("operation", op), zap.Error(err))
		return
	}
	logger.Debug("cache invalidated", zap.String("operation", op), zap.Int("keys", removed))
}
