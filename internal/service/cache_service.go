package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const tracerName = "github.com/noah-isme/scholarship-api/internal/service"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int, error)
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
}

// CacheService orchestrates cache operations and related metrics.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	opTimeout  time.Duration
	logger     *zap.Logger
	enabled    bool
}

// CacheOptions tunes a CacheService.
type CacheOptions struct {
	DefaultTTL       time.Duration
	OperationTimeout time.Duration
	Enabled          bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, logger *zap.Logger, opts CacheOptions) *CacheService {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		repo:       repo,
		metrics:    metrics,
		defaultTTL: opts.DefaultTTL,
		opTimeout:  opts.OperationTimeout,
		logger:     logger,
		enabled:    opts.Enabled,
	}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

func (s *CacheService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Get attempts to retrieve a cached entry. It returns true when the cache was hit.
// A miss is not an error; store failures are returned for the caller to log.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		s.metrics.RecordCacheOperation(false, duration)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		return false, err
	}
	s.metrics.RecordCacheOperation(true, duration)
	return true, nil
}

// Set stores the value in cache. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	return err
}

// InvalidateByPattern removes every key matching a glob pattern, or the exact key when the
// pattern has no metacharacters. It returns the number of keys removed.
func (s *CacheService) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		removed int
		err     error
	)
	if strings.ContainsAny(pattern, "*?[") {
		removed, err = s.repo.DeleteByPattern(ctx, pattern)
	} else {
		removed, err = s.repo.Delete(ctx, pattern)
	}
	s.metrics.ObserveCacheInvalidation(removed)
	return removed, err
}

// InvalidateApplicationDomain drops every analytics family and the recent activity feed.
func (s *CacheService) InvalidateApplicationDomain(ctx context.Context) (int, error) {
	return s.invalidateAll(ctx, cachekey.ApplicationDomain())
}

// InvalidateScholarshipDomain drops the summary family and the cached scholarship list.
func (s *CacheService) InvalidateScholarshipDomain(ctx context.Context) (int, error) {
	return s.invalidateAll(ctx, cachekey.ScholarshipDomain())
}

func (s *CacheService) invalidateAll(ctx context.Context, patterns []string) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, pattern := range patterns {
		removed, err := s.InvalidateByPattern(ctx, pattern)
		total += removed
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// GetOrCompute serves key from cache, or runs compute and stores its result for ttl.
// Cache failures degrade to computing without storing; compute errors propagate and are never cached.
// A compute that overlaps a committed write may store its older result after invalidation; it lives until ttl.
func GetOrCompute[T any](ctx context.Context, cache *CacheService, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, bool, error) {
	if !cache.Enabled() {
		value, err := compute(ctx)
		return value, false, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.GetOrCompute",
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	var cached T
	hit, err := cache.Get(ctx, key, &cached)
	if err != nil {
		cache.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		span.SetAttributes(attribute.Bool("cache.degraded", true))
		value, err := compute(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compute failed")
		}
		return value, false, err
	}
	if hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, true, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))
	value, err := compute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		var zero T
		return zero, false, err
	}
	if err := cache.Set(ctx, key, value, ttl); err != nil {
		cache.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return value, false, nil
}
