package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

const defaultScanBatch int64 = 100

// CacheRepository wraps the Redis commands used by the read-through cache.
// A nil client behaves as an always-empty cache.
type CacheRepository struct {
	client    *redis.Client
	logger    *zap.Logger
	scanBatch int64
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger, scanBatch int64) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scanBatch <= 0 {
		scanBatch = defaultScanBatch
	}
	return &CacheRepository{client: client, logger: logger, scanBatch: scanBatch}
}

// Available reports whether a Redis client is attached.
func (r *CacheRepository) Available() bool {
	return r != nil && r.client != nil
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if !r.Available() {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !r.Available() {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes exact keys and returns how many existed.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) (int, error) {
	if !r.Available() || len(keys) == 0 {
		return 0, nil
	}
	removed, err := r.client.Unlink(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis unlink: %w", err)
	}
	return int(removed), nil
}

// DeleteByPattern walks the keyspace with SCAN and unlinks every page of matches.
// It returns the number of keys removed.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if !r.Available() {
		return 0, nil
	}

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, r.scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan pattern %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := r.client.Unlink(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis unlink pattern %s: %w", pattern, err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	r.logger.Debug("cache pattern removed", zap.String("pattern", pattern), zap.Int("keys", removed))
	return removed, nil
}

// PingContext checks Redis connectivity for readiness probes. A disabled cache always reports healthy.
func (r *CacheRepository) PingContext(ctx context.Context) error {
	if !r.Available() {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if !r.Available() {
		return nil
	}
	return r.client.Close()
}
