package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type stubCacheRepo struct {
	store  map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
	sets   int
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{store: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	s.ttls[key] = ttl
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, keys ...string) (int, error) {
	removed := 0
	for _, key := range keys {
		if _, ok := s.store[key]; ok {
			delete(s.store, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	removed := 0
	for key := range s.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.store, key)
			removed++
		}
	}
	return removed, nil
}

func newTestCache(repo CacheRepository) *CacheService {
	return NewCacheService(repo, NewMetricsService(), zap.NewNop(), CacheOptions{DefaultTTL: time.Minute, Enabled: true})
}

func TestGetOrComputeMissThenHit(t *testing.T) {
	repo := newStubCacheRepo()
	cache := newTestCache(repo)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (map[string]int, error) {
		calls++
		return map[string]int{"total": 7}, nil
	}

	value, hit, err := GetOrCompute(ctx, cache, "analytics:summary:x", 5*time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, value["total"])
	assert.Equal(t, 5*time.Minute, repo.ttls["analytics:summary:x"])

	value, hit, err = GetOrCompute(ctx, cache, "analytics:summary:x", 5*time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, value["total"])
	assert.Equal(t, 1, calls)
}

func TestGetOrComputeStoreReadFailureComputesWithoutStoring(t *testing.T) {
	repo := newStubCacheRepo()
	repo.getErr = errors.New("connection refused")
	cache := newTestCache(repo)

	value, hit, err := GetOrCompute(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, value)
	assert.Zero(t, repo.sets)
}

func TestGetOrComputeStoreWriteFailureStillReturnsValue(t *testing.T) {
	repo := newStubCacheRepo()
	repo.setErr = errors.New("read only replica")
	cache := newTestCache(repo)

	value, hit, err := GetOrCompute(context.Background(), cache, "k", 0, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, repo.sets)
}

func TestGetOrComputeComputeErrorIsNotCached(t *testing.T) {
	repo := newStubCacheRepo()
	cache := newTestCache(repo)

	_, _, err := GetOrCompute(context.Background(), cache, "k", 0, func(context.Context) (int, error) { return 0, assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, repo.store)
}

func TestGetOrComputeDisabledCacheAlwaysComputes(t *testing.T) {
	cache := NewCacheService(nil, nil, nil, CacheOptions{})
	calls := 0
	for i := 0; i < 2; i++ {
		_, hit, err := GetOrCompute(context.Background(), cache, "k", 0, func(context.Context) (int, error) {
			calls++
			return calls, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidateApplicationDomainRemovesEveryFamily(t *testing.T) {
	repo := newStubCacheRepo()
	cache := newTestCache(repo)
	ctx := context.Background()
	scope := cachekey.Scope{Year: 2024, Role: "VALIDATOR"}
	for _, family := range cachekey.Families {
		require.NoError(t, cache.Set(ctx, cachekey.Analytics(family, scope), 1, 0))
	}
	require.NoError(t, cache.Set(ctx, cachekey.RecentActivities, []int{1}, 0))
	require.NoError(t, cache.Set(ctx, cachekey.AllScholarships, []int{1}, 0))

	removed, err := cache.InvalidateApplicationDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(cachekey.Families)+1, removed)
	assert.Len(t, repo.store, 1)
	assert.Contains(t, repo.store, cachekey.AllScholarships)
	assert.Equal(t, uint64(removed), cache.metrics.Snapshot().CacheKeysInvalidated)
}

func TestInvalidateScholarshipDomain(t *testing.T) {
	repo := newStubCacheRepo()
	cache := newTestCache(repo)
	ctx := context.Background()
	scope := cachekey.Scope{Role: "SUPERADMIN"}
	require.NoError(t, cache.Set(ctx, cachekey.Analytics(cachekey.FamilySummary, scope), 1, 0))
	require.NoError(t, cache.Set(ctx, cachekey.Analytics(cachekey.FamilyTrend, scope, "monthly"), 1, 0))
	require.NoError(t, cache.Set(ctx, cachekey.AllScholarships, 1, 0))

	removed, err := cache.InvalidateScholarshipDomain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Len(t, repo.store, 1)
}
