package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/models"
)

type recentActivityStub struct {
	rows  []models.ActivityLogView
	limit int
	calls int
	err   error
}

func (r *recentActivityStub) Recent(_ context.Context, limit int) ([]models.ActivityLogView, error) {
	r.calls++
	r.limit = limit
	return r.rows, r.err
}

func TestRecentActivitiesAreCachedUnderFeedKey(t *testing.T) {
	name := "Budi"
	repo := &recentActivityStub{rows: []models.ActivityLogView{{ActivityLog: models.ActivityLog{ID: "log-1", Action: models.ActivityVerifyApplication}, ActorName: &name}}}
	cacheRepo := newStubCacheRepo()
	svc := NewActivityService(repo, newTestCache(cacheRepo), 2*time.Minute, zap.NewNop())

	items, hit, err := svc.Recent(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, items, 1)
	assert.Equal(t, recentActivityLimit, repo.limit)
	assert.Equal(t, 2*time.Minute, cacheRepo.ttls[cachekey.RecentActivities])

	items, hit, err = svc.Recent(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Budi", *items[0].ActorName)
	assert.Equal(t, 1, repo.calls)
}

func TestRecentActivitiesEmptyFeedIsNotNil(t *testing.T) {
	svc := NewActivityService(&recentActivityStub{}, newTestCache(newStubCacheRepo()), time.Minute, nil)

	items, _, err := svc.Recent(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestRecentActivitiesErrorIsInternal(t *testing.T) {
	svc := NewActivityService(&recentActivityStub{err: errors.New("boom")}, newTestCache(newStubCacheRepo()), time.Minute, nil)

	_, _, err := svc.Recent(context.Background())
	requireCode(t, err, "INTERNAL_ERROR", 500)
}

func TestNewActivityLogOmitsAnonymousActor(t *testing.T) {
	now := time.Now().UTC()
	log := newActivityLog(models.Actor{}, reqMeta, models.ActivityUpdateScholarship, ScholarshipEntityType, "sch-1", "x", now)
	assert.Nil(t, log.UserID)
	assert.Equal(t, "10.0.0.1", log.IPAddress)
	assert.Equal(t, now, log.CreatedAt)

	log = newActivityLog(actorValidator, reqMeta, models.ActivityUpdateScholarship, ScholarshipEntityType, "sch-1", "x", now)
	require.NotNil(t, log.UserID)
	assert.Equal(t, actorValidator.ID, *log.UserID)
}

func TestInvalidateAfterCommitSurvivesCancelledRequest(t *testing.T) {
	cache := newTestCache(newStubCacheRepo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	invalidateAfterCommit(ctx, cache, zap.NewNop(), "verify", func(ctx context.Context) (int, error) {
		seen = ctx.Err()
		return 1, nil
	})
	assert.NoError(t, seen)
}
