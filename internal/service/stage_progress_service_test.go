package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
)

type memStageProgressStore struct {
	rows    map[string]*models.StageProgressDetail
	updated *models.ApplicationStageProgress
	log     *models.ActivityLog
}

func (m *memStageProgressStore) ListByApplication(_ context.Context, applicationID string) ([]models.StageProgressDetail, error) {
	var out []models.StageProgressDetail
	for _, row := range m.rows {
		if row.ApplicationID == applicationID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memStageProgressStore) GetByID(_ context.Context, id string) (*models.StageProgressDetail, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *row
	return &copied, nil
}

func (m *memStageProgressStore) UpdateWithLog(_ context.Context, progress *models.ApplicationStageProgress, log *models.ActivityLog) error {
	m.updated = progress
	m.log = log
	return nil
}

var stageClock = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newStageProgressServiceUnderTest(cacheRepo CacheRepository) (*StageProgressService, *memStageProgressStore) {
	apps := newMemApplicationStore()
	apps.seed("app-1", models.ApplicationStatusValidated, "schema-1")
	store := &memStageProgressStore{rows: map[string]*models.StageProgressDetail{
		"prog-1": {
			ApplicationStageProgress: models.ApplicationStageProgress{ID: "prog-1", ApplicationID: "app-1", StageID: "stage-1", Status: models.StageProgressNotStarted},
			StageName:                "Seleksi Berkas",
			OrderNo:                  1,
		},
	}}
	svc := NewStageProgressService(store, apps, newTestCache(cacheRepo), zap.NewNop())
	svc.now = func() time.Time { return stageClock }
	return svc, store
}

func TestStageProgressUpdateStampsTimestamps(t *testing.T) {
	cacheRepo := newStubCacheRepo()
	cacheRepo.store[cachekey.RecentActivities] = []byte(`[]`)
	svc, store := newStageProgressServiceUnderTest(cacheRepo)
	notes := "  berkas lengkap "

	row, err := svc.Update(context.Background(), "prog-1", actorValidator, reqMeta, dto.UpdateStageProgressRequest{Status: models.StageProgressInProgress, Notes: &notes})
	require.NoError(t, err)
	require.NotNil(t, row.StartedAt)
	assert.Equal(t, stageClock, *row.StartedAt)
	assert.Nil(t, row.CompletedAt)
	assert.Equal(t, "berkas lengkap", *row.Notes)
	assert.Equal(t, models.ActivityUpdateStageProgress, store.log.Action)
	assert.Equal(t, models.ApplicationEntityType, store.log.EntityType)
	assert.Equal(t, "app-1", store.log.EntityID)
	assert.NotContains(t, cacheRepo.store, cachekey.RecentActivities)

	row, err = svc.Update(context.Background(), "prog-1", actorValidator, reqMeta, dto.UpdateStageProgressRequest{Status: models.StageProgressDone})
	require.NoError(t, err)
	require.NotNil(t, row.CompletedAt)
	assert.Equal(t, stageClock, *row.CompletedAt)
	assert.Equal(t, models.StageProgressDone, store.updated.Status)
}

func TestApplyStageStatusKeepsExistingStart(t *testing.T) {
	earlier := stageClock.Add(-48 * time.Hour)
	progress := &models.ApplicationStageProgress{Status: models.StageProgressDone, StartedAt: &earlier, CompletedAt: &earlier}

	applyStageStatus(progress, models.StageProgressInProgress, stageClock)
	assert.Equal(t, earlier, *progress.StartedAt)
	assert.Nil(t, progress.CompletedAt)
}

func TestStageProgressUpdateRejectsUnknownStatus(t *testing.T) {
	svc, store := newStageProgressServiceUnderTest(newStubCacheRepo())

	_, err := svc.Update(context.Background(), "prog-1", actorValidator, reqMeta, dto.UpdateStageProgressRequest{Status: "DITUNDA"})
	requireCode(t, err, "VALIDATION_ERROR", 400)

	_, err = svc.Update(context.Background(), "prog-1", actorValidator, reqMeta, dto.UpdateStageProgressRequest{})
	requireCode(t, err, "VALIDATION_ERROR", 400)
	assert.Nil(t, store.updated)
}

func TestStageProgressUpdateAccessRules(t *testing.T) {
	svc, _ := newStageProgressServiceUnderTest(newStubCacheRepo())
	req := dto.UpdateStageProgressRequest{Status: models.StageProgressDone}

	_, err := svc.Update(context.Background(), "prog-1", actorStudent, reqMeta, req)
	requireCode(t, err, "FORBIDDEN", 403)

	_, err = svc.Update(context.Background(), "missing", actorValidator, reqMeta, req)
	requireCode(t, err, "NOT_FOUND", 404)
}

func TestStageProgressListChecksOwnership(t *testing.T) {
	svc, _ := newStageProgressServiceUnderTest(newStubCacheRepo())

	rows, err := svc.List(context.Background(), "app-1", actorStudent)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Seleksi Berkas", rows[0].StageName)

	other := models.Actor{ID: "user-other", Role: models.RoleStudent}
	_, err = svc.List(context.Background(), "app-1", other)
	requireCode(t, err, "FORBIDDEN", 403)

	_, err = svc.List(context.Background(), "missing", actorValidator)
	requireCode(t, err, "NOT_FOUND", 404)
}
