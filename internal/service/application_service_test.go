package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/cachekey"
	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type memApplicationStore struct {
	records  map[string]*models.ApplicationRecord
	students map[string]string
	schemas  map[string][]models.Stage
	progress []models.ApplicationStageProgress
	logs     []models.ActivityLog
	locks    int
	seq      int
	logErr   error
}

func newMemApplicationStore() *memApplicationStore {
	return &memApplicationStore{
		records:  map[string]*models.ApplicationRecord{},
		students: map[string]string{"user-student": "student-1", "user-other": "student-2"},
		schemas: map[string][]models.Stage{
			"schema-1": {
				{ID: "stage-1", SchemaID: "schema-1", Name: "Seleksi Berkas", OrderNo: 1},
				{ID: "stage-2", SchemaID: "schema-1", Name: "Wawancara", OrderNo: 2},
				{ID: "stage-3", SchemaID: "schema-1", Name: "Pengumuman", OrderNo: 3},
			},
			"schema-empty": nil,
		},
	}
}

func (m *memApplicationStore) seed(id string, status models.ApplicationStatus, schemaID string) {
	m.records[id] = &models.ApplicationRecord{
		Application: models.Application{
			ID:        id,
			SchemaID:  schemaID,
			StudentID: "student-1",
			Status:    status,
			CreatedAt: time.Now().UTC(),
		},
		StudentUserID:    "user-student",
		StudentFacultyID: "fac-1",
	}
}

func (m *memApplicationStore) GetByID(_ context.Context, id string) (*models.ApplicationRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (m *memApplicationStore) StudentIDByUser(_ context.Context, userID string) (string, error) {
	id, ok := m.students[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return id, nil
}

func (m *memApplicationStore) SchemaExists(_ context.Context, schemaID string) (bool, error) {
	_, ok := m.schemas[schemaID]
	return ok, nil
}

func (m *memApplicationStore) ListByEntity(_ context.Context, entityType, entityID string) ([]models.ActivityLogView, error) {
	var views []models.ActivityLogView
	for _, log := range m.logs {
		if log.EntityType == entityType && log.EntityID == entityID {
			views = append(views, models.ActivityLogView{ActivityLog: log})
		}
	}
	return views, nil
}

func (m *memApplicationStore) WithinTransaction(_ context.Context, fn func(tx repository.ApplicationTx) error) error {
	records := make(map[string]*models.ApplicationRecord, len(m.records))
	for id, record := range m.records {
		copied := *record
		records[id] = &copied
	}
	progress := append([]models.ApplicationStageProgress(nil), m.progress...)
	logs := append([]models.ActivityLog(nil), m.logs...)

	if err := fn(&memApplicationTx{store: m}); err != nil {
		m.records, m.progress, m.logs = records, progress, logs
		return err
	}
	return nil
}

func (m *memApplicationStore) progressFor(applicationID string) []models.ApplicationStageProgress {
	var rows []models.ApplicationStageProgress
	for _, row := range m.progress {
		if row.ApplicationID == applicationID {
			rows = append(rows, row)
		}
	}
	return rows
}

type memApplicationTx struct {
	store *memApplicationStore
}

func (t *memApplicationTx) InsertApplication(_ context.Context, app *models.Application) error {
	for _, record := range t.store.records {
		if record.SchemaID == app.SchemaID && record.StudentID == app.StudentID {
			return repository.ErrDuplicateApplication
		}
	}
	t.store.seq++
	app.ID = fmt.Sprintf("app-new-%d", t.store.seq)
	t.store.records[app.ID] = &models.ApplicationRecord{Application: *app, StudentUserID: "user-student", StudentFacultyID: "fac-1"}
	return nil
}

func (t *memApplicationTx) LockApplication(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	t.store.locks++
	return t.store.GetByID(ctx, id)
}

func (t *memApplicationTx) UpdateStatus(_ context.Context, update repository.StatusUpdate) error {
	record, ok := t.store.records[update.ID]
	if !ok || record.Status != update.From {
		return repository.ErrStaleStatus
	}
	record.Status = update.To
	record.UpdatedAt = update.UpdatedAt
	for name, value := range update.Columns {
		switch name {
		case "verified_by":
			v := value.(string)
			record.VerifiedBy = &v
		case "validated_by":
			v := value.(string)
			record.ValidatedBy = &v
		case "rejected_by":
			v := value.(string)
			record.RejectedBy = &v
		case "notes":
			v := value.(string)
			record.Notes = &v
		case "submitted_at":
			v := value.(time.Time)
			record.SubmittedAt = &v
		case "revision_deadline":
			record.RevisionDeadline = value.(*time.Time)
		}
	}
	return nil
}

func (t *memApplicationTx) ListSchemaStages(_ context.Context, schemaID string) ([]models.Stage, error) {
	return t.store.schemas[schemaID], nil
}

func (t *memApplicationTx) CountStageProgress(_ context.Context, applicationID string) (int, error) {
	return len(t.store.progressFor(applicationID)), nil
}

func (t *memApplicationTx) InsertStageProgress(_ context.Context, rows []models.ApplicationStageProgress) (int, error) {
	inserted := 0
	for _, row := range rows {
		duplicate := false
		for _, existing := range t.store.progress {
			if existing.ApplicationID == row.ApplicationID && existing.StageID == row.StageID {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		t.store.progress = append(t.store.progress, row)
		inserted++
	}
	return inserted, nil
}

func (t *memApplicationTx) InsertActivityLog(_ context.Context, log *models.ActivityLog) error {
	if t.store.logErr != nil {
		return t.store.logErr
	}
	t.store.logs = append(t.store.logs, *log)
	return nil
}

type failingCacheRepo struct {
	*stubCacheRepo
}

func (failingCacheRepo) DeleteByPattern(context.Context, string) (int, error) {
	return 0, errors.New("redis unavailable")
}

var (
	actorVerifier  = models.Actor{ID: "user-verifier", DisplayName: "Budi", Role: models.RoleVerifier, FacultyID: "fac-1"}
	actorValidator = models.Actor{ID: "user-validator", DisplayName: "Sari", Role: models.RoleValidator}
	actorStudent   = models.Actor{ID: "user-student", DisplayName: "Ani", Role: models.RoleStudent}
	reqMeta        = models.RequestMeta{IP: "10.0.0.1", UserAgent: "go-test"}
)

func newApplicationServiceUnderTest(store *memApplicationStore, cacheRepo CacheRepository) *ApplicationService {
	cache := newTestCache(cacheRepo)
	return NewApplicationService(store, store, cache, NewMetricsService(), zap.NewNop())
}

func requireCode(t *testing.T, err error, code string, status int) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, code, appErr.Code)
	require.Equal(t, status, appErr.Status)
	return appErr
}

func TestVerifyFromWrongStatusIsStateConflictWithoutMutation(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusRejected, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	_, err := svc.Verify(context.Background(), "app-1", actorVerifier, reqMeta)
	appErr := requireCode(t, err, "STATE_CONFLICT", http.StatusBadRequest)
	assert.Equal(t, "cannot verify: current status is REJECTED", appErr.Message)

	record := store.records["app-1"]
	assert.Equal(t, models.ApplicationStatusRejected, record.Status)
	assert.Nil(t, record.VerifiedBy)
	assert.Empty(t, store.logs)
}

func TestEveryIllegalTransitionIsRejected(t *testing.T) {
	ops := map[TransitionOp]models.Actor{
		OpVerify:          actorVerifier,
		OpVerifierReject:  actorVerifier,
		OpRequestRevision: actorVerifier,
		OpValidate:        actorValidator,
		OpValidatorReject: actorValidator,
		OpSubmit:          actorStudent,
	}
	statuses := []models.ApplicationStatus{
		models.ApplicationStatusDraft,
		models.ApplicationStatusAwaitingVerify,
		models.ApplicationStatusVerified,
		models.ApplicationStatusRejected,
		models.ApplicationStatusRevisionNeeded,
		models.ApplicationStatusValidated,
	}
	for op, actor := range ops {
		rule := transitionRules[op]
		for _, status := range statuses {
			if statusIn(status, rule.from) {
				continue
			}
			store := newMemApplicationStore()
			store.seed("app-1", status, "schema-1")
			svc := newApplicationServiceUnderTest(store, newStubCacheRepo())
			_, err := svc.transition(context.Background(), op, "app-1", actor, reqMeta, transitionInput{Notes: "alasan"})
			requireCode(t, err, "STATE_CONFLICT", http.StatusBadRequest)
			assert.Equal(t, status, store.records["app-1"].Status, "op %s from %s", op, status)
			assert.Empty(t, store.logs)
		}
	}
}

func TestRejectRequiresNonBlankNotesBeforeLocking(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	for _, notes := range []string{"", "   ", "\t\n"} {
		_, err := svc.RejectByVerifier(context.Background(), "app-1", actorVerifier, reqMeta, dto.RejectApplicationRequest{Notes: notes})
		requireCode(t, err, "VALIDATION_ERROR", http.StatusBadRequest)
	}
	assert.Zero(t, store.locks)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, store.records["app-1"].Status)
}

func TestVerifierRejectStoresTrimmedNotes(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	result, err := svc.RejectByVerifier(context.Background(), "app-1", actorVerifier, reqMeta, dto.RejectApplicationRequest{Notes: "  IPK tidak memenuhi  "})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, result.Status)
	require.NotNil(t, result.RejectedAt)

	record := store.records["app-1"]
	require.NotNil(t, record.Notes)
	assert.Equal(t, "IPK tidak memenuhi", *record.Notes)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ActivityRejectApplication, store.logs[0].Action)
	assert.Contains(t, store.logs[0].Description, "IPK tidak memenuhi")
	assert.Contains(t, store.logs[0].Description, "Budi")
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	store := newMemApplicationStore()
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())
	ctx := context.Background()

	app, err := svc.Create(ctx, actorStudent, reqMeta, dto.CreateApplicationRequest{SchemaID: "schema-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusDraft, app.Status)
	assert.Equal(t, "student-1", app.StudentID)

	_, err = svc.Create(ctx, actorStudent, reqMeta, dto.CreateApplicationRequest{SchemaID: "schema-1"})
	requireCode(t, err, "CONFLICT", http.StatusConflict)
	assert.Len(t, store.records, 1)
	require.Len(t, store.logs, 1)
	assert.Equal(t, models.ActivityCreateApplication, store.logs[0].Action)
}

func TestCreateValidatesSchemaAndRole(t *testing.T) {
	store := newMemApplicationStore()
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, actorStudent, reqMeta, dto.CreateApplicationRequest{})
	requireCode(t, err, "VALIDATION_ERROR", http.StatusBadRequest)

	_, err = svc.Create(ctx, actorStudent, reqMeta, dto.CreateApplicationRequest{SchemaID: "missing"})
	requireCode(t, err, "NOT_FOUND", http.StatusNotFound)

	_, err = svc.Create(ctx, actorVerifier, reqMeta, dto.CreateApplicationRequest{SchemaID: "schema-1"})
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
}

func TestValidateMaterializesStagesOnce(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusVerified, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	result, err := svc.Validate(context.Background(), "app-1", actorValidator, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusValidated, result.Status)
	assert.Equal(t, 3, result.StagesCreated)

	rows := store.progressFor("app-1")
	require.Len(t, rows, 3)
	inProgress := 0
	for _, row := range rows {
		if row.StageID == "stage-1" {
			assert.Equal(t, models.StageProgressInProgress, row.Status)
			require.NotNil(t, row.StartedAt)
			inProgress++
			continue
		}
		assert.Equal(t, models.StageProgressNotStarted, row.Status)
		assert.Nil(t, row.StartedAt)
	}
	assert.Equal(t, 1, inProgress)

	err = store.WithinTransaction(context.Background(), func(tx repository.ApplicationTx) error {
		created, err := materializeStages(context.Background(), tx, "app-1", "schema-1", time.Now())
		require.Zero(t, created)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, store.progressFor("app-1"), 3)
}

func TestValidateWithoutStagesCreatesNothing(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusVerified, "schema-empty")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	result, err := svc.Validate(context.Background(), "app-1", actorValidator, reqMeta)
	require.NoError(t, err)
	assert.Zero(t, result.StagesCreated)
	assert.Empty(t, store.progress)
}

func TestTransitionRollsBackWhenLogWriteFails(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusVerified, "schema-1")
	store.logErr = errors.New("disk full")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	_, err := svc.Validate(context.Background(), "app-1", actorValidator, reqMeta)
	requireCode(t, err, "INTERNAL_ERROR", http.StatusInternalServerError)
	assert.Equal(t, models.ApplicationStatusVerified, store.records["app-1"].Status)
	assert.Empty(t, store.progress)
}

func TestFacultyScopedVerifierCannotTouchOtherFaculty(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	outsider := actorVerifier
	outsider.FacultyID = "fac-2"
	_, err := svc.Verify(context.Background(), "app-1", outsider, reqMeta)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, store.records["app-1"].Status)

	_, err = svc.Get(context.Background(), "app-1", outsider)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
}

func TestVerifierWithoutFacultyIsForbidden(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	store.records["app-1"].StudentFacultyID = ""
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	unassigned := models.Actor{ID: "user-v2", DisplayName: "Rina", Role: models.RoleVerifier}
	_, err := svc.Verify(context.Background(), "app-1", unassigned, reqMeta)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
	_, err = svc.Get(context.Background(), "app-1", unassigned)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, store.records["app-1"].Status)
	assert.Empty(t, store.logs)
}

func TestVerifierCannotActOnStudentWithoutFaculty(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	store.records["app-1"].StudentFacultyID = ""
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	_, err := svc.Verify(context.Background(), "app-1", actorVerifier, reqMeta)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, store.records["app-1"].Status)

	_, err = svc.Get(context.Background(), "app-1", actorValidator)
	require.NoError(t, err)
}

func TestWrongRoleIsForbidden(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusVerified, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	_, err := svc.Validate(context.Background(), "app-1", actorVerifier, reqMeta)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)
	assert.Zero(t, store.locks)
}

func TestSubmitOnlyByOwner(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusDraft, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	other := models.Actor{ID: "user-other", DisplayName: "Dodi", Role: models.RoleStudent}
	_, err := svc.Submit(context.Background(), "app-1", other, reqMeta)
	requireCode(t, err, "FORBIDDEN", http.StatusForbidden)

	result, err := svc.Submit(context.Background(), "app-1", actorStudent, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, result.Status)
	assert.NotNil(t, result.SubmittedAt)
}

func TestRevisionRoundTrip(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	_, err := svc.RequestRevision(ctx, "app-1", actorVerifier, reqMeta, dto.RequestRevisionRequest{Notes: "lengkapi KTM", Deadline: &past})
	requireCode(t, err, "VALIDATION_ERROR", http.StatusBadRequest)

	future := time.Now().Add(72 * time.Hour)
	result, err := svc.RequestRevision(ctx, "app-1", actorVerifier, reqMeta, dto.RequestRevisionRequest{Notes: "lengkapi KTM", Deadline: &future})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRevisionNeeded, result.Status)
	require.NotNil(t, result.RevisionDeadline)

	result, err = svc.Submit(ctx, "app-1", actorStudent, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusAwaitingVerify, result.Status)

	history, err := svc.History(ctx, "app-1", actorVerifier)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ActivityRequestRevision, history[0].Action)
	assert.Equal(t, models.ActivitySubmitApplication, history[1].Action)
}

func TestHappyPathThroughValidation(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	cacheRepo := newStubCacheRepo()
	svc := newApplicationServiceUnderTest(store, cacheRepo)
	ctx := context.Background()

	summaryKey := cachekey.Analytics(cachekey.FamilySummary, cachekey.Scope{Year: 2024, Role: "SUPERADMIN"})
	require.NoError(t, svc.cache.Set(ctx, summaryKey, models.AnalyticsSummary{TotalApplications: 1}, 0))
	require.NoError(t, svc.cache.Set(ctx, cachekey.RecentActivities, []int{}, 0))

	verified, err := svc.Verify(ctx, "app-1", actorVerifier, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusVerified, verified.Status)
	require.NotNil(t, verified.VerifiedAt)
	assert.NotContains(t, cacheRepo.store, summaryKey)
	assert.NotContains(t, cacheRepo.store, cachekey.RecentActivities)

	validated, err := svc.Validate(ctx, "app-1", actorValidator, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusValidated, validated.Status)
	assert.Len(t, store.progressFor("app-1"), 3)

	record := store.records["app-1"]
	require.NotNil(t, record.VerifiedBy)
	assert.Equal(t, actorVerifier.ID, *record.VerifiedBy)
	require.NotNil(t, record.ValidatedBy)
	assert.Equal(t, actorValidator.ID, *record.ValidatedBy)
	assert.Nil(t, record.RejectedBy)

	require.Len(t, store.logs, 2)
	assert.Equal(t, models.ActivityVerifyApplication, store.logs[0].Action)
	assert.Equal(t, models.ActivityValidateApplication, store.logs[1].Action)
	for _, log := range store.logs {
		assert.Equal(t, models.ApplicationEntityType, log.EntityType)
		assert.Equal(t, "app-1", log.EntityID)
		assert.Equal(t, reqMeta.IP, log.IPAddress)
		assert.Equal(t, reqMeta.UserAgent, log.UserAgent)
	}
}

func TestRejectedApplicationCannotBeValidated(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())
	ctx := context.Background()

	_, err := svc.RejectByVerifier(ctx, "app-1", actorVerifier, reqMeta, dto.RejectApplicationRequest{Notes: "berkas palsu"})
	require.NoError(t, err)

	_, err = svc.Validate(ctx, "app-1", actorValidator, reqMeta)
	appErr := requireCode(t, err, "STATE_CONFLICT", http.StatusBadRequest)
	assert.Equal(t, "cannot validate: current status is REJECTED", appErr.Message)
	assert.Empty(t, store.progress)
	assert.Len(t, store.logs, 1)
}

func TestInvalidationFailureDoesNotFailTransition(t *testing.T) {
	store := newMemApplicationStore()
	store.seed("app-1", models.ApplicationStatusAwaitingVerify, "schema-1")
	svc := newApplicationServiceUnderTest(store, failingCacheRepo{newStubCacheRepo()})

	result, err := svc.Verify(context.Background(), "app-1", actorVerifier, reqMeta)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusVerified, result.Status)
}

func TestUnknownApplicationIsNotFound(t *testing.T) {
	store := newMemApplicationStore()
	svc := newApplicationServiceUnderTest(store, newStubCacheRepo())

	_, err := svc.Verify(context.Background(), "missing", actorVerifier, reqMeta)
	requireCode(t, err, "NOT_FOUND", http.StatusNotFound)
}
