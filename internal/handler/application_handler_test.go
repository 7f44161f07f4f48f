package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type applicationServiceMock struct {
	lastID     string
	lastActor  models.Actor
	lastMeta   models.RequestMeta
	lastReject dto.RejectApplicationRequest
	result     *dto.TransitionResult
	err        error
	called     string
}

func (m *applicationServiceMock) Create(_ context.Context, actor models.Actor, meta models.RequestMeta, req dto.CreateApplicationRequest) (*models.Application, error) {
	m.called = "create"
	m.lastActor = actor
	return &models.Application{ID: "app-1", SchemaID: req.SchemaID, Status: models.ApplicationStatusDraft}, m.err
}

func (m *applicationServiceMock) Get(_ context.Context, id string, actor models.Actor) (*models.Application, error) {
	m.called = "get"
	m.lastID = id
	return &models.Application{ID: id}, m.err
}

func (m *applicationServiceMock) History(_ context.Context, id string, _ models.Actor) ([]models.ActivityLogView, error) {
	m.called = "history"
	return nil, m.err
}

func (m *applicationServiceMock) record(op, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	m.called = op
	m.lastID = id
	m.lastActor = actor
	m.lastMeta = meta
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *applicationServiceMock) Submit(_ context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return m.record("submit", id, actor, meta)
}

func (m *applicationServiceMock) Verify(_ context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return m.record("verify", id, actor, meta)
}

func (m *applicationServiceMock) RejectByVerifier(_ context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error) {
	m.lastReject = req
	return m.record("verifier-reject", id, actor, meta)
}

func (m *applicationServiceMock) RequestRevision(_ context.Context, id string, actor models.Actor, meta models.RequestMeta, _ dto.RequestRevisionRequest) (*dto.TransitionResult, error) {
	return m.record("request-revision", id, actor, meta)
}

func (m *applicationServiceMock) Validate(_ context.Context, id string, actor models.Actor, meta models.RequestMeta) (*dto.TransitionResult, error) {
	return m.record("validate", id, actor, meta)
}

func (m *applicationServiceMock) RejectByValidator(_ context.Context, id string, actor models.Actor, meta models.RequestMeta, req dto.RejectApplicationRequest) (*dto.TransitionResult, error) {
	m.lastReject = req
	return m.record("validator-reject", id, actor, meta)
}

var verifierClaims = &models.JWTClaims{UserID: "user-verifier", FullName: "Budi", Role: models.RoleVerifier, FacultyID: "fac-1"}

func newApplicationRouter(svc applicationService, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	})
	h := NewApplicationHandler(svc)
	router.POST("/applications", h.Create)
	router.GET("/applications/:id", h.Get)
	router.GET("/applications/:id/activities", h.Activities)
	router.POST("/applications/:id/verify", h.Verify)
	router.POST("/applications/:id/verifier-reject", h.RejectByVerifier)
	return router
}

func TestApplicationHandlerVerify(t *testing.T) {
	verifiedAt := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	svc := &applicationServiceMock{result: &dto.TransitionResult{ID: "app-1", Status: models.ApplicationStatusVerified, VerifiedAt: &verifiedAt}}
	router := newApplicationRouter(svc, verifierClaims)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/verify", nil)
	req.Header.Set("User-Agent", "handler-test")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verify", svc.called)
	assert.Equal(t, "app-1", svc.lastID)
	assert.Equal(t, "Budi", svc.lastActor.DisplayName)
	assert.Equal(t, "fac-1", svc.lastActor.FacultyID)
	assert.Equal(t, "handler-test", svc.lastMeta.UserAgent)

	var body struct {
		Data dto.TransitionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ApplicationStatusVerified, body.Data.Status)
	require.NotNil(t, body.Data.VerifiedAt)
}

func TestApplicationHandlerStateConflictEnvelope(t *testing.T) {
	svc := &applicationServiceMock{err: appErrors.Clone(appErrors.ErrStateConflict, "cannot verify: current status is VALIDATED")}
	router := newApplicationRouter(svc, verifierClaims)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/applications/app-1/verify", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "STATE_CONFLICT", body.Error.Code)
	assert.Contains(t, body.Error.Message, "VALIDATED")
}

func TestApplicationHandlerRejectPassesNotes(t *testing.T) {
	svc := &applicationServiceMock{result: &dto.TransitionResult{ID: "app-1", Status: models.ApplicationStatusRejected}}
	router := newApplicationRouter(svc, verifierClaims)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/verifier-reject", bytes.NewBufferString(`{"notes":"IPK kurang"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verifier-reject", svc.called)
	assert.Equal(t, "IPK kurang", svc.lastReject.Notes)
}

func TestApplicationHandlerRejectMalformedBody(t *testing.T) {
	svc := &applicationServiceMock{}
	router := newApplicationRouter(svc, verifierClaims)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/verifier-reject", bytes.NewBufferString(`{"notes":`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.called)
}

func TestApplicationHandlerRequiresClaims(t *testing.T) {
	svc := &applicationServiceMock{}
	router := newApplicationRouter(svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applications/app-1", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.called)
}

func TestApplicationHandlerCreateAndHistory(t *testing.T) {
	svc := &applicationServiceMock{}
	student := &models.JWTClaims{UserID: "user-student", FullName: "Ani", Role: models.RoleStudent}
	router := newApplicationRouter(svc, student)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewBufferString(`{"schema_id":"schema-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.RoleStudent, svc.lastActor.Role)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applications/app-1/activities", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}
