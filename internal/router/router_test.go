package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/config"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func newTestEngine(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{Env: config.EnvDevelopment, APIPrefix: "/api/v1"}
	metrics := service.NewMetricsService()
	handlers := Handlers{
		Applications:  handler.NewApplicationHandler(nil),
		StageProgress: handler.NewStageProgressHandler(nil),
		Analytics:     handler.NewAnalyticsHandler(nil),
		Activities:    handler.NewActivityHandler(nil),
		Scholarships:  handler.NewScholarshipHandler(nil),
		Exports:       handler.NewExportHandler(nil, nil),
		Metrics:       handler.NewMetricsHandler(metrics, nil),
	}
	tokens := staticTokens{
		"student":  {UserID: "user-student", Role: models.RoleStudent},
		"verifier": {UserID: "user-verifier", Role: models.RoleVerifier, FacultyID: "fac-1"},
	}
	return Setup(cfg, handlers, tokens, metrics, zap.NewNop())
}

func TestProbesArePublic(t *testing.T) {
	engine := newTestEngine(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	engine := newTestEngine(t)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouteRoleAllowLists(t *testing.T) {
	engine := newTestEngine(t)
	cases := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodGet, "/api/v1/analytics/summary", "student"},
		{http.MethodPost, "/api/v1/applications/app-1/verify", "student"},
		{http.MethodPost, "/api/v1/applications/app-1/validate", "verifier"},
		{http.MethodPost, "/api/v1/applications", "verifier"},
		{http.MethodPatch, "/api/v1/scholarships/sch-1/status", "verifier"},
		{http.MethodGet, "/api/v1/analytics/system", "verifier"},
		{http.MethodGet, "/api/v1/exports/applications", "student"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		engine.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code, "%s %s as %s", tc.method, tc.path, tc.token)
	}
}
