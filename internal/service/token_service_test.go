package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func testClaims(issuer string, expiresAt time.Time) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:    "user-1",
		Role:      models.RoleVerifier,
		FullName:  "Budi Santoso",
		FacultyID: "fac-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "scholarship"})
	token := signTestToken(t, "secret", testClaims("scholarship", time.Now().Add(time.Hour)))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	actor := claims.Actor()
	assert.Equal(t, "fac-1", actor.FacultyID)
	assert.Equal(t, "Budi Santoso", actor.DisplayName)
}

func TestValidateTokenRejectsExpiredWrongSecretAndIssuer(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "scholarship"})
	cases := map[string]string{
		"expired":      signTestToken(t, "secret", testClaims("scholarship", time.Now().Add(-time.Hour))),
		"wrong secret": signTestToken(t, "other", testClaims("scholarship", time.Now().Add(time.Hour))),
		"wrong issuer": signTestToken(t, "secret", testClaims("elsewhere", time.Now().Add(time.Hour))),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
