package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/model"
	"go-request-guard/internal/rbac"
)

const testJWTSecret = "token-service-test-secret-0123456789"

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()

	svc, err := NewTokenService(testJWTSecret, 15*time.Minute, "request-guard")
	require.NoError(t, err)
	return svc.WithClock(func() time.Time { return *now })
}

func TestTokenService_IssueAndAuthenticate(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)

	issued, err := svc.Issue(rbac.User{
		ID:            "user-7",
		Email:         "staff@example.com",
		Role:          "staff",
		EmailVerified: true,
		Permissions:   []rbac.Permission{rbac.ReadAnalytics},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", issued.TokenType)
	assert.Equal(t, int64(900), issued.ExpiresIn)
	assert.Equal(t, now.Add(15*time.Minute), issued.ExpiresAt)

	user, err := svc.Authenticate(issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-7", user.ID)
	assert.Equal(t, "staff@example.com", user.Email)
	assert.Equal(t, "staff", user.Role)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, []rbac.Permission{rbac.ReadAnalytics}, user.Permissions)
	assert.True(t, rbac.HasPermission(user, rbac.ReadAnalytics))
}

func TestTokenService_Rejections(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)

	issued, err := svc.Issue(rbac.User{ID: "user-1", Role: "admin"})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := now.Add(16 * time.Minute)
		expiredSvc := newTestTokenService(t, &later)
		_, err := expiredSvc.Authenticate(issued.AccessToken)
		assert.ErrorIs(t, err, model.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenService("another-secret-another-secret-0123", time.Minute, "request-guard")
		require.NoError(t, err)
		_, err = other.WithClock(func() time.Time { return now }).Authenticate(issued.AccessToken)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := svc.ValidateToken(issued.AccessToken, "refresh")
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("unsigned", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "user-1",
			"typ": TokenTypeAccess,
			"exp": now.Add(time.Hour).Unix(),
		})
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.Authenticate(raw)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"typ": TokenTypeAccess,
			"iss": "request-guard",
			"exp": now.Add(time.Hour).Unix(),
		})
		raw, err := token.SignedString([]byte(testJWTSecret))
		require.NoError(t, err)

		_, err = svc.Authenticate(raw)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Authenticate("not.a.token")
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Minute, "")
	assert.Error(t, err)
}

func TestUserFromClaims_Nil(t *testing.T) {
	assert.Nil(t, UserFromClaims(nil))
}
