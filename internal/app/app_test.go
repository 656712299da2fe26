package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/config"
	"go-request-guard/internal/csrf"
	"go-request-guard/internal/model"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/rbac"
	"go-request-guard/internal/service"
)

const (
	testJWTSecret = "app-test-jwt-secret-0123456789abcdef"
	clientAddr    = "203.0.113.7:40000"
)

func testConfig() *config.Config {
	policies := ratelimit.DefaultPresets()
	policies[ratelimit.PresetAuthentication] = ratelimit.Policy{Window: 15 * time.Minute, MaxRequests: 2}

	return &config.Config{
		AppEnv:                   config.EnvDevelopment,
		ServerPort:               "0",
		RequestTimeout:           5 * time.Second,
		ShutdownTimeout:          time.Second,
		LogFormat:                "json",
		LogLevel:                 "error",
		JWTSecret:                testJWTSecret,
		JWTAccessTTL:             time.Hour,
		CSRFSecret:               "app-test-csrf-secret-0123456789abcdef",
		CSRFMaxAge:               time.Hour,
		CSRFHeader:               csrf.DefaultHeaderName,
		CSRFCookie:               csrf.DefaultCookieName,
		SessionCookie:            "session_id",
		EncryptionKey:            "app-test-encryption-key-0123456789ab",
		CORSOrigins:              []string{"https://admin.example.com"},
		RateLimitStore:           config.RateLimitStoreMemory,
		RateLimitFailOpen:        true,
		RateLimitCleanupInterval: -1,
		RateLimits:               policies,
		MaxFileSize:              1 << 20,
		MaxBodyBytes:             1 << 20,
		AuditCapacity:            100,
	}
}

type stack struct {
	t       *testing.T
	handler http.Handler
	tokens  *service.TokenService
}

func newStack(t *testing.T) *stack {
	t.Helper()

	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	tokens, err := service.NewTokenService(testJWTSecret, time.Hour, "")
	require.NoError(t, err)

	return &stack{t: t, handler: a.Handler(), tokens: tokens}
}

type call struct {
	method  string
	path    string
	body    string
	role    string
	session string
	csrf    string
}

func (s *stack) do(c call) *httptest.ResponseRecorder {
	s.t.Helper()

	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.RemoteAddr = clientAddr
	req.Header.Set("Content-Type", "application/json")
	if c.role != "" {
		issued, err := s.tokens.Issue(rbac.User{ID: c.role + "-1", Email: c.role + "@example.com", Role: c.role})
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: c.session})
	}
	if c.csrf != "" {
		req.Header.Set(csrf.DefaultHeaderName, c.csrf)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *stack) csrfToken(session string) string {
	s.t.Helper()

	rec := s.do(call{method: http.MethodGet, path: "/api/v1/csrf-token", session: session})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var envelope struct {
		Data model.CSRFTokenData `json:"data"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotEmpty(s.t, envelope.Data.Token)
	return envelope.Data.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var response model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response), rec.Body.String())
	require.NotNil(t, response.Error, rec.Body.String())
	return response.Error.Code
}

const customerBody = `{"firstName":"Grace","lastName":"Hopper","email":"grace@example.com"}`

func TestWriteWithoutTokenIsRefusedBeforeRateLimiting(t *testing.T) {
	s := newStack(t)

	rec := s.do(call{method: http.MethodPost, path: "/api/admin/customers", body: customerBody, role: "manager"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CSRF_REQUIRED", errorCode(t, rec))
	assert.Empty(t, rec.Header().Get("RateLimit-Remaining"))
}

func TestCustomerIntake(t *testing.T) {
	s := newStack(t)
	token := s.csrfToken("sess-1")

	t.Run("manager creates", func(t *testing.T) {
		rec := s.do(call{method: http.MethodPost, path: "/api/admin/customers", body: customerBody, role: "manager", session: "sess-1", csrf: token})
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("token bound to another session", func(t *testing.T) {
		rec := s.do(call{method: http.MethodPost, path: "/api/admin/customers", body: customerBody, role: "manager", session: "sess-2", csrf: token})
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "CSRF_INVALID", errorCode(t, rec))
	})

	t.Run("staff may not create customers", func(t *testing.T) {
		rec := s.do(call{method: http.MethodPost, path: "/api/admin/customers", body: customerBody, role: "staff", session: "sess-1", csrf: token})
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	})

	t.Run("anonymous read", func(t *testing.T) {
		rec := s.do(call{method: http.MethodGet, path: "/api/admin/customers"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
	})

	t.Run("staff reads", func(t *testing.T) {
		rec := s.do(call{method: http.MethodGet, path: "/api/admin/customers", role: "staff"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "grace@example.com")
	})
}

func TestPaymentsFallBackToAdmin(t *testing.T) {
	s := newStack(t)

	rec := s.do(call{method: http.MethodGet, path: "/api/admin/payments", role: "manager"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/payments", role: "admin"})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLoginValidationIsRateLimited(t *testing.T) {
	s := newStack(t)
	token := s.csrfToken("sess-login")
	body := `{"email":"ada@example.com","password":"Correct-Horse-9"}`

	for i := 0; i < 2; i++ {
		rec := s.do(call{method: http.MethodPost, path: "/api/v1/validate/login", body: body, session: "sess-login", csrf: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(call{method: http.MethodPost, path: "/api/v1/validate/login", body: body, session: "sess-login", csrf: token})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
}

func TestDenialsReachTheAuditLog(t *testing.T) {
	s := newStack(t)

	rec := s.do(call{method: http.MethodDelete, path: "/api/admin/customers/0b9c3f8e-9f43-4c2b-8a57-1d2f0a4c7e11", role: "staff"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.Eventually(t, func() bool {
		rec := s.do(call{method: http.MethodGet, path: "/api/admin/audit?status=failure&action=csrf.rejected", role: "admin"})
		if rec.Code != http.StatusOK {
			return false
		}
		var envelope struct {
			Data model.AuditListData `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil || len(envelope.Data.Items) == 0 {
			return false
		}
		entry := envelope.Data.Items[0]
		return entry.Code == "CSRF_REQUIRED" && entry.Actor.IP == "203.0.113.7" && entry.Actor.UserID == "staff-1"
	}, 2*time.Second, 20*time.Millisecond)

	rec = s.do(call{method: http.MethodGet, path: "/api/admin/audit", role: "manager"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperationalRoutes(t *testing.T) {
	s := newStack(t)

	rec := s.do(call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get(csrf.DefaultHeaderName))

	rec = s.do(call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_guard_http_requests_total")
	assert.Contains(t, rec.Body.String(), "request_guard_governance_decisions_total")
}
