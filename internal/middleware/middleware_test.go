package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/csrf"
	"go-request-guard/internal/governance"
	"go-request-guard/internal/model"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/rbac"
)

type fakeAuthenticator struct {
	users map[string]*rbac.User
}

func (f fakeAuthenticator) Authenticate(token string) (*rbac.User, error) {
	if token == "expired" {
		return nil, model.ErrTokenExpired
	}
	user, ok := f.users[token]
	if !ok {
		return nil, model.ErrTokenInvalid
	}
	return user, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, body *bytes.Buffer) *model.APIError {
	t.Helper()

	var response model.APIResponse
	require.NoError(t, json.Unmarshal(body.Bytes(), &response))
	require.False(t, response.Success)
	require.NotNil(t, response.Error)
	return response.Error
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	auth := NewAuthMiddleware(fakeAuthenticator{users: map[string]*rbac.User{
		"good": {ID: "u-1", Role: "staff"},
	}})

	var seen *rbac.User
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		header  string
		status  int
		message string
		userID  string
	}{
		{name: "anonymous", status: http.StatusNoContent},
		{name: "valid", header: "Bearer good", status: http.StatusNoContent, userID: "u-1"},
		{name: "scheme is case insensitive", header: "bearer good", status: http.StatusNoContent, userID: "u-1"},
		{name: "basic auth", header: "Basic dXNlcjpwYXNz", status: http.StatusUnauthorized, message: "missing or invalid authorization header"},
		{name: "unknown token", header: "Bearer nope", status: http.StatusUnauthorized, message: "invalid token"},
		{name: "expired token", header: "Bearer expired", status: http.StatusUnauthorized, message: "token expired"},
	}

	for _, tc := range tests {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, tc.status, rec.Code, tc.name)
		if tc.message != "" {
			apiErr := decodeError(t, rec.Body)
			assert.Equal(t, "UNAUTHORIZED", apiErr.Code, tc.name)
			assert.Equal(t, tc.message, apiErr.Message, tc.name)
		}
		if tc.userID != "" {
			require.NotNil(t, seen, tc.name)
			assert.Equal(t, tc.userID, seen.ID, tc.name)
		} else {
			assert.Nil(t, seen, tc.name)
		}
	}
}

func newGuard(t *testing.T) *governance.Guard {
	t.Helper()

	manager, err := csrf.NewManager([]byte("middleware-test-secret-0123456789"), time.Hour)
	require.NoError(t, err)

	limiter := ratelimit.NewFixedWindow(ratelimit.Config{
		Name:            ratelimit.PresetAPIWrite,
		Policy:          ratelimit.Policy{Window: time.Minute, MaxRequests: 5},
		Logger:          quietLogger(),
		CleanupInterval: -1,
	})
	t.Cleanup(func() { _ = limiter.Close() })

	return governance.New(governance.Options{
		CSRF:     manager,
		Limiters: map[string]ratelimit.Limiter{ratelimit.PresetAPIWrite: limiter},
		Logger:   quietLogger(),
	})
}

func TestGovernanceMiddleware(t *testing.T) {
	t.Parallel()

	guard := newGuard(t)
	rule := governance.Rule{Name: "customers.create", RateLimit: ratelimit.PresetAPIWrite, Resource: "customers", Action: rbac.ActionCreate}
	manager := &rbac.User{ID: "u-2", Role: "manager"}

	reached := false
	handler := Governance(guard, rule)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		_, ok := DecisionFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusAccepted)
	}))

	t.Run("missing csrf token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/customers", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req = req.WithContext(WithUser(req.Context(), manager))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		apiErr := decodeError(t, rec.Body)
		assert.Equal(t, governance.CodeCSRFRequired, apiErr.Code)
		assert.Equal(t, "CSRF token required for this request", apiErr.Message)
		assert.False(t, reached)
	})

	t.Run("allowed", func(t *testing.T) {
		get := httptest.NewRequest(http.MethodGet, "/api/admin/customers", nil)
		tokenRec := httptest.NewRecorder()
		Governance(guard, governance.Rule{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(tokenRec, get)
		token := tokenRec.Header().Get(csrf.DefaultHeaderName)
		require.NotEmpty(t, token)

		req := httptest.NewRequest(http.MethodPost, "/api/admin/customers", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(csrf.DefaultHeaderName, token)
		req = req.WithContext(WithUser(req.Context(), manager))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, reached)
		assert.Equal(t, "5", rec.Header().Get("RateLimit-Limit"))
		assert.Equal(t, "4", rec.Header().Get("RateLimit-Remaining"))
	})

	t.Run("bad rule panics", func(t *testing.T) {
		assert.Panics(t, func() {
			Governance(guard, governance.Rule{RateLimit: "nope"})
		})
	})
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	handler := Recovery(quietLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec.Body).Code)
}

func TestLoggingRequestID(t *testing.T) {
	t.Parallel()

	var fromContext string
	handler := Logging(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = RequestIDFromContext(r.Context())
		writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "nope")
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, rec.Header().Get(requestIDHeader))
		assert.Equal(t, rec.Header().Get(requestIDHeader), fromContext)
	})

	t.Run("valid id is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, "0b9c3f8e-9f43-4c2b-8a57-1d2f0a4c7e11")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, "0b9c3f8e-9f43-4c2b-8a57-1d2f0a4c7e11", rec.Header().Get(requestIDHeader))
	})

	t.Run("injected id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, "abc\nlevel=ERROR")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.NotContains(t, rec.Header().Get(requestIDHeader), "level")
	})
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	handler := SecurityHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestCORSExposesGuardHeaders(t *testing.T) {
	t.Parallel()

	handler := CORS([]string{"https://admin.example.com"}, csrf.DefaultHeaderName)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/admin/customers", nil)
	preflight.Header.Set("Origin", "https://admin.example.com")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", csrf.DefaultHeaderName)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)

	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, http.CanonicalHeaderKey(rec.Header().Get("Access-Control-Allow-Headers")), "X-Csrf-Token")

	get := httptest.NewRequest(http.MethodGet, "/api/admin/customers", nil)
	get.Header.Set("Origin", "https://admin.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, get)
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
}

type observed struct {
	method string
	route  string
	status int
}

type fakeObserver struct {
	mu    sync.Mutex
	calls []observed
}

func (f *fakeObserver) ObserveRequest(method string, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, observed{method: method, route: route, status: status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	t.Parallel()

	observer := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Metrics(observer))
	r.Get("/api/admin/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/customers/42", nil))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	observer.mu.Lock()
	defer observer.mu.Unlock()
	require.Len(t, observer.calls, 2)
	assert.Equal(t, observed{method: http.MethodGet, route: "/api/admin/customers/{id}", status: http.StatusTeapot}, observer.calls[0])
	assert.Equal(t, http.StatusNotFound, observer.calls[1].status)
}
