package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-request-guard/internal/model"
	"go-request-guard/internal/rbac"
)

type Authenticator interface {
	Authenticate(tokenString string) (*rbac.User, error)
}

type contextKey string

const userContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate attaches the bearer token's user to the request context.
// Requests without an Authorization header continue anonymously; whether a
// route needs a user is decided by its governance rule. A header that is
// present but unusable is refused here.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		user, err := m.authenticator.Authenticate(strings.TrimSpace(header[7:]))
		if err != nil {
			message := "invalid token"
			if errors.Is(err, model.ErrTokenExpired) {
				message = "token expired"
			}
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func WithUser(ctx context.Context, user *rbac.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*rbac.User, bool) {
	user, ok := ctx.Value(userContextKey).(*rbac.User)
	return user, ok && user != nil
}
