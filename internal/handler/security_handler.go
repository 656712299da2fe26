package handler

import (
	"net/http"

	"go-request-guard/internal/governance"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/model"
	"go-request-guard/internal/rbac"
)

type SecurityHandler struct {
	guard *governance.Guard
}

func NewSecurityHandler(guard *governance.Guard) *SecurityHandler {
	return &SecurityHandler{guard: guard}
}

// CSRFToken returns the token the governance layer issued for this GET, or
// issues one when the route runs without it.
func (h *SecurityHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	if decision, ok := middleware.DecisionFromContext(r.Context()); ok && decision.CSRF != nil {
		writeSuccess(w, http.StatusOK, model.CSRFTokenData{
			Token:     decision.CSRF.Value,
			ExpiresAt: decision.CSRF.Expires,
			Header:    h.guard.HeaderName(),
		}, nil)
		return
	}

	token, cookie, err := h.guard.IssueToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(h.guard.HeaderName(), token.Value)
	http.SetCookie(w, cookie)

	writeSuccess(w, http.StatusOK, model.CSRFTokenData{
		Token:     token.Value,
		ExpiresAt: token.Expires,
		Header:    h.guard.HeaderName(),
	}, nil)
}

func (h *SecurityHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	effective := rbac.EffectivePermissions(user)
	permissions := make([]string, 0, len(effective))
	for _, permission := range effective {
		permissions = append(permissions, string(permission))
	}

	writeSuccess(w, http.StatusOK, model.Principal{
		ID:            user.ID,
		Email:         user.Email,
		Role:          user.Role,
		ResolvedRole:  user.ResolvedRole().String(),
		EmailVerified: user.EmailVerified,
		IsAdmin:       rbac.IsAdmin(user),
		Permissions:   permissions,
	}, nil)
}
