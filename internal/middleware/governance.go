package middleware

import (
	"context"
	"fmt"
	"net/http"

	"go-request-guard/internal/governance"
)

// Governance enforces rule in front of next. A rule that does not fit the
// guard's configuration panics at route registration, like a bad chi pattern.
func Governance(guard *governance.Guard, rule governance.Rule) func(http.Handler) http.Handler {
	if err := guard.CheckRule(rule); err != nil {
		panic(fmt.Sprintf("governance rule %q: %v", rule.Name, err))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFromContext(r.Context())

			decision := guard.Evaluate(r, user, rule)
			decision.Apply(w)
			if !decision.Allowed {
				writeJSONError(w, decision.Status, decision.Code, decision.Reason)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), decision)))
		})
	}
}

const decisionContextKey contextKey = "governance_decision"

func WithDecision(ctx context.Context, decision governance.Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey, decision)
}

// DecisionFromContext returns the decision that admitted the request.
func DecisionFromContext(ctx context.Context) (governance.Decision, bool) {
	decision, ok := ctx.Value(decisionContextKey).(governance.Decision)
	return decision, ok
}
