package governance

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"go-request-guard/internal/csrf"
	"go-request-guard/internal/event"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/rbac"
)

const (
	CodeCSRFRequired         = "CSRF_REQUIRED"
	CodeCSRFInvalid          = "CSRF_INVALID"
	CodeCSRFExpired          = "CSRF_EXPIRED"
	CodeRateLimited          = "RATE_LIMIT_EXCEEDED"
	CodeRateLimitUnavailable = "RATE_LIMIT_UNAVAILABLE"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

const (
	MessageRateLimited          = "Too many requests, please try again later"
	MessageRateLimitUnavailable = "Rate limiting is temporarily unavailable"
	MessageUnauthorized         = "Authentication required"
	MessageForbidden            = "Insufficient permissions"
)

// MetricsRecorder receives one observation per decision and per limiter
// check. *metrics.Metrics satisfies it.
type MetricsRecorder interface {
	ObserveDecision(allowed bool, code string)
	ObserveRateLimit(limiter string, result ratelimit.Result)
}

type Options struct {
	CSRF *csrf.Manager
	// Limiters are addressed by Rule.RateLimit, usually a preset name.
	Limiters map[string]ratelimit.Limiter

	HeaderName string
	CookieName string
	// SessionID binds CSRF tokens to the caller. Nil binds every token to the
	// empty session.
	SessionID func(r *http.Request) string

	StandardHeaders bool
	LegacyHeaders   bool
	SecureCookies   bool

	Bus     event.Bus
	Logger  *slog.Logger
	Metrics MetricsRecorder
}

// Rule declares what a route requires. The zero Rule only enforces CSRF.
type Rule struct {
	Name        string
	RateLimit   string
	Permission  rbac.Permission
	Resource    string
	Action      rbac.Action
	MinRole     rbac.Role
	RequireAuth bool
	SkipCSRF    bool
}

func (r Rule) needsUser() bool {
	return r.RequireAuth || r.Permission != "" || r.Resource != "" || r.MinRole > rbac.RoleUser
}

func (r Rule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.RateLimit
}

// Guard evaluates inbound requests against route rules in a fixed order:
// CSRF, rate limit, authentication, authorization.
type Guard struct {
	opts Options
}

func New(opts Options) *Guard {
	if opts.HeaderName == "" {
		opts.HeaderName = csrf.DefaultHeaderName
	}
	if opts.CookieName == "" {
		opts.CookieName = csrf.DefaultCookieName
	}
	if opts.SessionID == nil {
		opts.SessionID = func(*http.Request) string { return "" }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiters == nil {
		opts.Limiters = map[string]ratelimit.Limiter{}
	}
	if !opts.StandardHeaders && !opts.LegacyHeaders {
		opts.StandardHeaders = true
	}
	return &Guard{opts: opts}
}

func (g *Guard) HeaderName() string {
	return g.opts.HeaderName
}

func (g *Guard) CookieName() string {
	return g.opts.CookieName
}

// CheckRule reports configuration mistakes in a rule so routes can fail at
// registration instead of on the first request.
func (g *Guard) CheckRule(rule Rule) error {
	if rule.RateLimit != "" {
		if _, ok := g.opts.Limiters[rule.RateLimit]; !ok {
			return fmt.Errorf("unknown rate limit %q (known: %s)", rule.RateLimit, strings.Join(g.limiterNames(), ", "))
		}
	}
	if rule.Permission != "" && !rbac.IsPermission(rule.Permission) {
		return fmt.Errorf("unknown permission %q", rule.Permission)
	}
	if rule.MinRole != rbac.RoleUser && !rule.MinRole.Known() {
		return fmt.Errorf("unknown role %d", int(rule.MinRole))
	}
	if (rule.Resource == "") != (rule.Action == "") {
		return fmt.Errorf("resource and action must be set together")
	}
	return nil
}

func (g *Guard) limiterNames() []string {
	names := make([]string, 0, len(g.opts.Limiters))
	for name := range g.opts.Limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IssueToken generates a token for the request's session and returns it
// with the cookie carrying it.
func (g *Guard) IssueToken(r *http.Request) (csrf.Token, *http.Cookie, error) {
	if g.opts.CSRF == nil {
		return csrf.Token{}, nil, fmt.Errorf("csrf protection is not configured")
	}
	token, err := g.opts.CSRF.Generate(g.opts.SessionID(r))
	if err != nil {
		return csrf.Token{}, nil, err
	}
	return token, g.tokenCookie(token), nil
}

func (g *Guard) tokenCookie(token csrf.Token) *http.Cookie {
	// Readable by scripts so they can echo it back in the header.
	return &http.Cookie{
		Name:     g.opts.CookieName,
		Value:    token.Value,
		Path:     "/",
		Expires:  token.Expires,
		MaxAge:   int(g.opts.CSRF.MaxAge().Seconds()),
		Secure:   g.opts.SecureCookies,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	}
}

// Evaluate runs every check the rule asks for and stops at the first denial.
// user may be nil for anonymous callers.
func (g *Guard) Evaluate(r *http.Request, user *rbac.User, rule Rule) Decision {
	decision := Decision{Allowed: true, Status: http.StatusOK, Headers: http.Header{}}

	if !rule.SkipCSRF && g.opts.CSRF != nil {
		if denied := g.checkCSRF(r, &decision); denied {
			return g.deny(r, user, rule, decision, event.TypeCSRFRejected)
		}
	}

	if rule.RateLimit != "" {
		if denied := g.checkRateLimit(r, rule, &decision); denied {
			eventType := event.TypeRateLimitExceeded
			if decision.RateLimit != nil && decision.RateLimit.Degraded {
				eventType = event.TypeRateLimitDegraded
			}
			return g.deny(r, user, rule, decision, eventType)
		}
	}

	if rule.needsUser() && user == nil {
		decision.refuse(http.StatusUnauthorized, CodeUnauthorized, MessageUnauthorized)
		return g.deny(r, user, rule, decision, event.TypeAuthRequired)
	}

	if !authorized(user, rule) {
		decision.refuse(http.StatusForbidden, CodeForbidden, MessageForbidden)
		return g.deny(r, user, rule, decision, event.TypeAuthzDenied)
	}

	g.observeDecision(decision)
	return decision
}

func (g *Guard) checkCSRF(r *http.Request, decision *Decision) bool {
	if csrf.IsSafeMethod(r.Method) {
		token, cookie, err := g.IssueToken(r)
		if err != nil {
			// A safe request still proceeds; the client just gets no fresh token.
			g.opts.Logger.Error("failed to issue csrf token", "error", err)
			return false
		}
		decision.CSRF = &token
		decision.Headers.Set(g.opts.HeaderName, token.Value)
		decision.Cookies = append(decision.Cookies, cookie)
		return false
	}

	submitted := strings.TrimSpace(r.Header.Get(g.opts.HeaderName))
	validation := g.opts.CSRF.Validate(submitted, g.opts.SessionID(r))
	if validation.Valid {
		return false
	}

	code := CodeCSRFInvalid
	switch {
	case validation.Expired:
		code = CodeCSRFExpired
	case validation.Error == csrf.MessageRequired:
		code = CodeCSRFRequired
	}
	decision.refuse(http.StatusForbidden, code, validation.Error)
	return true
}

func (g *Guard) checkRateLimit(r *http.Request, rule Rule, decision *Decision) bool {
	limiter, ok := g.opts.Limiters[rule.RateLimit]
	if !ok {
		g.opts.Logger.Error("route references unknown rate limit", "rate_limit", rule.RateLimit, "path", r.URL.Path)
		decision.refuse(http.StatusInternalServerError, CodeInternal, "Internal server error")
		return true
	}

	result := limiter.Check(r.Context(), r)
	decision.RateLimit = &result
	if g.opts.Metrics != nil {
		g.opts.Metrics.ObserveRateLimit(rule.RateLimit, result)
	}
	for name, values := range result.Headers(g.opts.StandardHeaders, g.opts.LegacyHeaders) {
		for _, value := range values {
			decision.Headers.Add(name, value)
		}
	}

	if result.Allowed {
		return false
	}
	if result.Degraded {
		decision.refuse(http.StatusServiceUnavailable, CodeRateLimitUnavailable, MessageRateLimitUnavailable)
		return true
	}
	decision.refuse(http.StatusTooManyRequests, CodeRateLimited, MessageRateLimited)
	return true
}

func authorized(user *rbac.User, rule Rule) bool {
	if rule.MinRole > rbac.RoleUser && !rbac.HasRole(user, rule.MinRole) {
		return false
	}
	if rule.Permission != "" && !rbac.HasPermission(user, rule.Permission) {
		return false
	}
	if rule.Resource != "" && !rbac.CanManageResource(user, rule.Resource, rule.Action) {
		return false
	}
	return true
}

func (g *Guard) deny(r *http.Request, user *rbac.User, rule Rule, decision Decision, eventType event.Type) Decision {
	g.observeDecision(decision)

	clientIP := ratelimit.ClientIP(r)
	g.opts.Logger.Info("request denied",
		"method", r.Method,
		"path", r.URL.Path,
		"status", decision.Status,
		"code", decision.Code,
		"rule", rule.label(),
		"client", ratelimit.TruncateKey(clientIP),
	)

	if g.opts.Bus != nil {
		actorID := ""
		if user != nil {
			actorID = user.ID
		}
		g.opts.Bus.Publish(event.New(eventType, actorID, event.Denial{
			Method:    r.Method,
			Path:      r.URL.Path,
			ClientIP:  clientIP,
			UserAgent: r.UserAgent(),
			Status:    decision.Status,
			Code:      decision.Code,
			Reason:    decision.Reason,
			Rule:      rule.label(),
		}))
	}
	return decision
}

func (g *Guard) observeDecision(decision Decision) {
	if g.opts.Metrics != nil {
		g.opts.Metrics.ObserveDecision(decision.Allowed, decision.Code)
	}
}
