package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-request-guard/internal/config"
	"go-request-guard/internal/governance"
	"go-request-guard/internal/handler"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/rbac"
)

type Handlers struct {
	Health    *handler.HealthHandler
	Security  *handler.SecurityHandler
	Validate  *handler.ValidateHandler
	Records   []*handler.RecordHandler
	Upload    *handler.UploadHandler
	Analytics *handler.AnalyticsHandler
	Audit     *handler.AuditHandler
	Events    *handler.EventsHandler
}

type Observability struct {
	Logger   *slog.Logger
	Requests middleware.RequestObserver
	Metrics  http.Handler
}

func New(
	cfg *config.Config,
	guard *governance.Guard,
	authMiddleware *middleware.AuthMiddleware,
	handlers Handlers,
	obs Observability,
) http.Handler {
	r := chi.NewRouter()
	guarded := func(rule governance.Rule) func(http.Handler) http.Handler {
		return middleware.Governance(guard, rule)
	}

	r.Use(middleware.Recovery(obs.Logger))
	r.Use(middleware.Logging(obs.Logger))
	r.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(middleware.CORS(cfg.CORSOrigins, cfg.CSRFHeader))
	if obs.Requests != nil {
		r.Use(middleware.Metrics(obs.Requests))
	}
	r.Use(authMiddleware.Authenticate)

	public := governance.Rule{Name: "health", RateLimit: ratelimit.PresetPublic, SkipCSRF: true}
	r.With(guarded(public)).Get("/health", handlers.Health.Health)
	if obs.Metrics != nil {
		r.With(guarded(governance.Rule{Name: "metrics", RateLimit: ratelimit.PresetPublic, SkipCSRF: true})).Handle("/metrics", obs.Metrics)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.With(guarded(governance.Rule{Name: "csrf.token", RateLimit: ratelimit.PresetPublic})).
			Get("/csrf-token", handlers.Security.CSRFToken)
		api.With(guarded(governance.Rule{Name: "me", RateLimit: ratelimit.PresetAPIRead, RequireAuth: true})).
			Get("/me", handlers.Security.Me)

		api.With(guarded(governance.Rule{Name: "validate.login", RateLimit: ratelimit.PresetAuthentication})).
			Post("/validate/login", handlers.Validate.Schema("login"))
		api.With(guarded(governance.Rule{Name: "validate.signup", RateLimit: ratelimit.PresetAuthentication})).
			Post("/validate/signup", handlers.Validate.Schema("signup"))
		api.With(guarded(governance.Rule{Name: "validate", RateLimit: ratelimit.PresetAPIWrite})).
			Post("/validate/{schema}", handlers.Validate.Validate)
	})

	r.Route("/api/admin", func(admin chi.Router) {
		admin.Use(middleware.Timeout(cfg.RequestTimeout))

		uploads := func(media chi.Router) {
			media.With(guarded(governance.Rule{
				Name:      "media.upload",
				RateLimit: ratelimit.PresetFileUpload,
				Resource:  "media",
				Action:    rbac.ActionCreate,
			})).Post("/uploads", handlers.Upload.Upload)
		}

		for _, records := range handlers.Records {
			if records.Resource() == "media" {
				mountRecords(admin, guarded, records, uploads)
				continue
			}
			mountRecords(admin, guarded, records, nil)
		}

		admin.With(guarded(governance.Rule{
			Name:       "analytics",
			RateLimit:  ratelimit.PresetAPIRead,
			Permission: rbac.ReadAnalytics,
		})).Get("/analytics", handlers.Analytics.Report)

		admin.With(guarded(governance.Rule{
			Name:       "audit.list",
			RateLimit:  ratelimit.PresetAPIRead,
			Permission: rbac.ViewAuditLogs,
		})).Get("/audit", handlers.Audit.List)

		admin.With(guarded(governance.Rule{
			Name:       "events.stream",
			RateLimit:  ratelimit.PresetAPIRead,
			Permission: rbac.ViewAuditLogs,
			SkipCSRF:   true,
		})).Get("/events", handlers.Events.Stream)
	})

	return r
}

// mountRecords wires the CRUD routes of one resource. Resources missing from
// the RBAC table fall back to admin access.
func mountRecords(r chi.Router, guarded func(governance.Rule) func(http.Handler) http.Handler, h *handler.RecordHandler, extra func(chi.Router)) {
	resource := h.Resource()
	rule := func(action rbac.Action, preset string) governance.Rule {
		return governance.Rule{
			Name:      resource + "." + string(action),
			RateLimit: preset,
			Resource:  resource,
			Action:    action,
		}
	}

	r.Route("/"+resource, func(sub chi.Router) {
		if extra != nil {
			extra(sub)
		}
		sub.With(guarded(rule(rbac.ActionRead, ratelimit.PresetAPIRead))).Get("/", h.List)
		sub.With(guarded(rule(rbac.ActionCreate, ratelimit.PresetAPIWrite))).Post("/", h.Create)
		sub.With(guarded(rule(rbac.ActionRead, ratelimit.PresetAPIRead))).Get("/{id}", h.Get)
		sub.With(guarded(rule(rbac.ActionUpdate, ratelimit.PresetAPIWrite))).Put("/{id}", h.Update)
		sub.With(guarded(rule(rbac.ActionDelete, ratelimit.PresetAPIWrite))).Delete("/{id}", h.Delete)
	})
}
