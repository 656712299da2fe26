package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-request-guard/internal/config"
	"go-request-guard/internal/csrf"
	"go-request-guard/internal/database"
	"go-request-guard/internal/event"
	"go-request-guard/internal/fieldcrypt"
	"go-request-guard/internal/governance"
	"go-request-guard/internal/handler"
	"go-request-guard/internal/metrics"
	"go-request-guard/internal/middleware"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/repository"
	"go-request-guard/internal/router"
	"go-request-guard/internal/service"
	"go-request-guard/internal/validation"
	"go-request-guard/internal/websocket"
)

var Version = "dev"

const redisPingTimeout = 3 * time.Second

type App struct {
	server          *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
	cleanupFuncs    []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger, shutdownTimeout: cfg.ShutdownTimeout}
	fail := func(err error) (*App, error) {
		a.cleanup()
		return nil, err
	}

	registry := metrics.New()
	bus := event.NewBus(logger)
	healthChecks := map[string]handler.HealthCheck{}

	var storeFor func(name string) ratelimit.Store
	if cfg.RateLimitStore == config.RateLimitStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.onClose(func() { _ = client.Close() })

		pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Not fatal: limiters apply their failure policy until Redis is back.
			logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()

		storeFor = func(name string) ratelimit.Store {
			return ratelimit.NewRedisStore(client, ratelimit.DefaultRedisPrefix+name+":", nil)
		}
		healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	failure := ratelimit.FailClosed
	if cfg.RateLimitFailOpen {
		failure = ratelimit.FailOpen
	}
	limiters := buildLimiters(cfg.RateLimits, storeFor, failure, cfg.RateLimitCleanupInterval, logger)
	a.onClose(limiters.Close)

	csrfManager, err := csrf.NewManager([]byte(cfg.CSRFSecret), cfg.CSRFMaxAge)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize csrf protection: %w", err))
	}
	cipher, err := fieldcrypt.New([]byte(cfg.EncryptionKey))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize field encryption: %w", err))
	}

	var auditStore service.AuditStore
	if cfg.DatabaseURL != "" {
		db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		a.onClose(db.Close)

		if err := db.EnsureSchema(context.Background()); err != nil {
			return fail(fmt.Errorf("failed to ensure database schema: %w", err))
		}
		auditStore = repository.NewAuditRepository(db.Pool)
		healthChecks["database"] = db.Health
		logger.Info("audit log stored in PostgreSQL")
	} else {
		auditStore = repository.NewMemoryAuditRepository(cfg.AuditCapacity)
		logger.Info("audit log kept in memory", "capacity", cfg.AuditCapacity)
	}

	auditService := service.NewAuditService(auditStore, cipher, logger)
	auditService.Start(bus)
	a.onClose(auditService.Close)

	tokenService, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTIssuer)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token service: %w", err))
	}

	guard := governance.New(governance.Options{
		CSRF:            csrfManager,
		Limiters:        limiters.limiters,
		HeaderName:      cfg.CSRFHeader,
		CookieName:      cfg.CSRFCookie,
		SessionID:       sessionFromCookie(cfg.SessionCookie),
		StandardHeaders: true,
		LegacyHeaders:   cfg.RateLimitLegacyHeaders,
		SecureCookies:   cfg.CookieSecure,
		Bus:             bus,
		Logger:          logger,
		Metrics:         registry,
	})

	validator := validation.New(validation.Options{
		MaxFileSize:      cfg.MaxFileSize,
		AllowedMIMETypes: cfg.AllowedMIMETypes,
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub(bus, logger)
	go hub.Run(hubCtx)
	a.onClose(stopHub)

	records := repository.NewMemoryRecordRepository()
	recordHandler := func(resource string, schema string) *handler.RecordHandler {
		return handler.NewRecordHandler(handler.RecordHandlerOptions{
			Resource:  resource,
			Schema:    schema,
			Store:     records,
			Validator: validator,
			Bus:       bus,
			Observer:  registry,
			MaxBody:   cfg.MaxBodyBytes,
		})
	}

	appRouter := router.New(cfg, guard, middleware.NewAuthMiddleware(tokenService), router.Handlers{
		Health:   handler.NewHealthHandler(Version, healthChecks),
		Security: handler.NewSecurityHandler(guard),
		Validate: handler.NewValidateHandler(validator, registry, cfg.MaxBodyBytes),
		Records: []*handler.RecordHandler{
			recordHandler("customers", "customer"),
			recordHandler("appointments", "appointment"),
			recordHandler("media", "gallery-item"),
			recordHandler("payments", "payment"),
		},
		Upload:    handler.NewUploadHandler(validator, bus, registry),
		Analytics: handler.NewAnalyticsHandler(service.NewAnalyticsService(records), validator, registry),
		Audit:     handler.NewAuditHandler(auditService),
		Events:    handler.NewEventsHandler(hub, cfg.CORSOrigins, logger),
	}, router.Observability{
		Logger:   logger,
		Requests: registry,
		Metrics:  registry.Handler(),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadTimeout,
		ReadTimeout:       cfg.ServerReadTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until SIGINT or SIGTERM, then drains in-flight requests before
// releasing limiters, the audit pipeline, Redis and the database.
func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr, "version", Version)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-serveErr:
		if ok {
			a.cleanup()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-stop:
		a.logger.Info("shutdown requested", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	a.logger.Info("server stopped")
	return nil
}

func (a *App) Close() {
	a.cleanup()
}

func (a *App) onClose(fn func()) {
	a.cleanupFuncs = append(a.cleanupFuncs, fn)
}

// cleanup runs in reverse registration order, once.
func (a *App) cleanup() {
	funcs := a.cleanupFuncs
	a.cleanupFuncs = nil
	for i := len(funcs) - 1; i >= 0; i-- {
		funcs[i]()
	}
}

func sessionFromCookie(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		cookie, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return cookie.Value
	}
}
