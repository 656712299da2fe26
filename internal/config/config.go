package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"go-request-guard/internal/csrf"
	"go-request-guard/internal/fieldcrypt"
	"go-request-guard/internal/ratelimit"
	"go-request-guard/internal/validation"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type Config struct {
	AppEnv             string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	LogFormat          string
	LogLevel           string

	JWTSecret    string
	JWTAccessTTL time.Duration
	JWTIssuer    string

	CSRFSecret    string
	CSRFMaxAge    time.Duration
	CSRFHeader    string
	CSRFCookie    string
	SessionCookie string
	CookieSecure  bool

	EncryptionKey string
	CORSOrigins   []string

	RateLimitStore           string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	RateLimitFailOpen        bool
	RateLimitLegacyHeaders   bool
	RateLimitCleanupInterval time.Duration
	RateLimits               map[string]ratelimit.Policy

	MaxFileSize      int64
	MaxBodyBytes     int64
	AllowedMIMETypes []string

	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	AuditCapacity int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             strings.ToLower(getEnv("APP_ENV", EnvDevelopment)),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),

		JWTSecret:    strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL: getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTIssuer:    strings.TrimSpace(os.Getenv("JWT_ISSUER")),

		CSRFSecret:    strings.TrimSpace(os.Getenv("CSRF_SECRET")),
		CSRFMaxAge:    getDuration("CSRF_MAX_AGE", csrf.DefaultMaxAge),
		CSRFHeader:    getEnv("CSRF_HEADER", csrf.DefaultHeaderName),
		CSRFCookie:    getEnv("CSRF_COOKIE", csrf.DefaultCookieName),
		SessionCookie: getEnv("SESSION_COOKIE", "session_id"),

		EncryptionKey: strings.TrimSpace(os.Getenv("ENCRYPTION_KEY")),
		CORSOrigins:   splitCSV(getEnv("CORS_ORIGINS", "*")),

		RateLimitStore:           strings.ToLower(getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory)),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  getInt("REDIS_DB", 0),
		RateLimitFailOpen:        getBool("RATE_LIMIT_FAIL_OPEN", true),
		RateLimitLegacyHeaders:   getBool("RATE_LIMIT_LEGACY_HEADERS", false),
		RateLimitCleanupInterval: getDuration("RATE_LIMIT_CLEANUP_INTERVAL", time.Minute),

		MaxFileSize:      getInt64("MAX_FILE_SIZE", validation.DefaultMaxFileSize),
		MaxBodyBytes:     getInt64("MAX_BODY_BYTES", 1<<20),
		AllowedMIMETypes: splitCSV(strings.TrimSpace(os.Getenv("ALLOWED_MIME_TYPES"))),

		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:    int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:    int32(getInt("DB_MIN_CONNS", 1)),
		AuditCapacity: getInt("AUDIT_CAPACITY", 1000),
	}
	cfg.CookieSecure = getBool("COOKIE_SECURE", cfg.IsProduction())

	rateLimits, err := loadRateLimits()
	if err != nil {
		return nil, err
	}
	cfg.RateLimits = rateLimits

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.CSRFSecret) < csrf.MinSecretLength {
		return fmt.Errorf("CSRF_SECRET must be at least %d characters", csrf.MinSecretLength)
	}

	if len(c.EncryptionKey) < fieldcrypt.MinKeyLength {
		return fmt.Errorf("ENCRYPTION_KEY must be at least %d characters", fieldcrypt.MinKeyLength)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.CSRFMaxAge <= 0 {
		return fmt.Errorf("CSRF_MAX_AGE must be positive")
	}

	switch c.LogFormat {
	case "pretty", "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty, json or text, got %q", c.LogFormat)
	}

	switch c.RateLimitStore {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_STORE must be memory or redis, got %q", c.RateLimitStore)
	}

	for name, policy := range c.RateLimits {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("RATE_LIMIT_%s: %w", strings.ToUpper(name), err)
		}
	}

	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	if c.DatabaseURL != "" && (c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("DB_MIN_CONNS and DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0")
	}

	return nil
}

// loadRateLimits starts from the built-in presets and applies any
// RATE_LIMIT_<PRESET>=N/duration override.
func loadRateLimits() (map[string]ratelimit.Policy, error) {
	policies := ratelimit.DefaultPresets()
	for name := range policies {
		key := "RATE_LIMIT_" + strings.ToUpper(name)
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		policy, err := ratelimit.ParsePolicy(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		policies[name] = policy
	}
	return policies, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
