package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-guard/internal/ratelimit"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt-secret-for-config-tests-0123456789")
	t.Setenv("CSRF_SECRET", "csrf-secret-for-config-tests-0123456789")
	t.Setenv("ENCRYPTION_KEY", "encryption-key-for-config-tests-012345")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, RateLimitStoreMemory, cfg.RateLimitStore)
	assert.True(t, cfg.RateLimitFailOpen)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, ratelimit.DefaultPresets(), cfg.RateLimits)
}

func TestLoadRateLimitOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT_AUTHENTICATION", "3/10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Policy{Window: 10 * time.Minute, MaxRequests: 3}, cfg.RateLimits[ratelimit.PresetAuthentication])
	assert.Equal(t, 10, cfg.RateLimits[ratelimit.PresetAPIWrite].MaxRequests)
}

func TestLoadRejectsBadRateLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT_API_WRITE", "ten per minute")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_API_WRITE")
}

func TestProductionDefaultsToSecureCookies(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.CookieSecure)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWTSecret:      "jwt-secret-for-config-tests-0123456789",
			CSRFSecret:     "csrf-secret-for-config-tests-0123456789",
			EncryptionKey:  "encryption-key-for-config-tests-012345",
			ServerPort:     "8080",
			RequestTimeout: time.Second,
			CSRFMaxAge:     time.Hour,
			LogFormat:      "json",
			RateLimitStore: RateLimitStoreMemory,
			RateLimits:     ratelimit.DefaultPresets(),
			MaxFileSize:    1024,
			MaxBodyBytes:   1024,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing jwt secret", mutate: func(c *Config) { c.JWTSecret = "" }},
		{name: "short csrf secret", mutate: func(c *Config) { c.CSRFSecret = "short" }},
		{name: "short encryption key", mutate: func(c *Config) { c.EncryptionKey = "short" }},
		{name: "unknown store", mutate: func(c *Config) { c.RateLimitStore = "memcached" }},
		{name: "redis without address", mutate: func(c *Config) { c.RateLimitStore = RateLimitStoreRedis; c.RedisAddr = "" }},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "zero policy", mutate: func(c *Config) { c.RateLimits["public"] = ratelimit.Policy{Window: time.Minute} }},
		{name: "bad pool bounds", mutate: func(c *Config) { c.DatabaseURL = "postgres://x"; c.DBMaxConns = 1; c.DBMinConns = 2 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
