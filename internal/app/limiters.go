package app

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"go-request-guard/internal/ratelimit"
)

type limiterSet struct {
	limiters map[string]ratelimit.Limiter
	closers  []io.Closer
}

func (s limiterSet) Close() {
	for _, closer := range s.closers {
		_ = closer.Close()
	}
}

// buildLimiters creates one limiter per preset. Counter presets use the store
// storeFor returns, so budgets hold across replicas when it is shared; a nil
// store means in-process counting. api_read and api_write slide per process
// and file_upload is a token bucket.
func buildLimiters(policies map[string]ratelimit.Policy, storeFor func(name string) ratelimit.Store, failure ratelimit.FailurePolicy, cleanup time.Duration, logger *slog.Logger) limiterSet {
	set := limiterSet{limiters: make(map[string]ratelimit.Limiter, len(policies))}

	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := ratelimit.Config{
			Name:            name,
			Policy:          policies[name],
			FailurePolicy:   failure,
			Logger:          logger,
			CleanupInterval: cleanup,
		}

		switch name {
		case ratelimit.PresetAPIRead, ratelimit.PresetAPIWrite:
			limiter := ratelimit.NewSlidingWindow(cfg)
			set.limiters[name] = limiter
			set.closers = append(set.closers, limiter)
		case ratelimit.PresetFileUpload:
			cfg.KeyGenerator = ratelimit.IPKey
			limiter := ratelimit.NewTokenBucket(cfg)
			set.limiters[name] = limiter
			set.closers = append(set.closers, limiter)
		default:
			if name == ratelimit.PresetAuthentication || name == ratelimit.PresetPasswordReset {
				cfg.KeyGenerator = ratelimit.IPKey
			}
			if storeFor != nil {
				cfg.Store = storeFor(name)
			}
			limiter := ratelimit.NewFixedWindow(cfg)
			set.limiters[name] = limiter
			set.closers = append(set.closers, limiter)
		}

		logger.Debug("rate limiter ready", "limiter", name, "policy", policies[name].String())
	}

	return set
}
