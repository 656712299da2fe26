package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Limiter decides whether a request fits its budget. Check never fails: store
// problems are folded into the Result by the configured FailurePolicy.
type Limiter interface {
	Check(ctx context.Context, r *http.Request) Result
}

type Config struct {
	Name          string
	Policy        Policy
	KeyGenerator  KeyGenerator
	Skip          func(r *http.Request) bool
	FailurePolicy FailurePolicy
	Clock         func() time.Time
	Logger        *slog.Logger
	// OnLimitReached runs after a request is refused.
	OnLimitReached func(r *http.Request, result Result)

	// Store backs the fixed window limiter. Nil uses a MemoryStore.
	Store Store
	// Granularity is the sliding window bucket width. Defaults to one minute
	// and never exceeds Policy.Window.
	Granularity time.Duration
	// Capacity and RefillRate configure the token bucket. They default to
	// Policy.MaxRequests and MaxRequests per Window.
	Capacity   int
	RefillRate float64

	CleanupInterval time.Duration
}

type limiterBase struct {
	cfg Config
}

func newLimiterBase(cfg Config) limiterBase {
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKey
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Policy.String()
	}
	return limiterBase{cfg: cfg}
}

func (b *limiterBase) Policy() Policy {
	return b.cfg.Policy
}

func (b *limiterBase) Name() string {
	return b.cfg.Name
}

func (b *limiterBase) skipped(r *http.Request) bool {
	return b.cfg.Skip != nil && b.cfg.Skip(r)
}

func (b *limiterBase) skipResult() Result {
	return Result{Allowed: true, Limit: b.cfg.Policy.MaxRequests, Remaining: b.cfg.Policy.MaxRequests, Skipped: true}
}

// degraded applies the failure policy after a store error.
func (b *limiterBase) degraded(key string, now time.Time, err error) Result {
	b.cfg.Logger.Warn("rate limit store failed",
		"limiter", b.cfg.Name,
		"key", TruncateKey(key),
		"policy", b.cfg.FailurePolicy.String(),
		"error", err,
	)

	result := Result{
		Limit:      b.cfg.Policy.MaxRequests,
		ResetTime:  now.Add(b.cfg.Policy.Window),
		ResetAfter: b.cfg.Policy.Window,
		Degraded:   true,
	}
	if b.cfg.FailurePolicy == FailClosed {
		result.RetryAfter = b.cfg.Policy.Window
		return result
	}

	result.Allowed = true
	result.Remaining = b.cfg.Policy.MaxRequests
	return result
}

func (b *limiterBase) exceeded(r *http.Request, key string, result Result) {
	b.cfg.Logger.Warn("rate limit exceeded",
		"limiter", b.cfg.Name,
		"key", TruncateKey(key),
		"limit", result.Limit,
		"retry_after", result.RetryAfter.String(),
	)
	if b.cfg.OnLimitReached != nil {
		b.cfg.OnLimitReached(r, result)
	}
}
