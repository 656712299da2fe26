package ratelimit

import (
	"context"
	"net/http"
)

// FixedWindowLimiter counts hits per key in windows that restart once the
// previous one has expired.
type FixedWindowLimiter struct {
	limiterBase
	store     Store
	ownsStore bool
}

func NewFixedWindow(cfg Config) *FixedWindowLimiter {
	base := newLimiterBase(cfg)

	store := base.cfg.Store
	owns := false
	if store == nil {
		store = NewMemoryStore(base.cfg.CleanupInterval, base.cfg.Clock)
		owns = true
	}

	return &FixedWindowLimiter{limiterBase: base, store: store, ownsStore: owns}
}

func (l *FixedWindowLimiter) Check(ctx context.Context, r *http.Request) Result {
	if l.skipped(r) {
		return l.skipResult()
	}

	key := l.cfg.KeyGenerator(r)
	now := l.cfg.Clock()

	info, err := l.store.Increment(ctx, key, l.cfg.Policy.Window)
	if err != nil {
		return l.degraded(key, now, err)
	}

	limit := l.cfg.Policy.MaxRequests
	result := Result{
		Allowed:    info.TotalHits <= limit,
		Limit:      limit,
		Remaining:  max(limit-info.TotalHits, 0),
		ResetTime:  info.ResetTime,
		ResetAfter: max(info.ResetTime.Sub(now), 0),
	}
	if !result.Allowed {
		result.RetryAfter = result.ResetAfter
		l.exceeded(r, key, result)
	}

	return result
}

// Undo gives back the hit counted for r when the store supports it, for
// callers that only want to count failed attempts.
func (l *FixedWindowLimiter) Undo(ctx context.Context, r *http.Request) error {
	decrementer, ok := l.store.(Decrementer)
	if !ok {
		return nil
	}
	return decrementer.Decrement(ctx, l.cfg.KeyGenerator(r))
}

func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	resetter, ok := l.store.(Resetter)
	if !ok {
		return nil
	}
	return resetter.ResetKey(ctx, key)
}

// Close stops the store's sweep when the limiter created the store itself.
func (l *FixedWindowLimiter) Close() error {
	if !l.ownsStore {
		return nil
	}
	if closer, ok := l.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
