package ratelimit

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TokenBucketLimiter gives each key a bucket of Capacity tokens refilled at
// RefillRate tokens per second. A request spends one token.
type TokenBucketLimiter struct {
	limiterBase
	capacity int
	refill   rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket
	janitor *janitor
}

func NewTokenBucket(cfg Config) *TokenBucketLimiter {
	base := newLimiterBase(cfg)

	capacity := base.cfg.Capacity
	if capacity <= 0 {
		capacity = base.cfg.Policy.MaxRequests
	}
	refill := base.cfg.RefillRate
	if refill <= 0 && base.cfg.Policy.Window > 0 {
		refill = float64(base.cfg.Policy.MaxRequests) / base.cfg.Policy.Window.Seconds()
	}

	interval := base.cfg.CleanupInterval
	if interval == 0 {
		interval = DefaultCleanupInterval
	}

	limiter := &TokenBucketLimiter{
		limiterBase: base,
		capacity:    capacity,
		refill:      rate.Limit(refill),
		buckets:     map[string]*bucket{},
	}
	limiter.janitor = startJanitor(interval, func() {
		limiter.Clean(context.Background())
	})

	return limiter
}

func (l *TokenBucketLimiter) Check(_ context.Context, r *http.Request) Result {
	if l.skipped(r) {
		return l.skipResult()
	}

	key := l.cfg.KeyGenerator(r)
	now := l.cfg.Clock()

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.refill, l.capacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	var retryAfter time.Duration
	if !allowed {
		reservation := b.limiter.ReserveN(now, 1)
		if reservation.OK() {
			retryAfter = reservation.DelayFrom(now)
			reservation.CancelAt(now)
		}
	}
	l.mu.Unlock()

	resetAfter := l.timeToFull(tokens)
	result := Result{
		Allowed:    allowed,
		Limit:      l.capacity,
		Remaining:  max(int(math.Floor(tokens)), 0),
		ResetTime:  now.Add(resetAfter),
		ResetAfter: resetAfter,
	}
	if !allowed {
		result.RetryAfter = retryAfter
		l.exceeded(r, key, result)
	}

	return result
}

func (l *TokenBucketLimiter) timeToFull(tokens float64) time.Duration {
	missing := float64(l.capacity) - tokens
	if missing <= 0 || l.refill <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.refill) * float64(time.Second))
}

func (l *TokenBucketLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

// Clean drops buckets that have refilled completely since their last use.
func (l *TokenBucketLimiter) Clean(_ context.Context) (int, error) {
	now := l.cfg.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.limiter.TokensAt(now) >= float64(l.capacity) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed, nil
}

func (l *TokenBucketLimiter) Close() error {
	l.janitor.stop()
	return nil
}
