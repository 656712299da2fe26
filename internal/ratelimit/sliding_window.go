package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const DefaultGranularity = time.Minute

type slidingBucket struct {
	start time.Time
	hits  int
}

type slidingWindow struct {
	// buckets are ordered oldest first. Each one opens at its first hit and
	// leaves the window at start+Window.
	buckets []slidingBucket
}

// SlidingWindowLimiter sums per-key sub-window buckets over the trailing
// window. Buckets are anchored to the key's own traffic, not to the wall
// clock, so a burst straddling a minute boundary still counts as one.
// Only admitted requests are counted.
type SlidingWindowLimiter struct {
	limiterBase
	granularity time.Duration

	mu      sync.Mutex
	windows map[string]*slidingWindow
	janitor *janitor
}

func NewSlidingWindow(cfg Config) *SlidingWindowLimiter {
	base := newLimiterBase(cfg)

	granularity := base.cfg.Granularity
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	if window := base.cfg.Policy.Window; window > 0 && granularity > window {
		granularity = window
	}

	interval := base.cfg.CleanupInterval
	if interval == 0 {
		interval = DefaultCleanupInterval
	}

	limiter := &SlidingWindowLimiter{
		limiterBase: base,
		granularity: granularity,
		windows:     map[string]*slidingWindow{},
	}
	limiter.janitor = startJanitor(interval, func() {
		limiter.Clean(context.Background())
	})

	return limiter
}

func (l *SlidingWindowLimiter) Check(_ context.Context, r *http.Request) Result {
	if l.skipped(r) {
		return l.skipResult()
	}

	key := l.cfg.KeyGenerator(r)
	now := l.cfg.Clock()
	limit := l.cfg.Policy.MaxRequests

	l.mu.Lock()
	window, exists := l.windows[key]
	if !exists {
		window = &slidingWindow{}
		l.windows[key] = window
	}

	total := l.prune(window, now)
	allowed := total < limit
	if allowed {
		l.record(window, now)
		total++
	}
	resetTime := l.oldestExpiry(window, now)
	l.mu.Unlock()

	result := Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  max(limit-total, 0),
		ResetTime:  resetTime,
		ResetAfter: max(resetTime.Sub(now), 0),
	}
	if !allowed {
		result.RetryAfter = result.ResetAfter
		l.exceeded(r, key, result)
	}

	return result
}

// record counts one admitted hit, opening a new bucket once the newest one
// is granularity old. Caller holds l.mu.
func (l *SlidingWindowLimiter) record(window *slidingWindow, now time.Time) {
	if n := len(window.buckets); n > 0 && now.Sub(window.buckets[n-1].start) < l.granularity {
		window.buckets[n-1].hits++
		return
	}
	window.buckets = append(window.buckets, slidingBucket{start: now, hits: 1})
}

// prune drops buckets whose start+Window is not after now and returns the
// sum of the rest. Caller holds l.mu.
func (l *SlidingWindowLimiter) prune(window *slidingWindow, now time.Time) int {
	expired := 0
	for expired < len(window.buckets) && !window.buckets[expired].start.Add(l.cfg.Policy.Window).After(now) {
		expired++
	}
	window.buckets = window.buckets[expired:]

	total := 0
	for _, bucket := range window.buckets {
		total += bucket.hits
	}
	return total
}

// oldestExpiry is when the oldest live bucket leaves the window, which is the
// earliest moment capacity comes back. Caller holds l.mu.
func (l *SlidingWindowLimiter) oldestExpiry(window *slidingWindow, now time.Time) time.Time {
	if len(window.buckets) == 0 {
		return now.Add(l.cfg.Policy.Window)
	}
	return window.buckets[0].start.Add(l.cfg.Policy.Window)
}

func (l *SlidingWindowLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	return nil
}

// Clean drops keys with no bucket left inside the window.
func (l *SlidingWindowLimiter) Clean(_ context.Context) (int, error) {
	now := l.cfg.Clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, window := range l.windows {
		if l.prune(window, now) == 0 {
			delete(l.windows, key)
			removed++
		}
	}
	return removed, nil
}

func (l *SlidingWindowLimiter) Close() error {
	l.janitor.stop()
	return nil
}
