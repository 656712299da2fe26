package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Info is the counter state after an increment.
type Info struct {
	TotalHits int
	ResetTime time.Time
}

// Store counts hits per key inside a window. Increment must be atomic for a
// key: concurrent callers never lose an update.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Info, error)
}

type Decrementer interface {
	Decrement(ctx context.Context, key string) error
}

type Resetter interface {
	ResetKey(ctx context.Context, key string) error
}

// Cleaner removes expired entries and reports how many were dropped.
type Cleaner interface {
	Clean(ctx context.Context) (int, error)
}

// FailurePolicy decides what a limiter answers when its store fails.
type FailurePolicy int

const (
	// FailOpen admits the request and marks the result as degraded.
	FailOpen FailurePolicy = iota
	// FailClosed refuses the request until the store recovers.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}
