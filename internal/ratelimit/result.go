package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Result is the outcome of one limiter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
	// ResetAfter is ResetTime relative to the moment of the check.
	ResetAfter time.Duration
	// RetryAfter is only set when the request was refused.
	RetryAfter time.Duration
	// Degraded marks a result produced by the failure policy because the
	// store could not be reached.
	Degraded bool
	Skipped  bool
}

// Headers renders the result as response headers. standard emits the
// RateLimit-* set, legacy the X-RateLimit-* mirrors. Retry-After is only
// present on refusals.
func (r Result) Headers(standard bool, legacy bool) http.Header {
	header := http.Header{}
	if r.Skipped {
		return header
	}

	limit := strconv.Itoa(r.Limit)
	remaining := strconv.Itoa(max(r.Remaining, 0))

	if standard {
		header.Set("RateLimit-Limit", limit)
		header.Set("RateLimit-Remaining", remaining)
		header.Set("RateLimit-Reset", strconv.FormatInt(ceilSeconds(r.ResetAfter), 10))
	}
	if legacy {
		header.Set("X-RateLimit-Limit", limit)
		header.Set("X-RateLimit-Remaining", remaining)
		header.Set("X-RateLimit-Reset", strconv.FormatInt(r.ResetTime.Unix(), 10))
	}
	if !r.Allowed {
		header.Set("Retry-After", strconv.FormatInt(max(ceilSeconds(r.RetryAfter), 1), 10))
	}

	return header
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
