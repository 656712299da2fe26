package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	PresetAuthentication = "authentication"
	PresetAPIWrite       = "api_write"
	PresetAPIRead        = "api_read"
	PresetPublic         = "public"
	PresetFileUpload     = "file_upload"
	PresetPasswordReset  = "password_reset"
)

// Policy is a request budget: at most MaxRequests per Window.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.MaxRequests, p.Window)
}

func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("rate limit must allow at least one request, got %d", p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", p.Window)
	}
	return nil
}

// ParsePolicy reads "N/duration", e.g. "5/15m" or "100/1m".
func ParsePolicy(raw string) (Policy, error) {
	count, window, found := strings.Cut(strings.TrimSpace(raw), "/")
	if !found {
		return Policy{}, fmt.Errorf("invalid rate limit %q: expected N/duration", raw)
	}

	maxRequests, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return Policy{}, fmt.Errorf("invalid rate limit %q: %w", raw, err)
	}

	duration, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil {
		return Policy{}, fmt.Errorf("invalid rate limit %q: %w", raw, err)
	}

	policy := Policy{Window: duration, MaxRequests: maxRequests}
	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// DefaultPresets returns a fresh copy of the built-in budgets.
func DefaultPresets() map[string]Policy {
	return map[string]Policy{
		PresetAuthentication: {Window: 15 * time.Minute, MaxRequests: 5},
		PresetAPIWrite:       {Window: time.Minute, MaxRequests: 10},
		PresetAPIRead:        {Window: time.Minute, MaxRequests: 100},
		PresetPublic:         {Window: time.Minute, MaxRequests: 200},
		PresetFileUpload:     {Window: 10 * time.Minute, MaxRequests: 3},
		PresetPasswordReset:  {Window: time.Hour, MaxRequests: 3},
	}
}
