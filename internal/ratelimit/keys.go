package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"unicode"

	"go-request-guard/internal/sanitize"
)

const userAgentKeyLength = 50

// KeyGenerator derives the counter key for a request.
type KeyGenerator func(r *http.Request) string

// DefaultKey builds "ip:path:user-agent" with the user agent cut to 50
// characters. Every part is stripped of control characters so header values
// cannot smuggle line breaks into keys or logs.
func DefaultKey(r *http.Request) string {
	ip := sanitize.IP(ClientIP(r))
	if ip == "" {
		ip = "unknown"
	}

	path := ""
	if r.URL != nil {
		path = stripControl(r.URL.Path)
	}

	userAgent := sanitize.Truncate(sanitize.UserAgent(r.UserAgent()), userAgentKeyLength)

	return ip + ":" + path + ":" + userAgent
}

// IPKey keys on the client address alone, for budgets shared across routes.
func IPKey(r *http.Request) string {
	ip := sanitize.IP(ClientIP(r))
	if ip == "" {
		return "unknown"
	}
	return ip
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address. The value is not validated.
func ClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}

// TruncateKey shortens a key for logging so full addresses and user agents
// never reach the log sink.
func TruncateKey(key string) string {
	const visible = 8
	cleaned := stripControl(key)
	if len([]rune(cleaned)) <= visible {
		return cleaned
	}
	return sanitize.Truncate(cleaned, visible) + "..."
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
