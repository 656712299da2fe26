package sanitize

import (
	"regexp"
	"strings"
)

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)\b(union|select|insert|update|delete|drop|alter|exec|execute|truncate)\b.*(--|#|/\*)`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+['\d]+\s*=\s*['\d]+`),
	regexp.MustCompile(`\.\./|\.\.\\`),
	regexp.MustCompile(`(?i)%2e%2e(%2f|%5c|/|\\)`),
	regexp.MustCompile(`(?i)%00`),
}

// ContainsSuspiciousPatterns reports whether s looks like an injection or
// traversal attempt. It backs up schema validation and is not a filter on
// its own.
func ContainsSuspiciousPatterns(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsRune(s, 0) {
		return true
	}

	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}

	return false
}
