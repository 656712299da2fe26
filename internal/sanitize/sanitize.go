package sanitize

import (
	"html"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxStringLength      = 10000
	MaxEmailLength       = 254
	MaxFilenameLength    = 255
	MaxSearchQueryLength = 200
	MaxUserAgentLength   = 500
	MaxSQLLength         = 1000
	MaxURLLength         = 2048
	MaxPhoneLength       = 20
	MaxKeyLength         = 100
)

var (
	scriptBlockPattern  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	dangerousScheme     = regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	sqlCommentPattern   = regexp.MustCompile(`--|/\*|\*/`)
	sqlExtendedProc     = regexp.MustCompile(`(?i)xp_`)
	emailDisallowed     = regexp.MustCompile(`[^a-z0-9@._+\-]`)
	phoneDisallowed     = regexp.MustCompile(`[^0-9+ \-()]`)
	filenameDisallowed  = regexp.MustCompile(`[^A-Za-z0-9._\-]`)
	dotRun              = regexp.MustCompile(`\.{2,}`)
	searchDisallowed    = regexp.MustCompile(`["'%;()&+]`)
)

var htmlPolicy = newHTMLPolicy()

func newHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("b", "i", "em", "strong", "u", "p", "br", "ul", "ol", "li", "blockquote", "code", "pre")
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowURLSchemes("http", "https")
	policy.RequireNoFollowOnLinks(true)
	policy.RequireParseableURLs(true)
	return policy
}

var windowsReservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Value coerces an untrusted value to a string. Anything that is not a
// string, including nil, becomes the empty string.
func Value(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// String normalizes general free text. The result is stable: feeding it back
// through String returns it unchanged.
func String(s string) string {
	if s == "" {
		return ""
	}

	cleaned := Truncate(s, MaxStringLength)
	for {
		next := stripOnce(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}

	return strings.TrimSpace(cleaned)
}

func stripOnce(s string) string {
	s = stripInvisible(s, true)
	s = scriptBlockPattern.ReplaceAllString(s, "")
	s = strings.NewReplacer("<", "", ">", "").Replace(s)
	s = dangerousScheme.ReplaceAllString(s, "")
	s = eventHandlerPattern.ReplaceAllString(s, "")
	return s
}

// HTML keeps a small set of formatting tags and http(s) links and drops
// everything else, including script and style content.
func HTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(htmlPolicy.Sanitize(Truncate(stripInvisible(s, true), MaxStringLength)))
}

func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

func Email(s string) string {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = emailDisallowed.ReplaceAllString(cleaned, "")
	cleaned = Truncate(cleaned, MaxEmailLength)
	if strings.Count(cleaned, "@") != 1 || strings.HasPrefix(cleaned, "@") || strings.HasSuffix(cleaned, "@") {
		return ""
	}
	return cleaned
}

func Phone(s string) string {
	cleaned := phoneDisallowed.ReplaceAllString(strings.TrimSpace(s), "")
	international := strings.HasPrefix(cleaned, "+")
	cleaned = strings.ReplaceAll(cleaned, "+", "")
	if international {
		cleaned = "+" + cleaned
	}
	return strings.TrimSpace(Truncate(cleaned, MaxPhoneLength))
}

// Filename reduces a client supplied name to a flat, portable file name.
// Path separators become underscores and dot runs collapse so the result can
// never address a parent directory.
func Filename(s string) string {
	cleaned := stripInvisible(strings.TrimSpace(s), false)
	cleaned = filenameDisallowed.ReplaceAllString(cleaned, "_")
	cleaned = dotRun.ReplaceAllString(cleaned, ".")
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return ""
	}

	stem := cleaned
	if idx := strings.Index(cleaned, "."); idx >= 0 {
		stem = cleaned[:idx]
	}
	if _, reserved := windowsReservedNames[strings.ToUpper(stem)]; reserved {
		cleaned = "_" + cleaned
	}

	return Truncate(cleaned, MaxFilenameLength)
}

func URL(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || len(trimmed) > MaxURLLength || hasControl(trimmed) {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if parsed.Host == "" || strings.ContainsAny(parsed.Host, "<>\"'") {
		return ""
	}

	return parsed.String()
}

func SQL(s string) string {
	cleaned := stripInvisible(s, false)
	for {
		next := sqlCommentPattern.ReplaceAllString(cleaned, "")
		next = sqlExtendedProc.ReplaceAllString(next, "")
		next = strings.NewReplacer("'", "", `"`, "", ";", "", `\`, "").Replace(next)
		if next == cleaned {
			break
		}
		cleaned = next
	}
	return strings.TrimSpace(Truncate(cleaned, MaxSQLLength))
}

func SearchQuery(s string) string {
	cleaned := searchDisallowed.ReplaceAllString(String(s), "")
	return strings.TrimSpace(Truncate(cleaned, MaxSearchQueryLength))
}

// IP returns the address when it is a well-formed IPv4 or IPv6 literal and
// the empty string otherwise. IPv4 input is returned unchanged; IPv6 input is
// returned in canonical form.
func IP(s string) string {
	if s == "" || len(s) > 45 || hasControl(s) || strings.ContainsAny(s, "<>%[] ") {
		return ""
	}

	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" {
		return ""
	}

	if addr.Is4() {
		return s
	}

	return addr.String()
}

func UserAgent(s string) string {
	cleaned := stripInvisible(s, false)
	cleaned = strings.NewReplacer("<", "", ">", "").Replace(cleaned)
	return strings.TrimSpace(Truncate(cleaned, MaxUserAgentLength))
}

// Truncate cuts s to at most n runes without splitting multi-byte characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}

	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}

	return s
}

// stripInvisible drops control characters and zero-width or formatting code
// points. keepLayout preserves newlines and tabs.
func stripInvisible(s string, keepLayout bool) string {
	if s == "" {
		return s
	}

	builder := strings.Builder{}
	builder.Grow(len(s))

	for _, char := range s {
		if keepLayout && (char == '\n' || char == '\t') {
			builder.WriteRune(char)
			continue
		}
		if unicode.IsControl(char) || isInvisibleUnicode(char) || char == unicode.ReplacementChar {
			continue
		}
		builder.WriteRune(char)
	}

	return builder.String()
}

func hasControl(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}

func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', '\uFFFA', '\uFFFB':
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
