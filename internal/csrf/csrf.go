package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxAge     = time.Hour
	DefaultHeaderName = "X-CSRF-Token"
	DefaultCookieName = "csrf_token"

	MinSecretLength = 32
	randomBytes     = 32
)

const (
	MessageRequired = "CSRF token required for this request"
	MessageFormat   = "Invalid CSRF token format"
	MessageInvalid  = "Invalid CSRF token"
	MessageExpired  = "CSRF token expired"
)

var ErrSecretTooShort = fmt.Errorf("csrf secret must be at least %d bytes", MinSecretLength)

// Token is a freshly issued token and the moment it stops being accepted.
type Token struct {
	Value   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Validation is the outcome of checking a submitted token. Expired is only
// reported for tokens whose signature is authentic.
type Validation struct {
	Valid   bool   `json:"valid"`
	Expired bool   `json:"expired,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Option func(*Manager)

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// Manager issues and verifies signed, expiring CSRF tokens bound to a
// session identifier. Tokens have the form random.timestamp.signature where
// signature = HMAC-SHA256(secret, random:timestamp:sessionID).
type Manager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewManager(secret []byte, maxAge time.Duration, opts ...Option) (*Manager, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	manager := &Manager{
		secret: append([]byte(nil), secret...),
		maxAge: maxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(manager)
	}

	return manager, nil
}

func (m *Manager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *Manager) Generate(sessionID string) (Token, error) {
	random := make([]byte, randomBytes)
	if _, err := rand.Read(random); err != nil {
		return Token{}, fmt.Errorf("generate csrf token: %w", err)
	}

	issued := m.now()
	randomHex := hex.EncodeToString(random)
	timestamp := strconv.FormatInt(issued.UnixMilli(), 10)
	signature := hex.EncodeToString(m.sign(randomHex, timestamp, sessionID))

	return Token{
		Value:   randomHex + "." + timestamp + "." + signature,
		Expires: issued.Truncate(time.Millisecond).Add(m.maxAge),
	}, nil
}

func (m *Manager) Validate(token string, sessionID string) Validation {
	token = strings.TrimSpace(token)
	if token == "" {
		return Validation{Error: MessageRequired}
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Validation{Error: MessageFormat}
	}
	randomHex, timestamp, signatureHex := parts[0], parts[1], parts[2]

	random, err := hex.DecodeString(randomHex)
	if err != nil || len(random) != randomBytes {
		return Validation{Error: MessageFormat}
	}
	issuedMillis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || issuedMillis <= 0 {
		return Validation{Error: MessageFormat}
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != sha256.Size {
		return Validation{Error: MessageFormat}
	}

	if !hmac.Equal(signature, m.sign(randomHex, timestamp, sessionID)) {
		return Validation{Error: MessageInvalid}
	}

	expires := time.UnixMilli(issuedMillis).Add(m.maxAge)
	if m.now().After(expires) {
		return Validation{Expired: true, Error: MessageExpired}
	}

	return Validation{Valid: true}
}

func (m *Manager) sign(randomHex string, timestamp string, sessionID string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(randomHex))
	_, _ = mac.Write([]byte{':'})
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{':'})
	_, _ = mac.Write([]byte(sessionID))
	return mac.Sum(nil)
}

// IsSafeMethod reports whether method skips token validation.
func IsSafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ErrorFor maps a failed validation to an error value for callers that want
// one.
func ErrorFor(v Validation) error {
	if v.Valid {
		return nil
	}
	if v.Expired {
		return ErrExpired
	}
	switch v.Error {
	case MessageRequired:
		return ErrMissing
	case MessageFormat:
		return ErrMalformed
	default:
		return ErrMismatch
	}
}

var (
	ErrMissing   = errors.New(MessageRequired)
	ErrMalformed = errors.New(MessageFormat)
	ErrMismatch  = errors.New(MessageInvalid)
	ErrExpired   = errors.New(MessageExpired)
)
