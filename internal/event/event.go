package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRateLimitExceeded Type = "ratelimit.exceeded"
	TypeRateLimitDegraded Type = "ratelimit.degraded"
	TypeCSRFRejected      Type = "csrf.rejected"
	TypeAuthRequired      Type = "authn.required"
	TypeAuthzDenied       Type = "authz.denied"
	TypeRecordAccepted    Type = "record.accepted"
)

var knownTypes = map[Type]struct{}{
	TypeRateLimitExceeded: {},
	TypeRateLimitDegraded: {},
	TypeCSRFRejected:      {},
	TypeAuthRequired:      {},
	TypeAuthzDenied:       {},
	TypeRecordAccepted:    {},
}

func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp string      `json:"timestamp"`
	ActorID   string      `json:"actor_id,omitempty"` // Who triggered the event
}

// Denial describes a refused request.
type Denial struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	Rule      string `json:"rule,omitempty"`
}

// RecordAccepted carries a validated record handed to persistence.
type RecordAccepted struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	ID       string `json:"id"`
	Record   any    `json:"record"`
	ClientIP string `json:"client_ip"`
}

func New(eventType Type, actorID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
