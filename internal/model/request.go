package model

import "time"

// Accepted is the body answered for intake requests that passed governance
// and validation.
type Accepted struct {
	ID         string    `json:"id"`
	Resource   string    `json:"resource"`
	Action     string    `json:"action"`
	AcceptedAt time.Time `json:"accepted_at"`
	Record     any       `json:"record"`
}

type ValidationResult struct {
	Schema string `json:"schema"`
	Valid  bool   `json:"valid"`
	Value  any    `json:"value"`
}

type CSRFTokenData struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Header    string    `json:"header"`
}

type HealthData struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version,omitempty"`
}

// Record is an accepted admin record as held by the record repository.
type Record struct {
	ID        string    `json:"id"`
	Resource  string    `json:"resource"`
	Data      any       `json:"data"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
