package model

type AuditActor struct {
	UserID string `json:"user_id,omitempty"`
	// IP is stored encrypted and decrypted for display.
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditEntry struct {
	ID         string     `json:"id"`
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Resource   string     `json:"resource,omitempty"`
	Code       string     `json:"code,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Details    any        `json:"details,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	Code    string
	Path    string
	From    string
	To      string
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
