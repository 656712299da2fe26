package model

import "time"

// AuthClaims is the verified content of an access token.
type AuthClaims struct {
	UserID        string   `json:"sub"`
	Email         string   `json:"email"`
	Role          string   `json:"role"`
	EmailVerified bool     `json:"email_verified"`
	Permissions   []string `json:"permissions,omitempty"`
	Type          string   `json:"typ"`
	TokenID       string   `json:"jti"`
}

type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Principal is what /me reports about the caller.
type Principal struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Role          string   `json:"role"`
	ResolvedRole  string   `json:"resolved_role"`
	EmailVerified bool     `json:"email_verified"`
	IsAdmin       bool     `json:"is_admin"`
	Permissions   []string `json:"permissions"`
}
