package domain

import "time"

// TokenPair is what login, register and refresh hand back to the client.
type TokenPair struct {
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	RefreshToken         string    `json:"refresh_token"`
	TokenType            string    `json:"token_type"` // always "Bearer"
}

// AuthResult is a successful authentication.
type AuthResult struct {
	User   Identity  `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// RefreshToken is the stored record. Only the fingerprint of the raw value
// is kept.
type RefreshToken struct {
	ID         string
	UserID     string
	FamilyID   string // one lineage per login, shared across rotations
	TokenHash  string // base64url SHA-256 of the raw token
	Active     bool
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Device     DeviceInfo
}

func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// DeviceInfo describes the client a session was issued to.
type DeviceInfo struct {
	UserAgent string
	IP        string
}
