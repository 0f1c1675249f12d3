package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string // stored lower-cased
	PasswordHash string // argon2id PHC string
	Role         string
	Active       bool
	MFA          MFAState
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the public view of a user returned by auth flows.
type Identity struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	MFAEnabled bool      `json:"mfa_enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u User) Identity() Identity {
	return Identity{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		MFAEnabled: u.MFA.Status() == MFAEnabled,
		CreatedAt:  u.CreatedAt,
	}
}
