package http

import "github.com/aussiebroadwan/authcore/internal/auth/domain"

// HealthResponse is returned by the probe endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of critical dependencies.
type HealthChecks struct {
	Database    string `json:"database"`
	Signer      string `json:"signer"`
	RateLimiter string `json:"rate_limiter,omitempty"`
}

// UserInfoResponse is the authenticated user plus the permissions carried by
// the presented access token.
type UserInfoResponse struct {
	domain.Identity
	Permissions []string `json:"permissions"`
}
