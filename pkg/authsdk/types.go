package authsdk

import (
	"time"

	"github.com/aussiebroadwan/authcore/pkg/jwtx"
)

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports each critical dependency as "ok" or "error: ...".
type HealthChecks struct {
	Database    string `json:"database"`
	Signer      string `json:"signer"`
	RateLimiter string `json:"rate_limiter,omitempty"`
}

// Ready reports whether every check passed.
func (h HealthResponse) Ready() bool {
	return h.Status == "ok"
}

// UserInfoResponse is the user behind an access token.
type UserInfoResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	MFAEnabled  bool      `json:"mfa_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	Permissions []string  `json:"permissions"`
}

// JWKSResponse is the published key set.
type JWKSResponse = jwtx.JWKS
