package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL bounds how long a stolen access token stays useful,
	// since revocation only takes effect at the next refresh.
	DefaultAccessTokenTTL = 15 * time.Minute

	// TokenTypeAccess is the only token type this package mints.
	TokenTypeAccess = "access"
)

// Authentication Methods Reference values.
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRMFA      = "mfa"
)

// Claims are the access-token claims.
type Claims struct {
	jwt.RegisteredClaims

	// Role the subject held when the token was minted.
	Role string `json:"role,omitempty"`

	// Permissions is the resolved permission set, "resource:action[:scope]".
	Permissions []string `json:"perms,omitempty"`

	// TokenType discriminates access tokens from anything else signed with
	// the same keys.
	TokenType string `json:"token_type"`

	// AMR records how the subject authenticated, e.g. ["pwd","mfa"].
	AMR []string `json:"amr,omitempty"`
}

// NewAccessClaims builds access-token claims valid from now for ttl.
func NewAccessClaims(
	subject, role string,
	permissions, amr []string,
	issuer, audience string,
	ttl time.Duration,
	now time.Time,
) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Role:        role,
		Permissions: permissions,
		TokenType:   TokenTypeAccess,
		AMR:         amr,
	}
	if audience != "" {
		c.Audience = jwt.ClaimStrings{audience}
	}
	return c
}

// NewJTI returns a random URL-safe "jti".
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateType checks the token_type discriminator.
func (c *Claims) ValidateType(expected string) error {
	if c.TokenType != expected {
		return ErrTokenType
	}
	return nil
}

// ValidateIssuer checks iss. An empty expectation enforces nothing.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that aud contains expected.
func (c *Claims) ValidateAudience(expected string) error {
	if expected != "" && !slices.Contains(c.Audience, expected) {
		return ErrAudience
	}
	return nil
}

// ValidateTimes requires exp, and holds the token valid while
// nbf-leeway <= now < exp+leeway.
func (c *Claims) ValidateTimes(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrMissingExpiry
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	if !now.Before(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	return nil
}
