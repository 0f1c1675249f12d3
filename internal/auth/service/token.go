package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
)

// IssuedToken is a freshly signed access token.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Claims    jwtx.Claims
}

// TokenService mints and verifies access tokens. Verification is stateless,
// so revocation only takes effect once the token expires.
type TokenService struct {
	Keys      *jwtx.KeyManager
	Resolver  *rbac.Resolver
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	Clock     clockx.Clock

	verifier *jwtx.Verifier
}

// NewTokenService wires a TokenService whose verifier shares the clock used
// for issuing.
func NewTokenService(keys *jwtx.KeyManager, resolver *rbac.Resolver, issuer, audience string, ttl time.Duration, clock clockx.Clock) *TokenService {
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	clock = clockx.OrSystem(clock)

	return &TokenService{
		Keys:      keys,
		Resolver:  resolver,
		Issuer:    issuer,
		Audience:  audience,
		AccessTTL: ttl,
		Clock:     clock,
		verifier: jwtx.NewVerifier(keys.KeySet(), jwtx.VerifyOptions{
			Issuer:     issuer,
			Audience:   audience,
			TokenType:  jwtx.TokenTypeAccess,
			Algorithms: []string{keys.Algorithm()},
			Now:        clock.Now,
		}),
	}
}

// Issue signs an access token for user carrying the permissions of its role.
// amr defaults to password authentication.
func (s *TokenService) Issue(user domain.User, amr ...string) (IssuedToken, error) {
	perms, err := s.Resolver.Resolve(user.Role)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("resolve permissions: %w", err)
	}
	if len(amr) == 0 {
		amr = []string{jwtx.AMRPassword}
	}

	claims := jwtx.NewAccessClaims(user.ID, user.Role, perms, amr,
		s.Issuer, s.Audience, s.AccessTTL, s.Clock.Now())

	signed, err := s.Keys.Signer().Sign(claims)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return IssuedToken{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		Claims:    claims,
	}, nil
}

// Verify returns the claims of a valid access token. Every failure is
// ErrTokenInvalid except expiry of an otherwise valid token, which is
// ErrTokenExpired so clients know to refresh.
func (s *TokenService) Verify(raw string) (jwtx.Claims, error) {
	claims, err := s.verifier.Verify(raw)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrExpired):
		return jwtx.Claims{}, ErrTokenExpired
	default:
		return jwtx.Claims{}, ErrTokenInvalid
	}
}
