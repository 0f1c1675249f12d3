package service

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/stretchr/testify/require"
)

func newTokenService(t *testing.T, clock clockx.Clock, audience string) *TokenService {
	t.Helper()

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		NumKeys:   1,
	})
	require.NoError(t, err)
	return NewTokenService(keys, rbac.MustNewResolver(rbac.Permissions), testIssuer, audience, 15*time.Minute, clock)
}

func TestTokenService_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(t0)
	svc := newTokenService(t, clock, testAudience)

	for _, role := range []string{"user", "moderator", "admin"} {
		t.Run(role, func(t *testing.T) {
			user := domain.User{ID: "user-" + role, Role: role}

			issued, err := svc.Issue(user)
			require.NoError(t, err)
			require.True(t, t0.Add(15*time.Minute).Equal(issued.ExpiresAt))

			claims, err := svc.Verify(issued.Token)
			require.NoError(t, err)
			require.Equal(t, user.ID, claims.Subject)
			require.Equal(t, role, claims.Role)
			require.Equal(t, jwtx.TokenTypeAccess, claims.TokenType)
			require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)

			want, err := svc.Resolver.Resolve(role)
			require.NoError(t, err)
			require.Equal(t, want, claims.Permissions)
		})
	}
}

func TestTokenService_Issue_UnknownRole(t *testing.T) {
	t.Parallel()

	svc := newTokenService(t, clockx.NewFake(t0), testAudience)
	_, err := svc.Issue(domain.User{ID: "u1", Role: "superuser"})
	require.ErrorIs(t, err, rbac.ErrUnknownRole)
}

func TestTokenService_Verify(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(t0)
	svc := newTokenService(t, clock, testAudience)
	user := domain.User{ID: "u1", Role: "user"}

	issued, err := svc.Issue(user)
	require.NoError(t, err)

	t.Run("expired after exp", func(t *testing.T) {
		late := clockx.NewFake(t0.Add(15 * time.Minute))
		v := NewTokenService(svc.Keys, svc.Resolver, testIssuer, testAudience, 15*time.Minute, late)

		_, err := v.Verify(issued.Token)
		require.ErrorIs(t, err, ErrTokenExpired)

		late.Advance(24 * time.Hour)
		_, err = v.Verify(issued.Token)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong audience is invalid even when expired", func(t *testing.T) {
		late := clockx.NewFake(t0.Add(time.Hour))
		other := NewTokenService(svc.Keys, svc.Resolver, testIssuer, "other-api", 15*time.Minute, late)

		_, err := other.Verify(issued.Token)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenService(svc.Keys, svc.Resolver, "someone-else", testAudience, 15*time.Minute, clock)

		_, err := other.Verify(issued.Token)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("foreign signing key", func(t *testing.T) {
		foreign := newTokenService(t, clock, testAudience)

		_, err := foreign.Verify(issued.Token)
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("tampered claims", func(t *testing.T) {
		parts := strings.Split(issued.Token, ".")
		require.Len(t, parts, 3)

		forged, err := svc.Issue(domain.User{ID: "u1", Role: "admin"})
		require.NoError(t, err)
		forgedParts := strings.Split(forged.Token, ".")

		// admin claims under the user token's signature
		_, err = svc.Verify(parts[0] + "." + forgedParts[1] + "." + parts[2])
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "a.b.c"} {
			_, err := svc.Verify(raw)
			require.ErrorIs(t, err, ErrTokenInvalid, raw)
		}
	})
}
