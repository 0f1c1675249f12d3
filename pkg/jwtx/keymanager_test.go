package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newManager(t *testing.T, alg string, clock *fixedClock) *jwtx.KeyManager {
	t.Helper()
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: alg,
		Issuer:    "test-issuer",
		Audience:  "test-audience",
		RSABits:   2048,
		NumKeys:   1,
		Now:       clock.Now,
	})
	require.NoError(t, err)
	return km
}

func TestNewKeyManager_AllAlgorithms(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmRS256, jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA} {
		t.Run(alg, func(t *testing.T) {
			km := newManager(t, alg, &fixedClock{t: time.Now()})
			require.Equal(t, alg, km.Algorithm())
			require.True(t, km.IsReady())
			require.Equal(t, 1, km.NumSigners())
			require.Equal(t, alg, km.Signer().Alg())
			require.True(t, strings.HasPrefix(km.Signer().KID(), "authcore-"))
		})
	}
}

func TestNewKeyManager_Errors(t *testing.T) {
	_, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA})
	require.Error(t, err, "issuer is required")

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: "HS256", Issuer: "x"})
	require.Error(t, err)

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "x", PrivateKeyPEM: []byte("nope")})
	require.Error(t, err)
}

func TestNewKeyManager_NumKeysBounds(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: "x"})
	require.NoError(t, err)
	require.Equal(t, 3, km.NumSigners())
	require.Len(t, km.KeySet().PublicJWKS().Keys, 3)

	km, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmEdDSA, Issuer: "x", NumKeys: 50})
	require.NoError(t, err)
	require.Equal(t, 10, km.NumSigners())
}

func TestNewKeyManager_FromPEMHasStableKID(t *testing.T) {
	pemKey, err := cryptox.GenerateSigningKey(cryptox.KeyP256, 0)
	require.NoError(t, err)

	a, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "x", PrivateKeyPEM: pemKey})
	require.NoError(t, err)
	b, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{Issuer: "x", PrivateKeyPEM: pemKey})
	require.NoError(t, err)

	require.Equal(t, jwtx.AlgorithmES256, a.Algorithm())
	require.Equal(t, a.Signer().KID(), b.Signer().KID())

	// A token from one process verifies in the next.
	now := time.Now()
	token, err := a.Signer().Sign(jwtx.NewAccessClaims("u1", "user", nil, nil, "x", "", time.Minute, now))
	require.NoError(t, err)
	_, err = b.Verifier().Verify(token)
	require.NoError(t, err)
}

func TestKeyManager_SignAndVerifyRoundTrip(t *testing.T) {
	for _, alg := range []string{jwtx.AlgorithmRS256, jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA} {
		t.Run(alg, func(t *testing.T) {
			now := time.Unix(1_700_000_000, 0).UTC()
			km := newManager(t, alg, &fixedClock{t: now})

			claims := jwtx.NewAccessClaims("user-1", "moderator", []string{"tasks:read:*"}, []string{jwtx.AMRPassword},
				"test-issuer", "test-audience", 15*time.Minute, now)
			token, err := km.Signer().Sign(claims)
			require.NoError(t, err)
			require.Len(t, strings.Split(token, "."), 3)

			got, err := km.Verifier().Verify(token)
			require.NoError(t, err)
			require.Equal(t, "user-1", got.Subject)
			require.Equal(t, "moderator", got.Role)
			require.ElementsMatch(t, claims.Permissions, got.Permissions)
			require.ElementsMatch(t, claims.AMR, got.AMR)
		})
	}
}

func TestVerifier_Rejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := &fixedClock{t: now}
	km := newManager(t, jwtx.AlgorithmEdDSA, clock)
	other := newManager(t, jwtx.AlgorithmEdDSA, clock)

	sign := func(mutate func(c *jwtx.Claims)) string {
		c := jwtx.NewAccessClaims("user-1", "user", nil, nil, "test-issuer", "test-audience", time.Minute, now)
		if mutate != nil {
			mutate(&c)
		}
		tok, err := km.Signer().Sign(c)
		require.NoError(t, err)
		return tok
	}

	foreign, err := other.Signer().Sign(jwtx.NewAccessClaims("user-1", "user", nil, nil,
		"test-issuer", "test-audience", time.Minute, now))
	require.NoError(t, err)

	valid := sign(nil)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"tampered signature", tampered},
		{"unknown kid", foreign},
		{"wrong issuer", sign(func(c *jwtx.Claims) { c.Issuer = "evil" })},
		{"wrong audience", sign(func(c *jwtx.Claims) { c.Audience = jwt.ClaimStrings{"other"} })},
		{"wrong type", sign(func(c *jwtx.Claims) { c.TokenType = "refresh" })},
		{"missing subject", sign(func(c *jwtx.Claims) { c.Subject = "" })},
		{"missing exp", sign(func(c *jwtx.Claims) { c.ExpiresAt = nil })},
		{"expired and wrong issuer", sign(func(c *jwtx.Claims) {
			c.Issuer = "evil"
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := km.Verifier().Verify(tt.token)
			require.ErrorIs(t, err, jwtx.ErrInvalidToken)
			require.NotErrorIs(t, err, jwtx.ErrExpired)
		})
	}
}

func TestVerifier_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	clock := &fixedClock{t: now}
	km := newManager(t, jwtx.AlgorithmEdDSA, clock)

	token, err := km.Signer().Sign(jwtx.NewAccessClaims("user-1", "user", nil, nil,
		"test-issuer", "test-audience", 15*time.Minute, now))
	require.NoError(t, err)

	clock.t = now.Add(15*time.Minute - time.Second)
	_, err = km.Verifier().Verify(token)
	require.NoError(t, err)

	clock.t = now.Add(15 * time.Minute)
	_, err = km.Verifier().Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
	require.NotErrorIs(t, err, jwtx.ErrInvalidToken)
}

func TestVerifier_RejectsAlgorithmConfusion(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	km := newManager(t, jwtx.AlgorithmEdDSA, &fixedClock{t: now})

	c := jwtx.NewAccessClaims("user-1", "admin", nil, nil, "test-issuer", "test-audience", time.Minute, now)
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, c)
	unsigned.Header["kid"] = km.Signer().KID()
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = km.Verifier().Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrInvalidToken)
}
