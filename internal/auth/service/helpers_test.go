package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/ratelimit"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "authcore-test"
	testAudience = "authcore-api"
	testPassword = "correct-horse-1"
)

// t0 sits 5s into a TOTP step so ±30s lands one step either side.
var t0 = time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)

// Cheap argon2id parameters; the real ones make the suite crawl.
var testArgon2 = cryptox.Argon2Params{
	Memory:      64,
	Iterations:  1,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

type harness struct {
	clock *clockx.Fake
	store *sqlite.Store
	auth  *AuthService
}

type harnessOption func(*AuthService)

func withLimiter(l ratelimit.Limiter) harnessOption {
	return func(s *AuthService) { s.Limiter = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := clockx.NewFake(t0)

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		Audience:  testAudience,
		NumKeys:   1,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	sealer, err := cryptox.NewSealer([]byte("test-master-key"))
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("test-pepper", 4, testArgon2)
	resolver := rbac.MustNewResolver(rbac.Permissions)

	auth := &AuthService{
		Store:    st,
		Hasher:   hasher,
		Resolver: resolver,
		Tokens:   NewTokenService(keys, resolver, testIssuer, testAudience, 15*time.Minute, clock),
		Sessions: &RefreshTokenService{Store: st, TTL: DefaultRefreshTTL, Clock: clock},
		MFA:      &MFAService{Store: st, Sealer: sealer, Issuer: "AuthCore", Clock: clock},
		Resets:   &PasswordResetService{Store: st, Hasher: hasher, Clock: clock},
		Limiter:  ratelimit.Unlimited{},
		Clock:    clock,
	}
	for _, opt := range opts {
		opt(auth)
	}

	return &harness{clock: clock, store: st, auth: auth}
}

func (h *harness) register(t *testing.T, username string) domain.AuthResult {
	t.Helper()

	res, err := h.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@x.com",
		Password: testPassword,
	}, domain.DeviceInfo{UserAgent: "test", IP: "192.0.2.1"})
	require.NoError(t, err)
	return res
}

func (h *harness) login(t *testing.T, identifier string) domain.AuthResult {
	t.Helper()

	res, err := h.auth.Login(context.Background(), LoginRequest{
		Identifier: identifier,
		Password:   testPassword,
	})
	require.NoError(t, err)
	return res
}

// enableMFA runs enrolment to completion and returns the plain secret and
// the backup codes.
func (h *harness) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := h.auth.SetupMFA(ctx, userID)
	require.NoError(t, err)

	codes, err := h.auth.ConfirmMFA(ctx, userID, totpAt(t, setup.Secret, h.clock.Now()))
	require.NoError(t, err)
	return setup.Secret, codes
}

func totpAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

var errRevokeFailed = errors.New("revoke failed")

// failingRevokeStore fails every bulk refresh token revocation, inside
// transactions too.
type failingRevokeStore struct {
	store.Store
}

func (s failingRevokeStore) RefreshTokens() store.RefreshTokens {
	return failingRevokeRepo{RefreshTokens: s.Store.RefreshTokens()}
}

func (s failingRevokeStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(failingRevokeTx{innerTx: tx})
	})
}

// innerTx names the embedded store.Tx so the field does not shadow the
// promoted Store.Tx method.
type innerTx = store.Tx

type failingRevokeTx struct {
	innerTx
}

func (t failingRevokeTx) RefreshTokens() store.RefreshTokens {
	return failingRevokeRepo{RefreshTokens: t.innerTx.RefreshTokens()}
}

type failingRevokeRepo struct {
	store.RefreshTokens
}

func (failingRevokeRepo) RevokeAllUserRefreshTokens(context.Context, string, time.Time) (int64, error) {
	return 0, errRevokeFailed
}

var errCreateFailed = errors.New("create failed")

// failingCreateStore refuses to store new refresh tokens.
type failingCreateStore struct {
	store.Store
}

func (s failingCreateStore) RefreshTokens() store.RefreshTokens {
	return failingCreateRepo{RefreshTokens: s.Store.RefreshTokens()}
}

type failingCreateRepo struct {
	store.RefreshTokens
}

func (failingCreateRepo) CreateRefreshToken(context.Context, domain.RefreshToken) error {
	return errCreateFailed
}
