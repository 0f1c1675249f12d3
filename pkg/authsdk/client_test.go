package authsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/authcore/internal/auth/http"
	"github.com/aussiebroadwan/authcore/internal/auth/service"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "authcore-test"
	testAudience = "authcore-api"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type users map[string]domain.Identity

func (u users) GetUser(_ context.Context, id string) (domain.Identity, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return domain.Identity{}, store.ErrNotFound
}

func newTokenService(t *testing.T, clock clockx.Clock) *service.TokenService {
	t.Helper()

	keys, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		Audience:  testAudience,
		NumKeys:   1,
	})
	require.NoError(t, err)

	return service.NewTokenService(keys, rbac.MustNewResolver(rbac.Permissions),
		testIssuer, testAudience, 15*time.Minute, clock)
}

// newServer runs the real router over httptest.
func newServer(t *testing.T, tokens *service.TokenService, db pingFunc) *Client {
	t.Helper()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Keys:     tokens.Keys.KeySet(),
		Verifier: tokens,
		Version:  "test",
		DB:       db,
		Users: users{
			"u-alice": {ID: "u-alice", Username: "alice", Email: "alice@x.com", Role: "user"},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestClient_Health(t *testing.T) {
	var down atomic.Bool
	client := newServer(t, newTokenService(t, nil), func(context.Context) error {
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	})
	ctx := context.Background()

	live, err := client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.True(t, ready.Ready())

	down.Store(true)

	ready, err = client.GetReadiness(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.NotNil(t, ready)
	require.False(t, ready.Ready())
	require.Contains(t, ready.Checks.Database, "connection refused")
}

func TestClient_UserInfo(t *testing.T) {
	tokens := newTokenService(t, nil)
	client := newServer(t, tokens, func(context.Context) error { return nil })
	ctx := context.Background()

	tok, err := tokens.Issue(domain.User{ID: "u-alice", Role: "user"})
	require.NoError(t, err)

	user, err := client.GetUserInfo(ctx, tok.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.Equal(t, "alice@x.com", user.Email)
	require.Contains(t, user.Permissions, "profile:read:own")

	_, err = client.GetUserInfo(ctx, "bogus")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, ErrorCodeInvalidToken, apiErr.Code)
}

func TestClient_JWKS(t *testing.T) {
	tokens := newTokenService(t, nil)
	client := newServer(t, tokens, func(context.Context) error { return nil })

	jwks, err := client.GetJWKS(context.Background())
	require.NoError(t, err)
	require.Equal(t, tokens.Keys.KeySet().PublicJWKS(), *jwks)
}
