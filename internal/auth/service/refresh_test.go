package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokenService_Create(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	device := domain.DeviceInfo{UserAgent: "curl/8", IP: "198.51.100.7"}
	raw, err := svc.Create(ctx, alice.User.ID, "", device, 0)
	require.NoError(t, err)
	require.Len(t, raw, 43, "256 bits as unpadded base64url")

	stored, err := h.store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(raw))
	require.NoError(t, err)
	require.NotEqual(t, raw, stored.TokenHash, "only the fingerprint is stored")
	require.True(t, stored.Active)
	require.Equal(t, device, stored.Device)
	require.True(t, t0.Add(DefaultRefreshTTL).Equal(stored.ExpiresAt))
	require.NotEmpty(t, stored.FamilyID)

	active, err := svc.IsActive(ctx, raw)
	require.NoError(t, err)
	require.True(t, active)
}

func TestRefreshTokenService_Rotate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	first, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{UserAgent: "phone"}, 0)
	require.NoError(t, err)
	firstRec, err := svc.Lookup(ctx, first)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)

	second, err := svc.Rotate(ctx, first, domain.DeviceInfo{})
	require.NoError(t, err)
	require.NotEqual(t, first, second.Raw)
	require.Equal(t, firstRec.FamilyID, second.Token.FamilyID, "rotation keeps the lineage")
	require.Equal(t, "phone", second.Token.Device.UserAgent, "device carried forward")
	require.True(t, h.clock.Now().Add(DefaultRefreshTTL).Equal(second.Token.ExpiresAt), "lifetime slides")

	old, err := svc.Lookup(ctx, first)
	require.NoError(t, err)
	require.False(t, old.Active)
	require.NotNil(t, old.LastUsedAt)

	t.Run("replay of a rotated token revokes the lineage", func(t *testing.T) {
		_, err := svc.Rotate(ctx, first, domain.DeviceInfo{})
		require.ErrorIs(t, err, ErrReplayDetected)

		active, err := svc.IsActive(ctx, second.Raw)
		require.NoError(t, err)
		require.False(t, active)

		_, err = svc.Rotate(ctx, second.Raw, domain.DeviceInfo{})
		require.ErrorIs(t, err, ErrRefreshNotFound, "the successor was revoked, not rotated")

		_, err = svc.Rotate(ctx, first, domain.DeviceInfo{})
		require.ErrorIs(t, err, ErrReplayDetected, "a rotated token stays a replay")
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := svc.Rotate(ctx, "not-a-token", domain.DeviceInfo{})
		require.ErrorIs(t, err, ErrRefreshNotFound)

		_, err = svc.Rotate(ctx, "", domain.DeviceInfo{})
		require.ErrorIs(t, err, ErrRefreshNotFound)
	})
}

func TestRefreshTokenService_RotateExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	raw, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, time.Hour)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)

	_, err = svc.Rotate(ctx, raw, domain.DeviceInfo{})
	require.ErrorIs(t, err, ErrRefreshNotFound, "expired tokens behave as not found")

	active, err := svc.IsActive(ctx, raw)
	require.NoError(t, err)
	require.False(t, active)
}

func TestRefreshTokenService_ConcurrentRotate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	raw, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, 0)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		losses    int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Rotate(ctx, raw, domain.DeviceInfo{})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict), errors.Is(err, ErrReplayDetected):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, losses)
}

func TestRefreshTokenService_Revoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	a, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, 0)
	require.NoError(t, err)
	b, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, a))
	require.NoError(t, svc.Revoke(ctx, a), "idempotent")
	require.NoError(t, svc.Revoke(ctx, "unknown"))

	active, err := svc.IsActive(ctx, a)
	require.NoError(t, err)
	require.False(t, active)

	active, err = svc.IsActive(ctx, b)
	require.NoError(t, err)
	require.True(t, active)

	// b plus the token minted at registration
	n, err := svc.RevokeAllForUser(ctx, alice.User.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	active, err = svc.IsActive(ctx, b)
	require.NoError(t, err)
	require.False(t, active)
}

func TestRefreshTokenService_RotateRevoked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	svc := h.auth.Sessions

	a, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, 0)
	require.NoError(t, err)
	b, err := svc.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, a))

	_, err = svc.Rotate(ctx, a, domain.DeviceInfo{})
	require.ErrorIs(t, err, ErrRefreshNotFound)

	active, err := svc.IsActive(ctx, b)
	require.NoError(t, err)
	require.True(t, active, "a signed-out token does not take other sessions down")
}
