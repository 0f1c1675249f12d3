package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingService_Cleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")

	short, err := h.auth.Sessions.Create(ctx, alice.User.ID, "", domain.DeviceInfo{}, time.Hour)
	require.NoError(t, err)
	_, err = h.auth.Resets.RequestReset(ctx, "alice@x.com")
	require.NoError(t, err)

	hk := NewHousekeepingService(h.store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute, h.clock)

	require.Zero(t, hk.Cleanup(ctx), "nothing has expired yet")

	h.clock.Advance(2 * time.Hour)
	require.EqualValues(t, 2, hk.Cleanup(ctx), "the short refresh token and the reset token")

	_, err = h.auth.Sessions.Lookup(ctx, short)
	require.ErrorIs(t, err, ErrRefreshNotFound)

	// The registration token lives for days and survives.
	active, err := h.auth.Sessions.IsActive(ctx, alice.Tokens.RefreshToken)
	require.NoError(t, err)
	require.True(t, active)
}

func TestHousekeepingService_StartStop(t *testing.T) {
	h := newHarness(t)

	hk := NewHousekeepingService(h.store, slog.New(slog.NewTextHandler(io.Discard, nil)), 0, h.clock)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	hk.Stop()
}
