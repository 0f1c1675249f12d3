package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestMFAService_StateMachine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	mfa := h.auth.MFA
	id := alice.User.ID

	status, err := mfa.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.MFAUnset, status.Status)

	_, err = mfa.ConfirmSetup(ctx, id, "123456")
	require.ErrorIs(t, err, ErrMFANotPending)

	_, err = mfa.Verify(ctx, id, "123456")
	require.ErrorIs(t, err, ErrMFANotEnabled)

	setup, err := mfa.BeginSetup(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.True(t, strings.HasPrefix(setup.URL, "otpauth://totp/"))

	stored, err := h.store.Users().GetUserByID(ctx, id)
	require.NoError(t, err)
	require.NotEqual(t, setup.Secret, stored.MFA.Secret, "secret is sealed at rest")
	require.Equal(t, domain.MFAPendingVerification, stored.MFA.Status())

	_, err = mfa.Verify(ctx, id, totpAt(t, setup.Secret, h.clock.Now()))
	require.ErrorIs(t, err, ErrMFANotEnabled, "pending secrets do not count")

	t.Run("wrong code leaves setup pending", func(t *testing.T) {
		_, err := mfa.ConfirmSetup(ctx, id, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)

		status, err := mfa.Status(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.MFAPendingVerification, status.Status)
	})

	codes, err := mfa.ConfirmSetup(ctx, id, totpAt(t, setup.Secret, h.clock.Now()))
	require.NoError(t, err)
	require.Len(t, codes, backupCodeCount)

	status, err = mfa.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.MFAEnabled, status.Status)
	require.NotNil(t, status.EnabledAt)
	require.Equal(t, backupCodeCount, status.BackupCodesRemaining)

	_, err = mfa.BeginSetup(ctx, id)
	require.ErrorIs(t, err, ErrMFAAlreadyEnabled)

	require.NoError(t, mfa.Disable(ctx, id))

	status, err = mfa.Status(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.MFAUnset, status.Status)

	n, err := h.store.BackupCodes().CountUserBackupCodes(ctx, id)
	require.NoError(t, err)
	require.Zero(t, n)

	require.ErrorIs(t, mfa.Disable(ctx, id), ErrMFANotEnabled)
}

func TestMFAService_TOTPWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	secret, _ := h.enableMFA(t, alice.User.ID)

	code := totpAt(t, secret, t0)

	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"same step", 0, true},
		{"30s later", 30 * time.Second, true},
		{"30s earlier", -30 * time.Second, true},
		{"90s later", 90 * time.Second, false},
		{"90s earlier", -90 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.clock.Set(t0.Add(tt.offset))

			method, err := h.auth.MFA.Verify(ctx, alice.User.ID, code)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, domain.MFAMethodTOTP, method)
			} else {
				require.ErrorIs(t, err, ErrInvalidMFACode)
			}
		})
	}
}

func TestMFAService_BackupCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice")
	_, codes := h.enableMFA(t, alice.User.ID)
	mfa := h.auth.MFA

	method, err := mfa.Verify(ctx, alice.User.ID, codes[0])
	require.NoError(t, err)
	require.Equal(t, domain.MFAMethodBackupCode, method)

	_, err = mfa.Verify(ctx, alice.User.ID, codes[0])
	require.ErrorIs(t, err, ErrInvalidMFACode, "backup codes are single use")

	t.Run("typed loosely", func(t *testing.T) {
		loose := strings.ToUpper(strings.ReplaceAll(codes[1], "-", " "))
		method, err := mfa.Verify(ctx, alice.User.ID, loose)
		require.NoError(t, err)
		require.Equal(t, domain.MFAMethodBackupCode, method)
	})

	status, err := mfa.Status(ctx, alice.User.ID)
	require.NoError(t, err)
	require.Equal(t, backupCodeCount-2, status.BackupCodesRemaining)

	t.Run("regenerate replaces the set", func(t *testing.T) {
		fresh, err := mfa.RegenerateBackupCodes(ctx, alice.User.ID)
		require.NoError(t, err)
		require.Len(t, fresh, backupCodeCount)

		_, err = mfa.Verify(ctx, alice.User.ID, codes[2])
		require.ErrorIs(t, err, ErrInvalidMFACode, "old codes are gone")

		_, err = mfa.Verify(ctx, alice.User.ID, fresh[0])
		require.NoError(t, err)
	})

	t.Run("regenerate requires MFA", func(t *testing.T) {
		bob := h.register(t, "bob")
		_, err := mfa.RegenerateBackupCodes(ctx, bob.User.ID)
		require.ErrorIs(t, err, ErrMFANotEnabled)
	})
}
