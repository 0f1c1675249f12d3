package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestMFAState_Status(t *testing.T) {
	now := time.Now()

	require.Equal(t, domain.MFAUnset, domain.MFAState{}.Status())
	require.Equal(t, domain.MFAPendingVerification, domain.MFAState{Secret: "s"}.Status())
	require.Equal(t, domain.MFAEnabled, domain.MFAState{Secret: "s", EnabledAt: &now}.Status())
}

func TestRefreshToken_Expired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok := domain.RefreshToken{ExpiresAt: now}

	require.True(t, tok.Expired(now), "expiry instant is already expired")
	require.False(t, tok.Expired(now.Add(-time.Second)))
}

func TestPasswordResetToken_Usable(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok := domain.PasswordResetToken{ExpiresAt: now.Add(time.Minute)}
	require.True(t, tok.Usable(now))
	require.False(t, tok.Usable(now.Add(time.Minute)))

	tok.UsedAt = &now
	require.False(t, tok.Usable(now))
}
