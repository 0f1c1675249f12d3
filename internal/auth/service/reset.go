package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/metrics"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/idx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

const (
	DefaultResetTTL = 30 * time.Minute
	MaxResetTTL     = time.Hour
)

// PasswordResetService issues and redeems single-use reset tokens.
type PasswordResetService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
	TTL    time.Duration // clamped to MaxResetTTL
	Clock  clockx.Clock
}

func (s *PasswordResetService) now() time.Time {
	return clockx.OrSystem(s.Clock).Now()
}

func (s *PasswordResetService) ttl() time.Duration {
	switch {
	case s.TTL <= 0:
		return DefaultResetTTL
	case s.TTL > MaxResetTTL:
		return MaxResetTTL
	default:
		return s.TTL
	}
}

// RequestReset returns a raw reset token for the active user owning email,
// for out-of-band delivery. When nothing matches it returns "" and nil, so
// callers cannot tell the two cases apart. Outstanding tokens for the user
// are discarded.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	metrics.PasswordResetsTotal.WithLabelValues("requested").Inc()

	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Active {
		return "", nil
	}

	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	now := s.now()
	tok := domain.PasswordResetToken{
		ID:        idx.NewAt(now).String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ResetTokens().DeleteUserResetTokens(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to delete previous reset tokens: %w", err)
		}
		if err := tx.ResetTokens().CreateResetToken(ctx, tok); err != nil {
			return fmt.Errorf("failed to store reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.PasswordResetsTotal.WithLabelValues("issued").Inc()
	slogx.FromContext(ctx).Info("password reset issued",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return raw, nil
}

// Redeem sets a new password using a reset token. Marking the token used,
// replacing the hash and revoking every refresh token happen in one
// transaction, so a token can only ever be redeemed once.
func (s *PasswordResetService) Redeem(ctx context.Context, raw, newPassword string) error {
	if err := validateStruct(resetPasswordInput{Token: raw, Password: newPassword}); err != nil {
		return err
	}

	now := s.now()
	tok, err := s.Store.ResetTokens().GetResetTokenByHash(ctx, cryptox.FingerprintToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		metrics.PasswordResetsTotal.WithLabelValues("rejected").Inc()
		return ErrInvalidOrExpiredResetToken
	}
	if err != nil {
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if !tok.Usable(now) {
		metrics.PasswordResetsTotal.WithLabelValues("rejected").Inc()
		return ErrInvalidOrExpiredResetToken
	}

	hash, err := s.Hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.ResetTokens().MarkResetTokenUsed(ctx, tok.ID, now)
		if err != nil {
			return fmt.Errorf("failed to mark reset token used: %w", err)
		}
		if !ok {
			return ErrInvalidOrExpiredResetToken
		}
		if err := tx.Users().UpdatePasswordHash(ctx, tok.UserID, hash, now); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		revoked, err = tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, tok.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredResetToken) {
			metrics.PasswordResetsTotal.WithLabelValues("rejected").Inc()
		}
		return err
	}

	metrics.PasswordResetsTotal.WithLabelValues("redeemed").Inc()
	slogx.FromContext(ctx).Info("password reset redeemed",
		slog.String("user_id", tok.UserID),
		slog.Int64("sessions_revoked", revoked),
	)
	return nil
}
