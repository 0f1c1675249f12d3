package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/metrics"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/idx"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

// DefaultRefreshTTL is the lifetime of a refresh token minted without
// "remember me".
const DefaultRefreshTTL = 7 * 24 * time.Hour

// RotateResult is the outcome of a successful rotation.
type RotateResult struct {
	Raw   string              // new bearer value, shown to the client once
	Token domain.RefreshToken // the stored record behind Raw
}

// RefreshTokenService owns the refresh token lineage. Only fingerprints of
// raw values are ever stored or looked up.
type RefreshTokenService struct {
	Store store.Store
	TTL   time.Duration
	Clock clockx.Clock
}

func (s *RefreshTokenService) now() time.Time {
	return clockx.OrSystem(s.Clock).Now()
}

func (s *RefreshTokenService) ttl(ttl time.Duration) time.Duration {
	switch {
	case ttl > 0:
		return ttl
	case s.TTL > 0:
		return s.TTL
	default:
		return DefaultRefreshTTL
	}
}

// Create mints a new active refresh token. An empty familyID starts a new
// lineage; ttl <= 0 uses the service default.
func (s *RefreshTokenService) Create(ctx context.Context, userID, familyID string, device domain.DeviceInfo, ttl time.Duration) (string, error) {
	raw, rec, err := s.newToken(userID, familyID, device, ttl, s.now())
	if err != nil {
		return "", err
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return raw, nil
}

func (s *RefreshTokenService) newToken(userID, familyID string, device domain.DeviceInfo, ttl time.Duration, now time.Time) (string, domain.RefreshToken, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.RefreshToken{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	if familyID == "" {
		familyID = idx.NewAt(now).String()
	}

	return raw, domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: cryptox.FingerprintToken(raw),
		Active:    true,
		ExpiresAt: now.Add(s.ttl(ttl)),
		CreatedAt: now,
		Device:    device,
	}, nil
}

// Rotate exchanges raw for a new token in the same lineage.
//
// Unknown, expired and revoked tokens yield ErrRefreshNotFound. Presenting a
// token that was already rotated is treated as theft: every token of the user
// is revoked and ErrReplayDetected returned. The old token is retired by compare-and-set
// in the same transaction that inserts its successor, so of two concurrent
// rotations only one can win; the loser gets ErrConflict.
//
// The successor keeps the lifetime of its predecessor, so a remember-me
// session stays long-lived across rotations. An empty device carries the
// previous device info forward.
func (s *RefreshTokenService) Rotate(ctx context.Context, raw string, device domain.DeviceInfo) (RotateResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	old, err := s.lookup(ctx, raw, now)
	if err != nil {
		return RotateResult{}, err
	}

	if !old.Active && old.RevokedAt != nil {
		// Explicitly signed out, not rotated.
		return RotateResult{}, ErrRefreshNotFound
	}
	if !old.Active {
		revoked, err := s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, old.UserID, now)
		if err != nil {
			return RotateResult{}, fmt.Errorf("failed to revoke lineage after replay: %w", err)
		}
		metrics.ReplayDetectionsTotal.Inc()
		l.Warn("refresh token replay detected",
			slog.String("user_id", old.UserID),
			slog.String("family_id", old.FamilyID),
			slog.String("token_id", old.ID),
			slog.Int64("revoked", revoked),
		)
		return RotateResult{}, ErrReplayDetected
	}

	if device == (domain.DeviceInfo{}) {
		device = old.Device
	}
	newRaw, next, err := s.newToken(old.UserID, old.FamilyID, device, old.ExpiresAt.Sub(old.CreatedAt), now)
	if err != nil {
		return RotateResult{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.RefreshTokens().DeactivateRefreshToken(ctx, old.ID, now)
		if err != nil {
			return fmt.Errorf("failed to deactivate refresh token: %w", err)
		}
		if !ok {
			return ErrConflict
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, next); err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			l.Info("concurrent refresh token rotation lost",
				slog.String("user_id", old.UserID),
				slog.String("family_id", old.FamilyID),
			)
		}
		return RotateResult{}, err
	}

	return RotateResult{Raw: newRaw, Token: next}, nil
}

// Revoke deactivates raw. Unknown or already inactive tokens are not an error.
func (s *RefreshTokenService) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(raw), s.now()); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser deactivates every active token of userID and reports how
// many there were.
func (s *RefreshTokenService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return n, nil
}

// IsActive reports whether raw is a known, active, unexpired token.
func (s *RefreshTokenService) IsActive(ctx context.Context, raw string) (bool, error) {
	tok, err := s.lookup(ctx, raw, s.now())
	if errors.Is(err, ErrRefreshNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tok.Active, nil
}

// Lookup returns the stored record behind raw.
func (s *RefreshTokenService) Lookup(ctx context.Context, raw string) (domain.RefreshToken, error) {
	return s.lookup(ctx, raw, s.now())
}

func (s *RefreshTokenService) lookup(ctx context.Context, raw string, now time.Time) (domain.RefreshToken, error) {
	if raw == "" {
		return domain.RefreshToken{}, ErrRefreshNotFound
	}
	tok, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return domain.RefreshToken{}, ErrRefreshNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if tok.Expired(now) {
		return domain.RefreshToken{}, ErrRefreshNotFound
	}
	return tok, nil
}
