package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

type refreshTokensRepo struct {
	db querier
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens
			(id, user_id, family_id, token_hash, active, expires_at, user_agent, ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash, t.Active, t.ExpiresAt,
		t.Device.UserAgent, t.Device.IP, t.CreatedAt,
	)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, family_id, token_hash, active, expires_at, revoked_at,
		       last_used_at, user_agent, ip, created_at
		FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &t.Active, &t.ExpiresAt, &t.RevokedAt,
		&t.LastUsedAt, &t.Device.UserAgent, &t.Device.IP, &t.CreatedAt)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (r *refreshTokensRepo) DeactivateRefreshToken(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET active = FALSE, last_used_at = $1 WHERE id = $2 AND active`,
		now, id)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET active = FALSE, revoked_at = $1 WHERE token_hash = $2 AND active`,
		now, hash)
	return mapErr(err)
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET active = FALSE, revoked_at = $1 WHERE user_id = $2 AND active`,
		now, userID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *refreshTokensRepo) CountActiveRefreshTokens(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND active AND expires_at > $2`,
		userID, now).Scan(&n)
	return n, mapErr(err)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}
