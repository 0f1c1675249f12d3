package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens
			(id, user_id, family_id, token_hash, active, expires_at, user_agent, ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash, t.Active, millis(t.ExpiresAt),
		t.Device.UserAgent, t.Device.IP, millis(t.CreatedAt),
	)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                     domain.RefreshToken
		expiresAt, createdAt  int64
		revokedAt, lastUsedAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, family_id, token_hash, active, expires_at, revoked_at,
		       last_used_at, user_agent, ip, created_at
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &t.Active, &expiresAt, &revokedAt,
		&lastUsedAt, &t.Device.UserAgent, &t.Device.IP, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}

	t.ExpiresAt = fromMillis(expiresAt)
	t.RevokedAt = timePtr(revokedAt)
	t.LastUsedAt = timePtr(lastUsedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) DeactivateRefreshToken(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET active = 0, last_used_at = ? WHERE id = ? AND active = 1`,
		millis(now), id)
	if err != nil {
		return false, mapErr(err)
	}
	return affected(res)
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET active = 0, revoked_at = ? WHERE token_hash = ? AND active = 1`,
		millis(now), hash)
	return mapErr(err)
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET active = 0, revoked_at = ? WHERE user_id = ? AND active = 1`,
		millis(now), userID)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) CountActiveRefreshTokens(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ? AND active = 1 AND expires_at > ?`,
		userID, millis(now)).Scan(&n)
	return n, mapErr(err)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, millis(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}
