package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

type resetTokensRepo struct {
	db dbtx
}

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, millis(t.ExpiresAt), millis(t.CreatedAt))
	return mapErr(err)
}

func (r *resetTokensRepo) GetResetTokenByHash(ctx context.Context, hash string) (domain.PasswordResetToken, error) {
	var (
		t                    domain.PasswordResetToken
		expiresAt, createdAt int64
		usedAt               sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_reset_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &expiresAt, &usedAt, &createdAt)
	if err != nil {
		return domain.PasswordResetToken{}, mapErr(err)
	}

	t.ExpiresAt = fromMillis(expiresAt)
	t.UsedAt = timePtr(usedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *resetTokensRepo) MarkResetTokenUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE password_reset_tokens SET used_at = ?
		WHERE id = ? AND used_at IS NULL AND expires_at > ?`,
		millis(now), id, millis(now))
	if err != nil {
		return false, mapErr(err)
	}
	return affected(res)
}

func (r *resetTokensRepo) DeleteUserResetTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = ?`, userID)
	return mapErr(err)
}

func (r *resetTokensRepo) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= ? OR used_at IS NOT NULL`, millis(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}
