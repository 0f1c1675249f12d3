package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/jackc/pgx/v5"
)

type usersRepo struct {
	db querier
}

const userColumns = `id, username, email, password_hash, role, active, mfa_secret, mfa_enabled_at, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u      domain.User
		secret *string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&secret, &u.MFA.EnabledAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	if secret != nil {
		u.MFA.Secret = *secret
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	var secret *string
	if u.MFA.Secret != "" {
		secret = &u.MFA.Secret
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		u.ID, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.Role, u.Active,
		secret, u.MFA.EnabledAt, u.CreatedAt, u.UpdatedAt,
	)
	return mapErr(err)
}

// exec runs an UPDATE that must touch exactly one row.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, now, userID)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`,
		active, now, userID)
}

func (r *usersRepo) UpdateRole(ctx context.Context, userID, role string, now time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`,
		role, now, userID)
}

func (r *usersRepo) SetMFASecret(ctx context.Context, userID, sealedSecret string, now time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_secret = $1, mfa_enabled_at = NULL, updated_at = $2 WHERE id = $3`,
		sealedSecret, now, userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, now time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET mfa_enabled_at = $1, updated_at = $1
		WHERE id = $2 AND mfa_secret IS NOT NULL AND mfa_enabled_at IS NULL`,
		now, userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string, now time.Time) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = $1 WHERE id = $2`,
		now, userID)
}
