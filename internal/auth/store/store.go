package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrTransient marks a failure that may succeed on retry (lock timeouts,
	// serialization failures, dropped connections).
	ErrTransient = errors.New("store: transient failure")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories hang off the Store so that a Tx hands out
// the same repositories bound to the transaction, and nested transactions are
// refused.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	ResetTokens() ResetTokens
	BackupCodes() BackupCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Inside fn only tx may be used; the sqlite
	// driver has a single connection and the outer Store would block.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail matches case-insensitively; emails are stored lower-cased.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	SetActive(ctx context.Context, userID string, active bool, now time.Time) error

	UpdateRole(ctx context.Context, userID, role string, now time.Time) error

	// SetMFASecret stores a new sealed secret and clears any enabled_at, which
	// puts the user in the pending state.
	SetMFASecret(ctx context.Context, userID, sealedSecret string, now time.Time) error

	// EnableMFA only succeeds from the pending state; otherwise ErrNotFound.
	EnableMFA(ctx context.Context, userID string, now time.Time) error

	// DisableMFA clears both the secret and enabled_at.
	DisableMFA(ctx context.Context, userID string, now time.Time) error
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeactivateRefreshToken is the rotation compare-and-set: it flips
	// active true→false and stamps last_used_at. It reports false when the
	// row was already inactive.
	DeactivateRefreshToken(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeRefreshToken deactivates by hash and stamps revoked_at. Revoking
	// an inactive or unknown token is not an error.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) error

	// RevokeAllUserRefreshTokens returns how many active tokens were revoked.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)

	CountActiveRefreshTokens(ctx context.Context, userID string, now time.Time) (int, error)

	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type ResetTokens interface {
	CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error

	GetResetTokenByHash(ctx context.Context, hash string) (domain.PasswordResetToken, error)

	// MarkResetTokenUsed sets used_at only if it is unset and the token has
	// not expired. It reports false otherwise.
	MarkResetTokenUsed(ctx context.Context, id string, now time.Time) (bool, error)

	DeleteUserResetTokens(ctx context.Context, userID string) error

	// DeleteExpiredResetTokens removes expired and used tokens.
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type BackupCodes interface {
	CreateBackupCode(ctx context.Context, userID, codeHash string) error

	// ConsumeBackupCode deletes the code and reports whether it existed, so
	// two concurrent uses of the same code cannot both succeed.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)

	DeleteAllBackupCodes(ctx context.Context, userID string) error

	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}
