package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authcore/internal/auth/domain"
	"github.com/aussiebroadwan/authcore/internal/auth/metrics"
	"github.com/aussiebroadwan/authcore/internal/auth/store"
	"github.com/aussiebroadwan/authcore/pkg/clockx"
	"github.com/aussiebroadwan/authcore/pkg/cryptox"
	"github.com/aussiebroadwan/authcore/pkg/idx"
	"github.com/aussiebroadwan/authcore/pkg/jwtx"
	"github.com/aussiebroadwan/authcore/pkg/ratelimit"
	"github.com/aussiebroadwan/authcore/pkg/rbac"
	"github.com/aussiebroadwan/authcore/pkg/slogx"
)

// DefaultRememberMeTTL is the refresh token lifetime for "remember me" logins.
const DefaultRememberMeTTL = 30 * 24 * time.Hour

// Rate limit scopes.
const (
	scopeLogin       = "login"
	scopeLoginSource = "login_src"
	scopeMFA         = "mfa"
	scopeRefresh     = "refresh"
	scopePassword    = "password"
	scopeReset       = "reset"
)

// LoginRequest carries a password login. MFACode is only consulted for users
// with MFA enabled.
type LoginRequest struct {
	Identifier string // username or email
	Password   string
	MFACode    string
	RememberMe bool
	Device     domain.DeviceInfo
}

// AuthService composes the credential, token, MFA and reset services into the
// account flows.
type AuthService struct {
	Store    store.Store
	Hasher   *cryptox.PasswordHasher
	Resolver *rbac.Resolver
	Tokens   *TokenService
	Sessions *RefreshTokenService
	MFA      *MFAService
	Resets   *PasswordResetService

	// Limiter is consulted before every password, MFA and refresh attempt.
	// Nil admits everything.
	Limiter ratelimit.Limiter

	// RememberMeTTL is the refresh lifetime for RememberMe logins.
	RememberMeTTL time.Duration

	Clock clockx.Clock

	dummyOnce sync.Once
	dummyHash string
}

func (s *AuthService) now() time.Time {
	return clockx.OrSystem(s.Clock).Now()
}

// Register creates an account with the default role and signs it in.
//
// If the account is created but the session cannot be issued, the result
// carries the new identity with empty tokens alongside the error; the caller
// should direct the user to sign in rather than register again.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, device domain.DeviceInfo) (domain.AuthResult, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateStruct(in); err != nil {
		return domain.AuthResult{}, err
	}

	hash, err := s.hash(ctx, in.Password)
	if err != nil {
		return domain.AuthResult{}, err
	}

	now := s.now()
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         rbac.DefaultRole,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.retry(ctx, "create user", func() error {
		return s.Store.Users().CreateUser(ctx, user)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.AuthResult{}, fmt.Errorf("%w: username or email already registered", ErrConflict)
	}
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	tokens, err := s.issueSession(ctx, user, device, false, nil)
	if err != nil {
		slogx.FromContext(ctx).Warn("registered user without a session",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		return domain.AuthResult{User: user.Identity()}, fmt.Errorf("account created, sign in to continue: %w", err)
	}
	return domain.AuthResult{User: user.Identity(), Tokens: tokens}, nil
}

// Login authenticates with a password and, when enabled, a second factor.
//
// A user with MFA enabled who supplies no code gets ErrMFARequired: the
// password was right but no session is granted until the login is repeated
// with a code. Without RememberMe every other session of the user is revoked
// and the refresh token gets the standard lifetime.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (domain.AuthResult, error) {
	l := slogx.FromContext(ctx)
	identifier := strings.ToLower(strings.TrimSpace(req.Identifier))
	if identifier == "" || req.Password == "" {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return domain.AuthResult{}, ErrInvalidCredentials
	}

	keys := []string{ratelimit.Key(scopeLogin, identifier)}
	if req.Device.IP != "" {
		keys = append(keys, ratelimit.Key(scopeLoginSource, req.Device.IP))
	}
	if err := s.allow(ctx, scopeLogin, keys...); err != nil {
		if errors.Is(err, ErrRateLimited) {
			metrics.LoginsTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		}
		return domain.AuthResult{}, err
	}

	user, err := s.findByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		// Burn the same time a real verification would.
		s.dummyVerify(ctx, req.Password)
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return domain.AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.AuthResult{}, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.verify(ctx, req.Password, user.PasswordHash)
	if err != nil {
		return domain.AuthResult{}, err
	}
	if !ok {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		l.Info("login failed", slog.String("user_id", user.ID), slog.String("reason", "bad_password"))
		return domain.AuthResult{}, ErrInvalidCredentials
	}
	if !user.Active {
		metrics.LoginsTotal.WithLabelValues(metrics.OutcomeInactive).Inc()
		return domain.AuthResult{}, ErrAccountInactive
	}

	amr := []string{jwtx.AMRPassword}
	if user.MFA.Status() == domain.MFAEnabled {
		if strings.TrimSpace(req.MFACode) == "" {
			metrics.LoginsTotal.WithLabelValues(metrics.OutcomeMFARequired).Inc()
			return domain.AuthResult{}, ErrMFARequired
		}
		method, err := s.verifyMFA(ctx, user.ID, req.MFACode)
		if err != nil {
			if errors.Is(err, ErrInvalidMFACode) {
				metrics.LoginsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
				l.Info("login failed", slog.String("user_id", user.ID), slog.String("reason", "bad_mfa_code"))
			}
			return domain.AuthResult{}, err
		}
		if method == domain.MFAMethodTOTP {
			amr = append(amr, jwtx.AMROTP)
		}
		amr = append(amr, jwtx.AMRMFA)
	}

	s.maybeRehash(ctx, user, req.Password)

	if !req.RememberMe {
		if _, err := s.Sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			return domain.AuthResult{}, err
		}
	}

	tokens, err := s.issueSession(ctx, user, req.Device, req.RememberMe, amr)
	if err != nil {
		return domain.AuthResult{}, err
	}

	metrics.LoginsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	l.Info("login succeeded",
		slog.String("user_id", user.ID),
		slog.Bool("remember_me", req.RememberMe),
		slog.Any("amr", amr),
	)
	return domain.AuthResult{User: user.Identity(), Tokens: tokens}, nil
}

// Refresh rotates a refresh token and pairs the successor with a new access
// token reflecting the user's current role. ErrReplayDetected means every
// session of the user has been revoked and the user must sign in again.
func (s *AuthService) Refresh(ctx context.Context, raw string, device domain.DeviceInfo) (domain.TokenPair, error) {
	source := device.IP
	if source == "" {
		source = cryptox.FingerprintToken(raw)
	}
	if err := s.allow(ctx, scopeRefresh, ratelimit.Key(scopeRefresh, source)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeRateLimited).Inc()
		}
		return domain.TokenPair{}, err
	}

	var rotated RotateResult
	err := s.retry(ctx, "rotate refresh token", func() error {
		var err error
		rotated, err = s.Sessions.Rotate(ctx, raw, device)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrReplayDetected):
		metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeReplay).Inc()
		return domain.TokenPair{}, err
	case errors.Is(err, ErrConflict):
		metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeConflict).Inc()
		return domain.TokenPair{}, err
	default:
		metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, rotated.Token.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.TokenPair{}, fmt.Errorf("failed to get user: %w", err)
	}
	if err != nil || !user.Active {
		if _, err := s.Sessions.RevokeAllForUser(ctx, rotated.Token.UserID); err != nil {
			return domain.TokenPair{}, err
		}
		metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeInactive).Inc()
		return domain.TokenPair{}, ErrAccountInactive
	}

	access, err := s.Tokens.Issue(user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	metrics.RefreshesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return domain.TokenPair{
		AccessToken:          access.Token,
		AccessTokenExpiresAt: access.ExpiresAt,
		RefreshToken:         rotated.Raw,
		TokenType:            "Bearer",
	}, nil
}

// Logout revokes the presented refresh token only.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	return s.retry(ctx, "revoke refresh token", func() error {
		return s.Sessions.Revoke(ctx, raw)
	})
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.retry(ctx, "revoke all refresh tokens", func() error {
		n, err := s.Sessions.RevokeAllForUser(ctx, userID)
		if err == nil {
			slogx.FromContext(ctx).Info("all sessions revoked",
				slog.String("user_id", userID),
				slog.Int64("revoked", n),
			)
		}
		return err
	})
}

// ChangePassword replaces the password after checking the current one, and
// signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validateStruct(changePasswordInput{Current: current, New: next}); err != nil {
		return err
	}

	user, err := s.checkPassword(ctx, userID, current)
	if err != nil {
		return err
	}

	hash, err := s.hash(ctx, next)
	if err != nil {
		return err
	}

	var revoked int64
	err = s.retry(ctx, "change password", func() error {
		now := s.now()
		return s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash, now); err != nil {
				return fmt.Errorf("failed to update password: %w", err)
			}
			var err error
			revoked, err = tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, user.ID, now)
			if err != nil {
				return fmt.Errorf("failed to revoke refresh tokens: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("password changed",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_revoked", revoked),
	)
	return nil
}

// RequestPasswordReset returns a reset token for out-of-band delivery, or ""
// when the email does not belong to an active account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	key := ratelimit.Key(scopeReset, strings.ToLower(strings.TrimSpace(email)))
	if err := s.allow(ctx, scopeReset, key); err != nil {
		return "", err
	}

	var raw string
	err := s.retry(ctx, "request password reset", func() error {
		var err error
		raw, err = s.Resets.RequestReset(ctx, email)
		return err
	})
	return raw, err
}

// RedeemPasswordReset sets a new password from a reset token and revokes
// every session of the user.
func (s *AuthService) RedeemPasswordReset(ctx context.Context, token, newPassword string) error {
	return s.retry(ctx, "redeem password reset", func() error {
		return s.Resets.Redeem(ctx, token, newPassword)
	})
}

// SetupMFA starts TOTP enrolment.
func (s *AuthService) SetupMFA(ctx context.Context, userID string) (domain.MFASetup, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return domain.MFASetup{}, err
	}
	return s.MFA.BeginSetup(ctx, userID)
}

// ConfirmMFA finishes enrolment and returns the backup codes.
func (s *AuthService) ConfirmMFA(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.allow(ctx, scopeMFA, ratelimit.Key(scopeMFA, userID)); err != nil {
		return nil, err
	}
	return s.MFA.ConfirmSetup(ctx, userID, code)
}

// VerifyMFA checks a second factor for an already authenticated user, e.g.
// step-up before a sensitive action.
func (s *AuthService) VerifyMFA(ctx context.Context, userID, code string) (domain.MFAMethod, error) {
	return s.verifyMFA(ctx, userID, code)
}

// DisableMFA turns MFA off after re-checking the password, and revokes every
// session of the user.
func (s *AuthService) DisableMFA(ctx context.Context, userID, password string) error {
	user, err := s.checkPassword(ctx, userID, password)
	if err != nil {
		return err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.MFA.DisableTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if _, err := tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, user.ID, s.now()); err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("mfa disabled", slog.String("user_id", user.ID))
	return nil
}

// RegenerateBackupCodes replaces the backup codes after a fresh second factor.
func (s *AuthService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if _, err := s.verifyMFA(ctx, userID, code); err != nil {
		return nil, err
	}
	return s.MFA.RegenerateBackupCodes(ctx, userID)
}

// MFAStatus reports the user's enrolment state.
func (s *AuthService) MFAStatus(ctx context.Context, userID string) (domain.MFAStatusReport, error) {
	return s.MFA.Status(ctx, userID)
}

// DeactivateAccount closes the account after re-checking the password. The
// row is kept; the user can no longer sign in or refresh.
func (s *AuthService) DeactivateAccount(ctx context.Context, userID, password string) error {
	user, err := s.checkPassword(ctx, userID, password)
	if err != nil {
		return err
	}

	err = s.retry(ctx, "deactivate account", func() error {
		now := s.now()
		return s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Users().SetActive(ctx, user.ID, false, now); err != nil {
				return fmt.Errorf("failed to deactivate user: %w", err)
			}
			if _, err := tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, user.ID, now); err != nil {
				return fmt.Errorf("failed to revoke refresh tokens: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("account deactivated", slog.String("user_id", user.ID))
	return nil
}

// SetRole changes the user's role. Access tokens already issued keep the old
// permissions until they expire; the next refresh picks up the new role.
func (s *AuthService) SetRole(ctx context.Context, userID, role string) error {
	if !s.Resolver.HasRole(role) {
		return fmt.Errorf("%w: %w %q", ErrValidation, rbac.ErrUnknownRole, role)
	}
	err := s.retry(ctx, "update role", func() error {
		return s.Store.Users().UpdateRole(ctx, userID, role, s.now())
	})
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	slogx.FromContext(ctx).Info("role changed", slog.String("user_id", userID), slog.String("role", role))
	return nil
}

// GetUser returns the public view of a user.
func (s *AuthService) GetUser(ctx context.Context, userID string) (domain.Identity, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}

func (s *AuthService) issueSession(ctx context.Context, user domain.User, device domain.DeviceInfo, rememberMe bool, amr []string) (domain.TokenPair, error) {
	access, err := s.Tokens.Issue(user, amr...)
	if err != nil {
		return domain.TokenPair{}, err
	}

	var ttl time.Duration // service default
	if rememberMe {
		ttl = s.RememberMeTTL
		if ttl <= 0 {
			ttl = DefaultRememberMeTTL
		}
	}

	var raw string
	err = s.retry(ctx, "create refresh token", func() error {
		var err error
		raw, err = s.Sessions.Create(ctx, user.ID, "", device, ttl)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:          access.Token,
		AccessTokenExpiresAt: access.ExpiresAt,
		RefreshToken:         raw,
		TokenType:            "Bearer",
	}, nil
}

func (s *AuthService) verifyMFA(ctx context.Context, userID, code string) (domain.MFAMethod, error) {
	if err := s.allow(ctx, scopeMFA, ratelimit.Key(scopeMFA, userID)); err != nil {
		return "", err
	}
	method, err := s.MFA.Verify(ctx, userID, code)
	if errors.Is(err, ErrInvalidMFACode) {
		slogx.FromContext(ctx).Info("mfa verification failed", slog.String("user_id", userID))
	}
	return method, err
}

func (s *AuthService) findByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	var user domain.User
	err := s.retry(ctx, "find user", func() error {
		var err error
		if strings.Contains(identifier, "@") {
			user, err = s.Store.Users().GetUserByEmail(ctx, identifier)
		} else {
			user, err = s.Store.Users().GetUserByUsername(ctx, identifier)
		}
		return err
	})
	return user, err
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Active {
		return domain.User{}, ErrAccountInactive
	}
	return user, nil
}

// checkPassword re-authenticates an active user before a sensitive change.
func (s *AuthService) checkPassword(ctx context.Context, userID, password string) (domain.User, error) {
	if err := s.allow(ctx, scopePassword, ratelimit.Key(scopePassword, userID)); err != nil {
		return domain.User{}, err
	}

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	ok, err := s.verify(ctx, password, user.PasswordHash)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// allow consults the limiter for every key. Backend failures fail closed.
func (s *AuthService) allow(ctx context.Context, scope string, keys ...string) error {
	if s.Limiter == nil {
		return nil
	}
	for _, key := range keys {
		ok, err := s.Limiter.Allow(ctx, key)
		if err != nil {
			slogx.FromContext(ctx).Error("rate limiter unavailable", slog.String("scope", scope), slog.Any("error", err))
			return fmt.Errorf("rate limit %s: %w", scope, err)
		}
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues(scope).Inc()
			return ErrRateLimited
		}
	}
	return nil
}

// retry runs fn again once if it failed with a transient store error.
func (s *AuthService) retry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if !errors.Is(err, store.ErrTransient) {
		return err
	}
	slogx.FromContext(ctx).Warn("retrying after transient store error", slog.String("op", op), slog.Any("error", err))
	if ctx.Err() != nil {
		return err
	}
	return fn()
}

func (s *AuthService) hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	hash, err := s.Hasher.Hash(ctx, password)
	metrics.PasswordHashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (s *AuthService) verify(ctx context.Context, password, hash string) (bool, error) {
	start := time.Now()
	ok, err := s.Hasher.Verify(ctx, password, hash)
	metrics.PasswordHashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to verify password: %w", err)
	}
	return ok, nil
}

// dummyVerify runs a verification against a throwaway hash so unknown
// identifiers cost as much as wrong passwords.
func (s *AuthService) dummyVerify(ctx context.Context, password string) {
	s.dummyOnce.Do(func() {
		filler, err := cryptox.GenerateToken(cryptox.TokenSize128)
		if err == nil {
			s.dummyHash, _ = s.Hasher.Hash(context.WithoutCancel(ctx), filler)
		}
	})
	if s.dummyHash != "" {
		_, _ = s.verify(ctx, password, s.dummyHash)
	}
}

// maybeRehash upgrades a hash made with older parameters after a successful
// login. Failure only costs the upgrade.
func (s *AuthService) maybeRehash(ctx context.Context, user domain.User, password string) {
	if !s.Hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hash(ctx, password)
	if err == nil {
		err = s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash, s.now())
	}
	if err != nil {
		slogx.FromContext(ctx).Warn("password rehash failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}
