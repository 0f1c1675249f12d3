package service

import "errors"

// Errors returned by the auth services. Callers match with errors.Is; the
// string forms double as API error codes.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountInactive    = errors.New("account_inactive")
	ErrMFARequired        = errors.New("mfa_required")
	ErrInvalidMFACode     = errors.New("invalid_mfa_code")

	ErrTokenExpired = errors.New("token_expired")
	ErrTokenInvalid = errors.New("token_invalid")

	// ErrReplayDetected means an already rotated refresh token was presented.
	// Every session of the user has been revoked by the time it is returned.
	ErrReplayDetected = errors.New("refresh_token_replay_detected")

	// ErrRefreshNotFound covers unknown and expired refresh tokens alike.
	ErrRefreshNotFound = errors.New("refresh_token_not_found")

	// ErrConflict is a uniqueness violation, or a lost race on a
	// compare-and-set (two rotations of the same token).
	ErrConflict = errors.New("conflict")

	ErrRateLimited                = errors.New("rate_limited")
	ErrInvalidOrExpiredResetToken = errors.New("invalid_or_expired_reset_token")
	ErrValidation                 = errors.New("validation_failed")

	ErrMFANotEnabled     = errors.New("mfa_not_enabled")
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotPending     = errors.New("mfa_setup_not_started")
)
