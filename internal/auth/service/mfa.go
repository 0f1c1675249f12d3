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
	"github.com/aussiebroadwan/authcore/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeCount = 10 // Number of backup codes to generate

	totpPeriod = 30
	totpSkew   = 1 // accept one step either side
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// MFAService runs the TOTP enrolment state machine:
// Unset → PendingVerification → Enabled → Unset.
type MFAService struct {
	Store  store.Store
	Sealer *cryptox.Sealer // secrets are sealed at rest, bound to the user ID
	Issuer string          // Issuer shown in authenticator apps
	Clock  clockx.Clock
}

func (s *MFAService) now() time.Time {
	return clockx.OrSystem(s.Clock).Now()
}

// BeginSetup generates a fresh secret and stores it pending verification.
// Starting over while pending replaces the previous secret.
func (s *MFAService) BeginSetup(ctx context.Context, userID string) (domain.MFASetup, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFA.Status() == domain.MFAEnabled {
		return domain.MFASetup{}, ErrMFAAlreadyEnabled
	}

	// Generate TOTP key
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := s.Sealer.Seal([]byte(key.Secret()), []byte(userID))
	if err != nil {
		return domain.MFASetup{}, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}

	// Store the secret, but don't enable MFA yet
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if err := tx.Users().SetMFASecret(ctx, userID, sealed, s.now()); err != nil {
			return fmt.Errorf("failed to store MFA secret: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.MFASetup{}, err
	}

	return domain.MFASetup{
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// ConfirmSetup proves possession of the pending secret and enables MFA. The
// returned backup codes are the only time they exist in clear text.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID, code string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	switch user.MFA.Status() {
	case domain.MFAEnabled:
		return nil, ErrMFAAlreadyEnabled
	case domain.MFAUnset:
		return nil, ErrMFANotPending
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidMFACode
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	// Store backup codes and enable MFA in a transaction
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := replaceBackupCodes(ctx, tx, userID, codes); err != nil {
			return err
		}
		if err := tx.Users().EnableMFA(ctx, userID, s.now()); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Setup was restarted or confirmed concurrently.
				return ErrMFANotPending
			}
			return fmt.Errorf("failed to enable MFA: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("mfa enabled", slog.String("user_id", userID))
	return codes, nil
}

// Verify checks a second factor for a user with MFA enabled. A matching
// backup code is consumed; otherwise code is checked as TOTP.
func (s *MFAService) Verify(ctx context.Context, userID, code string) (domain.MFAMethod, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFA.Status() != domain.MFAEnabled {
		return "", ErrMFANotEnabled
	}

	if normalised := cryptox.NormalizeBackupCode(code); normalised != "" {
		consumed, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, userID, cryptox.FingerprintToken(normalised))
		if err != nil {
			return "", fmt.Errorf("failed to consume backup code: %w", err)
		}
		if consumed {
			metrics.MFAVerificationsTotal.WithLabelValues(string(domain.MFAMethodBackupCode), metrics.OutcomeSuccess).Inc()
			slogx.FromContext(ctx).Info("backup code consumed", slog.String("user_id", userID))
			return domain.MFAMethodBackupCode, nil
		}
	}

	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return "", err
	}
	if !ok {
		metrics.MFAVerificationsTotal.WithLabelValues("none", metrics.OutcomeFailure).Inc()
		return "", ErrInvalidMFACode
	}

	metrics.MFAVerificationsTotal.WithLabelValues(string(domain.MFAMethodTOTP), metrics.OutcomeSuccess).Inc()
	return domain.MFAMethodTOTP, nil
}

// Disable clears the secret and backup codes. A pending setup may be
// abandoned this way too.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return s.DisableTx(ctx, tx, userID)
	})
}

// DisableTx is Disable inside the caller's transaction, so other writes can
// commit or roll back together with it.
func (s *MFAService) DisableTx(ctx context.Context, tx store.Tx, userID string) error {
	user, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFA.Status() == domain.MFAUnset {
		return ErrMFANotEnabled
	}

	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	if err := tx.Users().DisableMFA(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("failed to disable MFA: %w", err)
	}
	return nil
}

// RegenerateBackupCodes atomically replaces the backup code set.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.MFA.Status() != domain.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	codes, err := generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return replaceBackupCodes(ctx, tx, userID, codes)
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// Status reports the enrolment state and how many backup codes remain.
func (s *MFAService) Status(ctx context.Context, userID string) (domain.MFAStatusReport, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAStatusReport{}, fmt.Errorf("failed to get user: %w", err)
	}

	report := domain.MFAStatusReport{
		Status:    user.MFA.Status(),
		EnabledAt: user.MFA.EnabledAt,
	}
	if report.Status == domain.MFAEnabled {
		n, err := s.Store.BackupCodes().CountUserBackupCodes(ctx, userID)
		if err != nil {
			return domain.MFAStatusReport{}, fmt.Errorf("failed to count backup codes: %w", err)
		}
		report.BackupCodesRemaining = n
	}
	return report, nil
}

// checkTOTP opens the sealed secret and validates code against it.
func (s *MFAService) checkTOTP(user domain.User, code string) (bool, error) {
	secret, err := s.Sealer.Open(user.MFA.Secret, []byte(user.ID))
	if err != nil {
		return false, fmt.Errorf("failed to open TOTP secret: %w", err)
	}

	ok, err := totp.ValidateCustom(code, string(secret), s.now(), totpOpts)
	if err != nil {
		// Malformed input, e.g. wrong length. Treated as a wrong code.
		return false, nil
	}
	return ok, nil
}

func generateBackupCodes() ([]string, error) {
	codes := make([]string, backupCodeCount)
	for i := range backupCodeCount {
		code, err := cryptox.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
	}
	return codes, nil
}

// replaceBackupCodes swaps the user's codes for codes, stored as fingerprints.
func replaceBackupCodes(ctx context.Context, tx store.Tx, userID string, codes []string) error {
	if err := tx.BackupCodes().DeleteAllBackupCodes(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete old backup codes: %w", err)
	}
	for _, code := range codes {
		hash := cryptox.FingerprintToken(cryptox.NormalizeBackupCode(code))
		if err := tx.BackupCodes().CreateBackupCode(ctx, userID, hash); err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}
