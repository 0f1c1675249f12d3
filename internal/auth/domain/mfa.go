package domain

import "time"

type MFAStatus string

const (
	MFAUnset               MFAStatus = "unset"
	MFAPendingVerification MFAStatus = "pending_verification"
	MFAEnabled             MFAStatus = "enabled"
)

// MFAState is the TOTP enrolment of a user. Secret is sealed at rest.
type MFAState struct {
	Secret    string
	EnabledAt *time.Time
}

func (s MFAState) Status() MFAStatus {
	switch {
	case s.Secret == "":
		return MFAUnset
	case s.EnabledAt == nil:
		return MFAPendingVerification
	default:
		return MFAEnabled
	}
}

// MFASetup is handed to the user once, at the start of enrolment. Backup
// codes follow on confirmation.
type MFASetup struct {
	Secret string `json:"secret"`      // base32, for manual entry
	URL    string `json:"otpauth_url"` // otpauth:// URI for QR rendering
}

type MFAStatusReport struct {
	Status               MFAStatus  `json:"status"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// MFAMethod records which factor satisfied a verification.
type MFAMethod string

const (
	MFAMethodTOTP       MFAMethod = "totp"
	MFAMethodBackupCode MFAMethod = "backup_code"
)
