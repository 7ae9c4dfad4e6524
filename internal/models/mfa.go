package models

import (
	"time"
)

// MFAMethod identifies the active second factor for a user.
type MFAMethod string

const (
	MFAMethodNone  MFAMethod = "none"
	MFAMethodTOTP  MFAMethod = "totp"
	MFAMethodSMS   MFAMethod = "sms"
	MFAMethodEmail MFAMethod = "email"
)

// MFASettings holds per-user MFA configuration. Exactly one method is
// active at a time; Method is MFAMethodNone whenever Enabled is false.
type MFASettings struct {
	ID              string
	UserID          string
	Enabled         bool
	Method          MFAMethod
	TOTPSecret      *string // Base32 secret, present only when Method == totp
	TOTPVerified    bool    // true once the user has proven possession post-enrollment
	PreferredMethod MFAMethod
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasActiveTOTP reports whether a confirmed TOTP secret is on file.
func (s *MFASettings) HasActiveTOTP() bool {
	return s.Enabled && s.Method == MFAMethodTOTP && s.TOTPSecret != nil && s.TOTPVerified
}

// BackupCode is a stored one-time recovery credential. Only the SHA-256
// digest of the normalized code is persisted; the plaintext is shown to
// the user exactly once, at generation time.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// TrustedDevice is a time-bounded trust ledger entry used to skip repeated
// MFA prompts for a recognized browser. The fingerprint is heuristic and
// never treated as proof of identity on its own.
type TrustedDevice struct {
	ID                string
	UserID            string
	DeviceFingerprint string
	DeviceName        *string
	TrustedUntil      time.Time
	IsActive          bool
	LastUsedAt        *time.Time
	CreatedAt         time.Time
}

// CurrentlyTrusted reports whether the device should skip an MFA prompt now.
func (d *TrustedDevice) CurrentlyTrusted(now time.Time) bool {
	return d.IsActive && now.Before(d.TrustedUntil)
}

// EmailChallenge is a short-lived numeric code delivered over email for the
// email MFA method. Consumption follows the same single-use conditional
// update as backup codes.
type EmailChallenge struct {
	ID        string
	UserID    string
	CodeHash  string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// MFAAttempt records a verification attempt for rate limiting and audit.
type MFAAttempt struct {
	ID                string
	UserID            string
	AttemptType       string // "totp", "backup", "email"
	DeviceFingerprint string
	IPAddress         string
	Success           bool
	FailureReason     *string
	AttemptedAt       time.Time
}

// Attempt types recorded on verification.
const (
	AttemptTypeTOTP   = "totp"
	AttemptTypeBackup = "backup"
	AttemptTypeEmail  = "email"
)

// MFAStatus is the read-model returned to callers asking about a user's
// MFA posture. It never includes secrets or code material.
type MFAStatus struct {
	Enabled              bool            `json:"enabled"`
	Method               MFAMethod       `json:"method"`
	TOTPVerified         bool            `json:"totp_verified"`
	BackupCodesRemaining int             `json:"backup_codes_remaining"`
	TrustedDevices       []TrustedDevice `json:"trusted_devices"`
	LastUsedAt           *time.Time      `json:"last_used_at"`
}
