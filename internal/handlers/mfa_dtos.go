package handlers

import (
	"time"

	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/models"
)

// Enrollment DTOs

// EnrollTOTPRequest starts TOTP enrollment. The account label appears in
// the user's authenticator app next to the issuer.
type EnrollTOTPRequest struct {
	AccountLabel string `json:"account_label" validate:"required,email"`
}

// EnrollTOTPResponse carries the pending secret and provisioning material.
// Nothing is persisted until the secret is confirmed.
type EnrollTOTPResponse struct {
	Secret          string `json:"secret"`           // Base32, for manual entry
	ProvisioningURI string `json:"provisioning_uri"` // otpauth:// URI
	QRCode          string `json:"qr_code"`          // PNG data URL
}

// ConfirmTOTPRequest proves possession of the pending secret.
type ConfirmTOTPRequest struct {
	Secret string `json:"secret" validate:"required,max=128"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// ConfirmTOTPResponse returns the one-time display of the backup codes.
type ConfirmTOTPResponse struct {
	Enabled     bool     `json:"enabled"`
	BackupCodes []string `json:"backup_codes"`
}

// Verification DTOs

// VerifyRequest submits a code during a step-up or login challenge. Code
// may be a 6-digit TOTP/email code or an 8-character backup code.
type VerifyRequest struct {
	Code        string             `json:"code" validate:"required,max=20"`
	TrustDevice bool               `json:"trust_device"`
	DeviceName  *string            `json:"device_name,omitempty" validate:"omitempty,max=255"`
	Signals     auth.DeviceSignals `json:"signals"`
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Verified      bool `json:"verified"`
	DeviceTrusted bool `json:"device_trusted"`
}

// Disable DTOs

// DisableMFARequest requires fresh proof of the primary credential.
type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
}

// DisableMFAResponse confirms MFA teardown.
type DisableMFAResponse struct {
	Success    bool `json:"success"`
	MFAEnabled bool `json:"mfa_enabled"`
}

// RegenerateBackupCodesResponse is the one-time display of a fresh batch.
type RegenerateBackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// EmailChallengeRequest asks for a code to be delivered over email.
type EmailChallengeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Status DTOs

// MFAStatusResponse shows current MFA posture; never includes secrets.
type MFAStatusResponse struct {
	Enabled              bool               `json:"enabled"`
	Method               string             `json:"method"`
	TOTPVerified         bool               `json:"totp_verified"`
	BackupCodesRemaining int                `json:"backup_codes_remaining"`
	TrustedDevices       []TrustedDeviceDTO `json:"trusted_devices"`
	LastUsedAt           *time.Time         `json:"last_used_at"`
}

// TrustedDeviceDTO represents one device ledger entry. The fingerprint is
// not echoed back.
type TrustedDeviceDTO struct {
	ID           string     `json:"id"`
	DeviceName   *string    `json:"device_name"`
	TrustedUntil time.Time  `json:"trusted_until"`
	IsActive     bool       `json:"is_active"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// CheckDeviceRequest asks whether the current browser is trusted.
type CheckDeviceRequest struct {
	Signals auth.DeviceSignals `json:"signals"`
}

// CheckDeviceResponse reports whether the MFA prompt can be skipped.
type CheckDeviceResponse struct {
	Trusted bool `json:"trusted"`
}

func deviceToDTO(d models.TrustedDevice) TrustedDeviceDTO {
	return TrustedDeviceDTO{
		ID:           d.ID,
		DeviceName:   d.DeviceName,
		TrustedUntil: d.TrustedUntil,
		IsActive:     d.IsActive,
		LastUsedAt:   d.LastUsedAt,
		CreatedAt:    d.CreatedAt,
	}
}

func statusToResponse(s *models.MFAStatus) MFAStatusResponse {
	devices := make([]TrustedDeviceDTO, len(s.TrustedDevices))
	for i, d := range s.TrustedDevices {
		devices[i] = deviceToDTO(d)
	}
	return MFAStatusResponse{
		Enabled:              s.Enabled,
		Method:               string(s.Method),
		TOTPVerified:         s.TOTPVerified,
		BackupCodesRemaining: s.BackupCodesRemaining,
		TrustedDevices:       devices,
		LastUsedAt:           s.LastUsedAt,
	}
}
