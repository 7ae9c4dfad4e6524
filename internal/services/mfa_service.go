package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/otp"
	"github.com/stallmarket/bastion/internal/repositories"
)

// ReauthVerifier re-proves the caller's identity before security-lowering
// operations. The host application owns the primary credential; this core
// only demands the proof.
type ReauthVerifier interface {
	VerifyReauth(ctx context.Context, userID, proof string) (bool, error)
}

// MFAConfig holds MFA orchestration configuration
type MFAConfig struct {
	VerifyWindow  int
	MaxAttempts   int
	AttemptWindow time.Duration
}

// EnrollmentResult is returned from EnrollTOTP. The secret is pending: it
// is shown to the user for authenticator setup but not persisted until
// ConfirmTOTP proves possession.
type EnrollmentResult struct {
	Secret          string
	ProvisioningURI string
	QRCode          string
}

// MFAService orchestrates enrollment, verification, and teardown of a
// user's second factor, tying the TOTP engine, backup vault, trusted
// devices, and email challenges together.
type MFAService struct {
	settingsRepo repositories.MFASettingsRepository
	attemptRepo  repositories.MFAAttemptRepository
	vault        *BackupCodeVault
	devices      *TrustedDeviceService
	challenges   *EmailChallengeService
	engine       *otp.Engine
	reauth       ReauthVerifier
	timing       *auth.TimingDelay
	audit        AuditRecorder
	logger       *slog.Logger
	config       MFAConfig
}

// NewMFAService creates a new MFA orchestrator
func NewMFAService(
	settingsRepo repositories.MFASettingsRepository,
	attemptRepo repositories.MFAAttemptRepository,
	vault *BackupCodeVault,
	devices *TrustedDeviceService,
	challenges *EmailChallengeService,
	engine *otp.Engine,
	reauth ReauthVerifier,
	timing *auth.TimingDelay,
	audit AuditRecorder,
	logger *slog.Logger,
	config MFAConfig,
) *MFAService {
	return &MFAService{
		settingsRepo: settingsRepo,
		attemptRepo:  attemptRepo,
		vault:        vault,
		devices:      devices,
		challenges:   challenges,
		engine:       engine,
		reauth:       reauth,
		timing:       timing,
		audit:        audit,
		logger:       logger,
		config:       config,
	}
}

// EnrollTOTP begins enrollment: it generates a secret and provisioning
// material but persists nothing. The secret exists only as pending state
// held by the caller until ConfirmTOTP.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID, accountLabel string) (*EnrollmentResult, error) {
	settings, err := s.settingsRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.Enabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	secret, err := s.engine.GenerateSecret(0)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	uri, err := s.engine.ProvisioningURI(accountLabel, secret)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	qr, err := s.engine.QRCodeDataURL(uri)
	if err != nil {
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, userID, models.AuditEventMFAEnroll, models.AuditCategoryMFA,
		models.AuditSeverityInfo, models.AuditDetails{"method": string(models.MFAMethodTOTP)})

	return &EnrollmentResult{Secret: secret, ProvisioningURI: uri, QRCode: qr}, nil
}

// ConfirmTOTP completes enrollment. The code must verify against the
// pending secret; on success the secret, enabled flag, and a fresh
// backup-code batch are persisted in one transaction and the plaintext
// codes are returned for their one-time display. On verification failure
// nothing is persisted and the pending secret is discarded.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, secret, code string) ([]PlaintextCode, error) {
	if secret == "" {
		// Caller error: confirming without a pending enrollment.
		return nil, models.ErrMFANoPendingSecret
	}

	settings, err := s.settingsRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if settings.Enabled {
		return nil, models.ErrMFAAlreadyEnabled
	}

	if !s.engine.VerifyCode(secret, code, time.Now(), s.config.VerifyWindow) {
		s.recordAttempt(ctx, userID, models.AttemptTypeTOTP, "", "", false, strPtr("invalid_code"))
		return nil, models.ErrMFAInvalidCode
	}

	codes, err := GenerateCodes(s.vault.count)
	if err != nil {
		return nil, models.ErrInternalServer
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashCode(string(c))
	}

	if err := s.settingsRepo.ConfirmTOTP(ctx, userID, secret, hashes); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist enrollment", slog.Any("error", err))
		return nil, err
	}

	s.audit.Record(ctx, userID, models.AuditEventMFAConfirm, models.AuditCategoryMFA,
		models.AuditSeverityInfo, models.AuditDetails{
			"method":       string(models.MFAMethodTOTP),
			"backup_codes": len(codes),
		})

	return codes, nil
}

// Disable tears MFA down after the caller re-proves identity. The settings
// row, backup codes, email challenges, and device trust all fall together.
// Disabling MFA is security-lowering, so the audit event carries warning
// severity.
func (s *MFAService) Disable(ctx context.Context, userID, reauthProof string) error {
	if reauthProof == "" {
		return models.ErrReauthRequired
	}

	ok, err := s.reauth.VerifyReauth(ctx, userID, reauthProof)
	if err != nil {
		return fmt.Errorf("re-authentication check failed: %w", err)
	}
	if !ok {
		return models.ErrUnauthorized
	}

	if err := s.settingsRepo.Disable(ctx, userID); err != nil {
		return err
	}

	if err := s.devices.RevokeAll(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke trusted devices", slog.Any("error", err))
	}

	s.audit.Record(ctx, userID, models.AuditEventMFADisable, models.AuditCategoryMFA,
		models.AuditSeverityWarning, nil)

	return nil
}

// Verify checks a submitted code against the user's active factor: TOTP
// first when a confirmed secret exists, falling back to backup-code
// consumption when the input has the recovery-code shape. Every call
// records an attempt regardless of outcome. Verification failure is a
// normal false result, not an error. Failed outcomes are padded to a
// uniform response time.
func (s *MFAService) Verify(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
	start := time.Now()
	ok, err := s.verify(ctx, userID, code, fingerprint, ipAddress)
	if s.timing != nil {
		s.timing.WaitFrom(start, ok && err == nil)
	}
	return ok, err
}

func (s *MFAService) verify(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
	settings, err := s.settingsRepo.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	if !settings.Enabled {
		return false, models.ErrMFANotEnabled
	}

	failed, err := s.attemptRepo.GetFailedAttemptCount(ctx, userID, time.Now().Add(-s.config.AttemptWindow))
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if failed >= s.config.MaxAttempts {
		s.recordAttempt(ctx, userID, s.attemptType(settings), fingerprint, ipAddress, false, strPtr("rate_limited"))
		return false, models.ErrMFARateLimited
	}

	switch settings.Method {
	case models.MFAMethodTOTP:
		if settings.HasActiveTOTP() &&
			s.engine.VerifyCode(*settings.TOTPSecret, code, time.Now(), s.config.VerifyWindow) {
			s.markVerified(ctx, userID)
			s.recordAttempt(ctx, userID, models.AttemptTypeTOTP, fingerprint, ipAddress, true, nil)
			return true, nil
		}

	case models.MFAMethodEmail:
		if s.challenges != nil {
			ok, err := s.challenges.Verify(ctx, userID, code)
			if err != nil {
				return false, err
			}
			if ok {
				s.markVerified(ctx, userID)
				s.recordAttempt(ctx, userID, models.AttemptTypeEmail, fingerprint, ipAddress, true, nil)
				return true, nil
			}
		}

	case models.MFAMethodSMS:
		// No SMS provider is wired; the method exists in the data model
		// but cannot verify.
		return false, models.ErrMFAMethodUnavailable
	}

	// Backup-code fallback for inputs shaped like a recovery code.
	if LooksLikeBackupCode(code) {
		ok, err := s.vault.Consume(ctx, userID, code)
		if err != nil {
			return false, err
		}
		if ok {
			s.markVerified(ctx, userID)
			s.recordAttempt(ctx, userID, models.AttemptTypeBackup, fingerprint, ipAddress, true, nil)
			return true, nil
		}
		s.recordAttempt(ctx, userID, models.AttemptTypeBackup, fingerprint, ipAddress, false, strPtr("invalid_code"))
		return false, nil
	}

	s.recordAttempt(ctx, userID, s.attemptType(settings), fingerprint, ipAddress, false, strPtr("invalid_code"))
	return false, nil
}

// RegenerateBackupCodes replaces the batch for an enabled user.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string) ([]PlaintextCode, error) {
	settings, err := s.settingsRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		return nil, models.ErrMFANotEnabled
	}

	return s.vault.Regenerate(ctx, userID)
}

// Status reports the user's MFA posture without exposing any secrets.
func (s *MFAService) Status(ctx context.Context, userID string) (*models.MFAStatus, error) {
	settings, err := s.settingsRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.MFAStatus{
		Enabled:      settings.Enabled,
		Method:       settings.Method,
		TOTPVerified: settings.TOTPVerified,
		LastUsedAt:   settings.LastUsedAt,
	}

	if settings.Enabled {
		remaining, err := s.vault.Remaining(ctx, userID)
		if err != nil {
			return nil, err
		}
		status.BackupCodesRemaining = remaining

		devices, err := s.devices.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		status.TrustedDevices = devices
	}

	return status, nil
}

func (s *MFAService) attemptType(settings *models.MFASettings) string {
	switch settings.Method {
	case models.MFAMethodEmail:
		return models.AttemptTypeEmail
	default:
		return models.AttemptTypeTOTP
	}
}

func (s *MFAService) markVerified(ctx context.Context, userID string) {
	if err := s.settingsRepo.UpdateLastUsedAt(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "failed to update last used at", slog.Any("error", err))
	}
}

func (s *MFAService) recordAttempt(ctx context.Context, userID, attemptType, fingerprint, ipAddress string, success bool, failureReason *string) {
	attempt := &models.MFAAttempt{
		UserID:            userID,
		AttemptType:       attemptType,
		DeviceFingerprint: fingerprint,
		IPAddress:         ipAddress,
		Success:           success,
		FailureReason:     failureReason,
	}

	if err := s.attemptRepo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.ErrorContext(ctx, "failed to record MFA attempt", slog.Any("error", err))
	}

	s.audit.Record(ctx, userID, models.AuditEventMFAVerify, models.AuditCategoryMFA,
		models.AuditSeverityInfo, models.AuditDetails{
			"attempt_type": attemptType,
			"success":      success,
		})
}

func strPtr(s string) *string { return &s }
