package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/repositories"
)

// PlaintextCode is a freshly generated recovery code. It is a distinct
// type from the stored digest so plaintext codes cannot be persisted or
// logged by accident; they cross the API boundary exactly once, at
// generation time.
type PlaintextCode string

// AuditRecorder is the audit sink consumed by the MFA services.
type AuditRecorder interface {
	Record(ctx context.Context, userID, eventType, eventCategory, severity string, details models.AuditDetails)
}

// BackupCodeVault issues, hashes, and consumes one-time recovery codes.
type BackupCodeVault struct {
	repo   repositories.BackupCodeRepository
	audit  AuditRecorder
	logger *slog.Logger
	count  int
}

// NewBackupCodeVault creates a vault issuing batches of count codes.
func NewBackupCodeVault(repo repositories.BackupCodeRepository, audit AuditRecorder, logger *slog.Logger, count int) *BackupCodeVault {
	return &BackupCodeVault{
		repo:   repo,
		audit:  audit,
		logger: logger,
		count:  count,
	}
}

// GenerateCodes produces a batch of recovery codes, each 4 random bytes
// rendered as 8 uppercase hex characters and hyphenated XXXX-XXXX for
// readability.
func GenerateCodes(count int) ([]PlaintextCode, error) {
	codes := make([]PlaintextCode, count)
	for i := range codes {
		raw := make([]byte, 4)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		hexCode := strings.ToUpper(hex.EncodeToString(raw))
		codes[i] = PlaintextCode(hexCode[:4] + "-" + hexCode[4:])
	}
	return codes, nil
}

// HashCode normalizes a code (hyphens stripped, lowercased) and digests it
// with SHA-256, so the stored hash is independent of how the user retypes
// formatting or case.
func HashCode(code string) string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LooksLikeBackupCode reports whether input has the 8-hex-digit shape of a
// recovery code (hyphens and case ignored). Used to route verification
// fallback.
func LooksLikeBackupCode(input string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(input), "-", ""))
	if len(normalized) != 8 {
		return false
	}
	for _, r := range normalized {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Consume attempts to spend a submitted code. The repository performs the
// conditional update, so concurrent submissions of the same code cannot
// both succeed. Every attempt is audited; a successful consumption is
// recorded at warning severity since a backup code is a weaker signal
// than TOTP.
func (v *BackupCodeVault) Consume(ctx context.Context, userID, submitted string) (bool, error) {
	ok, err := v.repo.Consume(ctx, userID, HashCode(submitted))
	if err != nil {
		return false, fmt.Errorf("backup code consumption failed: %w", err)
	}

	if ok {
		v.audit.Record(ctx, userID, models.AuditEventBackupConsume, models.AuditCategoryMFA,
			models.AuditSeverityWarning, models.AuditDetails{"attempt_type": models.AttemptTypeBackup})
		v.logger.InfoContext(ctx, "backup code consumed", slog.String("user_id", userID))
	}

	return ok, nil
}

// Regenerate replaces the user's batch wholesale; previously issued codes
// become permanently unusable even if unused.
func (v *BackupCodeVault) Regenerate(ctx context.Context, userID string) ([]PlaintextCode, error) {
	codes, err := GenerateCodes(v.count)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = HashCode(string(c))
	}

	if err := v.repo.Replace(ctx, userID, hashes); err != nil {
		return nil, fmt.Errorf("failed to replace backup codes: %w", err)
	}

	v.audit.Record(ctx, userID, models.AuditEventBackupRegen, models.AuditCategoryMFA,
		models.AuditSeverityInfo, models.AuditDetails{"count": len(codes)})

	return codes, nil
}

// Remaining returns the number of unused codes for a user.
func (v *BackupCodeVault) Remaining(ctx context.Context, userID string) (int, error) {
	return v.repo.CountRemaining(ctx, userID)
}
