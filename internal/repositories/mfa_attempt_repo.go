package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/models"
)

// MFAAttemptRepository defines MFA verification attempt persistence. Every
// verification call records an attempt regardless of outcome; the failed
// count feeds rate limiting.
type MFAAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.MFAAttempt) error
	GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteExpiredAttempts(ctx context.Context, threshold time.Time) error
}

// mfaAttemptRepoImpl implements MFAAttemptRepository
type mfaAttemptRepoImpl struct {
	db *database.DB
}

// NewMFAAttemptRepository creates a new MFA attempt repository
func NewMFAAttemptRepository(db *database.DB) MFAAttemptRepository {
	return &mfaAttemptRepoImpl{db: db}
}

// RecordAttempt records a verification attempt
func (r *mfaAttemptRepoImpl) RecordAttempt(ctx context.Context, attempt *models.MFAAttempt) error {
	query := `
		INSERT INTO mfa_attempts
			(user_id, attempt_type, device_fingerprint, ip_address, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, attempted_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.UserID,
		attempt.AttemptType,
		attempt.DeviceFingerprint,
		attempt.IPAddress,
		attempt.Success,
		attempt.FailureReason,
	).Scan(&attempt.ID, &attempt.AttemptedAt)

	if err != nil {
		return fmt.Errorf("failed to record MFA attempt: %w", err)
	}

	return nil
}

// GetFailedAttemptCount counts failed attempts for a user since the cutoff
func (r *mfaAttemptRepoImpl) GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM mfa_attempts
		WHERE user_id = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get failed attempt count: %w", err)
	}

	return count, nil
}

// DeleteExpiredAttempts prunes attempt rows older than the threshold
func (r *mfaAttemptRepoImpl) DeleteExpiredAttempts(ctx context.Context, threshold time.Time) error {
	query := `DELETE FROM mfa_attempts WHERE attempted_at < $1`

	if _, err := r.db.Pool.Exec(ctx, query, threshold); err != nil {
		return fmt.Errorf("failed to delete expired attempts: %w", err)
	}
	return nil
}
