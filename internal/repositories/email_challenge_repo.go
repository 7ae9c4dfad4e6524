package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/stallmarket/bastion/internal/database"
)

// EmailChallengeRepository stores short-lived email-method challenges.
// Consumption uses the same conditional-update pattern as backup codes.
type EmailChallengeRepository interface {
	Create(ctx context.Context, userID, codeHash string, expiresAt time.Time) error
	Consume(ctx context.Context, userID, codeHash string) (bool, error)
	DeleteExpired(ctx context.Context) error
}

// emailChallengeRepoImpl implements EmailChallengeRepository
type emailChallengeRepoImpl struct {
	db *database.DB
}

// NewEmailChallengeRepository creates a new email challenge repository
func NewEmailChallengeRepository(db *database.DB) EmailChallengeRepository {
	return &emailChallengeRepoImpl{db: db}
}

// Create stores a challenge digest, superseding any outstanding one so a
// user has at most one live challenge.
func (r *emailChallengeRepoImpl) Create(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO mfa_email_challenges (user_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			used = false,
			used_at = NULL,
			created_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, userID, codeHash, expiresAt); err != nil {
		return fmt.Errorf("failed to create email challenge: %w", err)
	}
	return nil
}

// Consume marks an unexpired, unused challenge as used; exactly one of N
// concurrent attempts can succeed.
func (r *emailChallengeRepoImpl) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	query := `
		UPDATE mfa_email_challenges
		SET used = true, used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used = false AND expires_at > NOW()
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume email challenge: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// DeleteExpired prunes stale challenges
func (r *emailChallengeRepoImpl) DeleteExpired(ctx context.Context) error {
	query := `DELETE FROM mfa_email_challenges WHERE expires_at <= NOW()`

	if _, err := r.db.Pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return nil
}
