package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/models"
)

// BackupCodeRepository defines recovery-code persistence operations.
type BackupCodeRepository interface {
	// Consume marks the matching unused code as used. It is a single
	// conditional update, not a read-then-write: out of N concurrent
	// attempts with the same code, exactly one observes used=false and
	// succeeds. Returns false when no unused code matched.
	Consume(ctx context.Context, userID, codeHash string) (bool, error)
	// Replace deletes the user's whole batch and inserts a fresh one. The
	// old codes become permanently unusable even if unused.
	Replace(ctx context.Context, userID string, codeHashes []string) error
	CountRemaining(ctx context.Context, userID string) (int, error)
	ListByUserID(ctx context.Context, userID string) ([]models.BackupCode, error)
}

// backupCodeRepoImpl implements BackupCodeRepository
type backupCodeRepoImpl struct {
	db *database.DB
}

// NewBackupCodeRepository creates a new backup code repository
func NewBackupCodeRepository(db *database.DB) BackupCodeRepository {
	return &backupCodeRepoImpl{db: db}
}

// Consume is the correctness-critical single-use operation. The WHERE
// clause carries the used=false predicate so the row transition happens
// atomically in the database; an in-process mutex would not survive
// multiple instances.
func (r *backupCodeRepoImpl) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	query := `
		UPDATE mfa_backup_codes
		SET used = true, used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used = false
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Replace swaps the user's batch wholesale inside one transaction.
func (r *backupCodeRepoImpl) Replace(ctx context.Context, userID string, codeHashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete old backup codes: %w", err)
		}
		return insertBackupCodes(ctx, tx, userID, codeHashes)
	})
}

// CountRemaining returns how many codes are still unused.
func (r *backupCodeRepoImpl) CountRemaining(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1 AND used = false`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

// ListByUserID returns the stored (hashed) codes for a user.
func (r *backupCodeRepoImpl) ListByUserID(ctx context.Context, userID string) ([]models.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, used, used_at, created_at
		FROM mfa_backup_codes
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup codes: %w", err)
	}
	defer rows.Close()

	codes := make([]models.BackupCode, 0)
	for rows.Next() {
		var c models.BackupCode
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Used, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		codes = append(codes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup codes: %w", err)
	}

	return codes, nil
}
