package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/models"
)

// MFASettingsRepository defines per-user MFA configuration persistence.
type MFASettingsRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.MFASettings, error)
	// ConfirmTOTP persists the verified secret, enables MFA, and replaces
	// the backup-code batch in one transaction. The enabled flag is never
	// observable without the secret and codes also being durable.
	ConfirmTOTP(ctx context.Context, userID, secret string, codeHashes []string) error
	// Disable clears the secret and flag and deletes all backup codes and
	// email challenges in one transaction.
	Disable(ctx context.Context, userID string) error
	UpdateLastUsedAt(ctx context.Context, userID string) error
	SetMethod(ctx context.Context, userID string, method models.MFAMethod) error
}

// mfaSettingsRepoImpl implements MFASettingsRepository
type mfaSettingsRepoImpl struct {
	db *database.DB
}

// NewMFASettingsRepository creates a new MFA settings repository
func NewMFASettingsRepository(db *database.DB) MFASettingsRepository {
	return &mfaSettingsRepoImpl{db: db}
}

func scanMFASettingsRow(scanner rowScanner) (*models.MFASettings, error) {
	s := &models.MFASettings{}
	err := scanner.Scan(
		&s.ID,
		&s.UserID,
		&s.Enabled,
		&s.Method,
		&s.TOTPSecret,
		&s.TOTPVerified,
		&s.PreferredMethod,
		&s.LastUsedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return s, nil
}

const mfaSettingsColumns = `id, user_id, enabled, method, totp_secret, totp_verified,
	       preferred_method, last_used_at, created_at, updated_at`

// GetByUserID retrieves a user's MFA settings. Rows are created lazily on
// first use, so a missing row reads as disabled settings.
func (r *mfaSettingsRepoImpl) GetByUserID(ctx context.Context, userID string) (*models.MFASettings, error) {
	query := `
		SELECT ` + mfaSettingsColumns + `
		FROM mfa_settings
		WHERE user_id = $1
	`

	s, err := scanMFASettingsRow(r.db.Pool.QueryRow(ctx, query, userID))
	if err != nil {
		if err == models.ErrNotFound {
			return &models.MFASettings{
				UserID:          userID,
				Method:          models.MFAMethodNone,
				PreferredMethod: models.MFAMethodNone,
			}, nil
		}
		return nil, fmt.Errorf("failed to get mfa settings: %w", err)
	}

	return s, nil
}

// ConfirmTOTP performs the all-or-nothing enrollment write: upsert settings
// with the verified secret, delete any stale backup codes, insert the fresh
// batch. A failure anywhere rolls the whole enrollment back.
func (r *mfaSettingsRepoImpl) ConfirmTOTP(ctx context.Context, userID, secret string, codeHashes []string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO mfa_settings (user_id, enabled, method, totp_secret, totp_verified, preferred_method, updated_at)
			VALUES ($1, true, $2, $3, true, $2, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				enabled = true,
				method = $2,
				totp_secret = $3,
				totp_verified = true,
				preferred_method = $2,
				updated_at = NOW()
		`
		if _, err := tx.Exec(ctx, query, userID, models.MFAMethodTOTP, secret); err != nil {
			return fmt.Errorf("failed to persist mfa settings: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to clear stale backup codes: %w", err)
		}

		return insertBackupCodes(ctx, tx, userID, codeHashes)
	})
}

// Disable clears MFA state and invalidates every recovery credential owned
// by the user.
func (r *mfaSettingsRepoImpl) Disable(ctx context.Context, userID string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE mfa_settings
			SET enabled = false, method = $2, totp_secret = NULL, totp_verified = false, updated_at = NOW()
			WHERE user_id = $1
		`
		result, err := tx.Exec(ctx, query, userID, models.MFAMethodNone)
		if err != nil {
			return fmt.Errorf("failed to disable mfa: %w", err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrMFANotEnabled
		}

		if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_email_challenges WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete email challenges: %w", err)
		}
		return nil
	})
}

// UpdateLastUsedAt marks a successful verification.
func (r *mfaSettingsRepoImpl) UpdateLastUsedAt(ctx context.Context, userID string) error {
	query := `UPDATE mfa_settings SET last_used_at = NOW(), updated_at = NOW() WHERE user_id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to update last used at: %w", err)
	}
	return nil
}

// SetMethod switches the active method for an already-enabled user.
func (r *mfaSettingsRepoImpl) SetMethod(ctx context.Context, userID string, method models.MFAMethod) error {
	query := `
		UPDATE mfa_settings
		SET method = $2, preferred_method = $2, updated_at = NOW()
		WHERE user_id = $1 AND enabled = true
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, method)
	if err != nil {
		return fmt.Errorf("failed to set mfa method: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrMFANotEnabled
	}
	return nil
}

// insertBackupCodes bulk-inserts a batch inside the caller's transaction.
// Backup codes are only ever created in whole batches.
func insertBackupCodes(ctx context.Context, tx pgx.Tx, userID string, codeHashes []string) error {
	rows := make([][]any, len(codeHashes))
	for i, hash := range codeHashes {
		rows[i] = []any{userID, hash}
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"mfa_backup_codes"},
		[]string{"user_id", "code_hash"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup codes: %w", err)
	}
	return nil
}
