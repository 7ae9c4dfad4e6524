package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/stallmarket/bastion/internal/database"
	"github.com/stallmarket/bastion/internal/models"
)

// TrustedDeviceRepository defines the trusted-device ledger operations.
type TrustedDeviceRepository interface {
	// Upsert is atomic on the (user_id, device_fingerprint) unique key:
	// re-trusting a known fingerprint refreshes trusted_until instead of
	// inserting a duplicate row.
	Upsert(ctx context.Context, userID, fingerprint string, deviceName *string, trustedUntil time.Time) (*models.TrustedDevice, error)
	GetActive(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error)
	ListByUserID(ctx context.Context, userID string) ([]models.TrustedDevice, error)
	// Revoke deactivates the device but keeps the row for the audit trail.
	Revoke(ctx context.Context, deviceID, userID string) error
	TouchLastUsed(ctx context.Context, deviceID string) error
	DeactivateAllForUser(ctx context.Context, userID string) error
}

// trustedDeviceRepoImpl implements TrustedDeviceRepository
type trustedDeviceRepoImpl struct {
	db *database.DB
}

// NewTrustedDeviceRepository creates a new trusted device repository
func NewTrustedDeviceRepository(db *database.DB) TrustedDeviceRepository {
	return &trustedDeviceRepoImpl{db: db}
}

func scanTrustedDeviceRow(scanner rowScanner) (*models.TrustedDevice, error) {
	d := &models.TrustedDevice{}
	err := scanner.Scan(
		&d.ID,
		&d.UserID,
		&d.DeviceFingerprint,
		&d.DeviceName,
		&d.TrustedUntil,
		&d.IsActive,
		&d.LastUsedAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return d, nil
}

const trustedDeviceColumns = `id, user_id, device_fingerprint, device_name, trusted_until,
	       is_active, last_used_at, created_at`

// Upsert inserts or refreshes trust for a fingerprint. Concurrent trust
// calls for the same fingerprint race on the unique key, not on rows.
func (r *trustedDeviceRepoImpl) Upsert(ctx context.Context, userID, fingerprint string, deviceName *string, trustedUntil time.Time) (*models.TrustedDevice, error) {
	query := `
		INSERT INTO trusted_devices (user_id, device_fingerprint, device_name, trusted_until, is_active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (user_id, device_fingerprint) DO UPDATE SET
			trusted_until = EXCLUDED.trusted_until,
			device_name = COALESCE(EXCLUDED.device_name, trusted_devices.device_name),
			is_active = true,
			last_used_at = NOW()
		RETURNING ` + trustedDeviceColumns + `
	`

	device, err := scanTrustedDeviceRow(r.db.Pool.QueryRow(ctx, query, userID, fingerprint, deviceName, trustedUntil))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert trusted device: %w", err)
	}
	return device, nil
}

// GetActive returns the device iff it is active and unexpired.
func (r *trustedDeviceRepoImpl) GetActive(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	query := `
		SELECT ` + trustedDeviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1 AND device_fingerprint = $2 AND is_active = true AND trusted_until > NOW()
	`

	device, err := scanTrustedDeviceRow(r.db.Pool.QueryRow(ctx, query, userID, fingerprint))
	if err != nil {
		if err == models.ErrNotFound {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get trusted device: %w", err)
	}
	return device, nil
}

// ListByUserID returns every ledger row for a user, revoked ones included.
func (r *trustedDeviceRepoImpl) ListByUserID(ctx context.Context, userID string) ([]models.TrustedDevice, error) {
	query := `
		SELECT ` + trustedDeviceColumns + `
		FROM trusted_devices
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	defer rows.Close()

	devices := make([]models.TrustedDevice, 0)
	for rows.Next() {
		d, err := scanTrustedDeviceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trusted device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trusted devices: %w", err)
	}

	return devices, nil
}

// Revoke deactivates without deleting; the row remains for audit.
func (r *trustedDeviceRepoImpl) Revoke(ctx context.Context, deviceID, userID string) error {
	query := `
		UPDATE trusted_devices
		SET is_active = false
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, deviceID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke trusted device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// TouchLastUsed stamps a trust-check hit.
func (r *trustedDeviceRepoImpl) TouchLastUsed(ctx context.Context, deviceID string) error {
	query := `UPDATE trusted_devices SET last_used_at = NOW() WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, deviceID); err != nil {
		return fmt.Errorf("failed to touch trusted device: %w", err)
	}
	return nil
}

// DeactivateAllForUser revokes every device, used when MFA is disabled.
func (r *trustedDeviceRepoImpl) DeactivateAllForUser(ctx context.Context, userID string) error {
	query := `UPDATE trusted_devices SET is_active = false WHERE user_id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to deactivate trusted devices: %w", err)
	}
	return nil
}
