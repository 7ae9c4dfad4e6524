package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/repositories"
)

// TrustedDeviceService maintains the time-bounded device trust ledger.
// Trust only ever skips an MFA prompt; it never grants a permission and is
// never consulted by the access evaluator.
type TrustedDeviceService struct {
	repo   repositories.TrustedDeviceRepository
	audit  AuditRecorder
	logger *slog.Logger
	ttl    time.Duration
}

// NewTrustedDeviceService creates a service granting trust for ttl.
func NewTrustedDeviceService(repo repositories.TrustedDeviceRepository, audit AuditRecorder, logger *slog.Logger, ttl time.Duration) *TrustedDeviceService {
	return &TrustedDeviceService{
		repo:   repo,
		audit:  audit,
		logger: logger,
		ttl:    ttl,
	}
}

// Trust upserts the (user, fingerprint) pair, refreshing trusted_until for
// a known fingerprint rather than duplicating it.
func (s *TrustedDeviceService) Trust(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error) {
	device, err := s.repo.Upsert(ctx, userID, fingerprint, deviceName, time.Now().Add(s.ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to trust device: %w", err)
	}

	s.audit.Record(ctx, userID, models.AuditEventDeviceTrust, models.AuditCategoryDevice,
		models.AuditSeverityInfo, models.AuditDetails{"fingerprint": fingerprint})

	return device, nil
}

// IsTrusted reports whether an active, unexpired trust record exists.
func (s *TrustedDeviceService) IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	device, err := s.repo.GetActive(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.repo.TouchLastUsed(ctx, device.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to touch trusted device", slog.Any("error", err))
	}
	return true, nil
}

// Revoke deactivates a device; the ledger row is kept for audit.
func (s *TrustedDeviceService) Revoke(ctx context.Context, deviceID, userID string) error {
	if err := s.repo.Revoke(ctx, deviceID, userID); err != nil {
		return err
	}

	s.audit.Record(ctx, userID, models.AuditEventDeviceRevoke, models.AuditCategoryDevice,
		models.AuditSeverityInfo, models.AuditDetails{"device_id": deviceID})

	return nil
}

// List returns the user's full device ledger, revoked entries included.
func (s *TrustedDeviceService) List(ctx context.Context, userID string) ([]models.TrustedDevice, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// RevokeAll deactivates every device for a user (MFA disable path).
func (s *TrustedDeviceService) RevokeAll(ctx context.Context, userID string) error {
	return s.repo.DeactivateAllForUser(ctx, userID)
}
