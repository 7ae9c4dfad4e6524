package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/repositories"
	pkglogger "github.com/stallmarket/bastion/pkg/logger"
)

// AuditService is the audit sink: append-only security events with a
// dual-write pattern (immediate slog output + database persistence).
// A failed database write never fails the operation being audited.
type AuditService struct {
	repo        repositories.AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo repositories.AuditLogRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Record appends a security event.
func (s *AuditService) Record(ctx context.Context, userID, eventType, eventCategory, severity string, details models.AuditDetails) {
	log := &models.AuditLog{
		EventType:     eventType,
		EventCategory: eventCategory,
		EventDetails:  details,
		Severity:      severity,
	}
	if uid, err := uuid.Parse(userID); err == nil {
		log.UserID = &uid
	}

	s.auditLogger.LogSecurityEvent(ctx, pkglogger.AuditEvent{
		EventType:     eventType,
		EventCategory: eventCategory,
		UserID:        userID,
		Severity:      severity,
		Details:       details,
	})

	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit log",
			slog.String("event_type", eventType),
			slog.Any("error", err),
		)
	}
}

// AccessDenied implements access.AuditSink for the layered evaluator.
func (s *AuditService) AccessDenied(ctx context.Context, userID string, layer int, reason string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["layer"] = layer
	details["reason"] = reason
	s.Record(ctx, userID, models.AuditEventAccessDenied, models.AuditCategoryAccess, models.AuditSeverityInfo, details)
}

// GetUserAuditTrail retrieves the audit trail for a user, newest first.
func (s *AuditService) GetUserAuditTrail(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get user audit trail: %w", err)
	}

	return logs, nil
}

// GetCountForUser returns the audit log count for a user
func (s *AuditService) GetCountForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return count, nil
}
