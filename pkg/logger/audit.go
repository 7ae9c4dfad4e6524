package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	EventCategory string
	UserID        string
	Severity      string
	Details       map[string]interface{}
}

// AuditLogger provides structured audit logging. It is the immediate half
// of the dual-write audit sink; database persistence happens separately.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent logs a security event at a level matching its severity
func (al *AuditLogger) LogSecurityEvent(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", event.EventCategory),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, slog.Any("details", event.Details))
	}

	level := slog.LevelInfo
	if event.Severity == "warning" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAccessDecision logs a denied access check
func (al *AuditLogger) LogAccessDecision(ctx context.Context, userID string, layer int, reason string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "access_control"),
		slog.String("event_type", "access_denied"),
		slog.Int("layer", layer),
		slog.String("reason", reason),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}

	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
}

// LogVerificationAttempt logs an MFA verification attempt
func (al *AuditLogger) LogVerificationAttempt(ctx context.Context, userID, attemptType string, success bool) {
	attrs := []slog.Attr{
		slog.String("audit_type", "mfa"),
		slog.String("event_type", "mfa_verify"),
		slog.String("attempt_type", attemptType),
		slog.Bool("success", success),
		slog.String("user_id", userID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
	}
}
