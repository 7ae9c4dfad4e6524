package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types for audit logging
const (
	AuditEventMFAEnroll      = "mfa_enroll"
	AuditEventMFAConfirm     = "mfa_confirm"
	AuditEventMFADisable     = "mfa_disable"
	AuditEventMFAVerify      = "mfa_verify"
	AuditEventBackupConsume  = "backup_code_consume"
	AuditEventBackupRegen    = "backup_code_regenerate"
	AuditEventDeviceTrust    = "device_trust"
	AuditEventDeviceRevoke   = "device_revoke"
	AuditEventAccessDenied   = "access_denied"
	AuditEventAccessGranted  = "access_granted"
	AuditEventEmailChallenge = "email_challenge"
)

// Event categories
const (
	AuditCategoryMFA    = "mfa"
	AuditCategoryAccess = "access_control"
	AuditCategoryDevice = "device"
)

// Severities. Warning marks security-lowering or weaker-signal events
// (MFA disabled, backup code consumed) that operators may want to review.
const (
	AuditSeverityInfo    = "info"
	AuditSeverityWarning = "warning"
)

// AuditLog is an append-only record of a security-relevant event.
type AuditLog struct {
	ID            uuid.UUID     `db:"id"`
	UserID        *uuid.UUID    `db:"user_id"`
	EventType     string        `db:"event_type"`
	EventCategory string        `db:"event_category"`
	EventDetails  AuditDetails  `db:"event_details"`
	Severity      string        `db:"severity"`
	CreatedAt     time.Time     `db:"created_at"`
}

// AuditDetails holds additional context for audit events
type AuditDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (ad *AuditDetails) Scan(value interface{}) error {
	if value == nil {
		*ad = make(AuditDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*ad = AuditDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ad AuditDetails) Value() (driver.Value, error) {
	if ad == nil {
		return nil, nil
	}
	return json.Marshal(ad)
}

// MarshalJSON implements json.Marshaler
func (ad AuditDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(ad))
}

// UnmarshalJSON implements json.Unmarshaler
func (ad *AuditDetails) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ad = AuditDetails(m)
	return nil
}
