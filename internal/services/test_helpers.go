package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/models"
)

// MockMFASettingsRepository implements MFASettingsRepository for testing
type MockMFASettingsRepository struct {
	GetByUserIDFunc      func(ctx context.Context, userID string) (*models.MFASettings, error)
	ConfirmTOTPFunc      func(ctx context.Context, userID, secret string, codeHashes []string) error
	DisableFunc          func(ctx context.Context, userID string) error
	UpdateLastUsedAtFunc func(ctx context.Context, userID string) error
	SetMethodFunc        func(ctx context.Context, userID string, method models.MFAMethod) error
}

func (m *MockMFASettingsRepository) GetByUserID(ctx context.Context, userID string) (*models.MFASettings, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return &models.MFASettings{UserID: userID, Method: models.MFAMethodNone}, nil
}

func (m *MockMFASettingsRepository) ConfirmTOTP(ctx context.Context, userID, secret string, codeHashes []string) error {
	if m.ConfirmTOTPFunc != nil {
		return m.ConfirmTOTPFunc(ctx, userID, secret, codeHashes)
	}
	return nil
}

func (m *MockMFASettingsRepository) Disable(ctx context.Context, userID string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFASettingsRepository) UpdateLastUsedAt(ctx context.Context, userID string) error {
	if m.UpdateLastUsedAtFunc != nil {
		return m.UpdateLastUsedAtFunc(ctx, userID)
	}
	return nil
}

func (m *MockMFASettingsRepository) SetMethod(ctx context.Context, userID string, method models.MFAMethod) error {
	if m.SetMethodFunc != nil {
		return m.SetMethodFunc(ctx, userID, method)
	}
	return nil
}

// MockBackupCodeRepository implements BackupCodeRepository for testing
type MockBackupCodeRepository struct {
	ConsumeFunc        func(ctx context.Context, userID, codeHash string) (bool, error)
	ReplaceFunc        func(ctx context.Context, userID string, codeHashes []string) error
	CountRemainingFunc func(ctx context.Context, userID string) (int, error)
	ListByUserIDFunc   func(ctx context.Context, userID string) ([]models.BackupCode, error)
}

func (m *MockBackupCodeRepository) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockBackupCodeRepository) Replace(ctx context.Context, userID string, codeHashes []string) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, userID, codeHashes)
	}
	return nil
}

func (m *MockBackupCodeRepository) CountRemaining(ctx context.Context, userID string) (int, error) {
	if m.CountRemainingFunc != nil {
		return m.CountRemainingFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockBackupCodeRepository) ListByUserID(ctx context.Context, userID string) ([]models.BackupCode, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return []models.BackupCode{}, nil
}

// MockTrustedDeviceRepository implements TrustedDeviceRepository for testing
type MockTrustedDeviceRepository struct {
	UpsertFunc               func(ctx context.Context, userID, fingerprint string, deviceName *string, trustedUntil time.Time) (*models.TrustedDevice, error)
	GetActiveFunc            func(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error)
	ListByUserIDFunc         func(ctx context.Context, userID string) ([]models.TrustedDevice, error)
	RevokeFunc               func(ctx context.Context, deviceID, userID string) error
	TouchLastUsedFunc        func(ctx context.Context, deviceID string) error
	DeactivateAllForUserFunc func(ctx context.Context, userID string) error
}

func (m *MockTrustedDeviceRepository) Upsert(ctx context.Context, userID, fingerprint string, deviceName *string, trustedUntil time.Time) (*models.TrustedDevice, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, userID, fingerprint, deviceName, trustedUntil)
	}
	return &models.TrustedDevice{
		ID:                uuid.NewString(),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		DeviceName:        deviceName,
		TrustedUntil:      trustedUntil,
		IsActive:          true,
		CreatedAt:         time.Now(),
	}, nil
}

func (m *MockTrustedDeviceRepository) GetActive(ctx context.Context, userID, fingerprint string) (*models.TrustedDevice, error) {
	if m.GetActiveFunc != nil {
		return m.GetActiveFunc(ctx, userID, fingerprint)
	}
	return nil, models.ErrNotFound
}

func (m *MockTrustedDeviceRepository) ListByUserID(ctx context.Context, userID string) ([]models.TrustedDevice, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return []models.TrustedDevice{}, nil
}

func (m *MockTrustedDeviceRepository) Revoke(ctx context.Context, deviceID, userID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, deviceID, userID)
	}
	return nil
}

func (m *MockTrustedDeviceRepository) TouchLastUsed(ctx context.Context, deviceID string) error {
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, deviceID)
	}
	return nil
}

func (m *MockTrustedDeviceRepository) DeactivateAllForUser(ctx context.Context, userID string) error {
	if m.DeactivateAllForUserFunc != nil {
		return m.DeactivateAllForUserFunc(ctx, userID)
	}
	return nil
}

// MockMFAAttemptRepository implements MFAAttemptRepository for testing
type MockMFAAttemptRepository struct {
	mu       sync.Mutex
	Attempts []*models.MFAAttempt

	RecordAttemptFunc         func(ctx context.Context, attempt *models.MFAAttempt) error
	GetFailedAttemptCountFunc func(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteExpiredAttemptsFunc func(ctx context.Context, threshold time.Time) error
}

func (m *MockMFAAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.MFAAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	m.mu.Lock()
	m.Attempts = append(m.Attempts, attempt)
	m.mu.Unlock()
	return nil
}

func (m *MockMFAAttemptRepository) GetFailedAttemptCount(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.GetFailedAttemptCountFunc != nil {
		return m.GetFailedAttemptCountFunc(ctx, userID, since)
	}
	return 0, nil
}

func (m *MockMFAAttemptRepository) DeleteExpiredAttempts(ctx context.Context, threshold time.Time) error {
	if m.DeleteExpiredAttemptsFunc != nil {
		return m.DeleteExpiredAttemptsFunc(ctx, threshold)
	}
	return nil
}

// MockEmailChallengeRepository implements EmailChallengeRepository for testing
type MockEmailChallengeRepository struct {
	CreateFunc        func(ctx context.Context, userID, codeHash string, expiresAt time.Time) error
	ConsumeFunc       func(ctx context.Context, userID, codeHash string) (bool, error)
	DeleteExpiredFunc func(ctx context.Context) error
}

func (m *MockEmailChallengeRepository) Create(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, codeHash, expiresAt)
	}
	return nil
}

func (m *MockEmailChallengeRepository) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockEmailChallengeRepository) DeleteExpired(ctx context.Context) error {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return nil
}

// MockChallengeSender implements ChallengeSender for testing
type MockChallengeSender struct {
	mu        sync.Mutex
	SentCodes []string

	SendChallengeFunc func(ctx context.Context, email, code string, expiresAt time.Time) error
}

func (m *MockChallengeSender) SendChallenge(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendChallengeFunc != nil {
		return m.SendChallengeFunc(ctx, email, code, expiresAt)
	}
	m.mu.Lock()
	m.SentCodes = append(m.SentCodes, code)
	m.mu.Unlock()
	return nil
}

// MockReauthVerifier implements ReauthVerifier for testing
type MockReauthVerifier struct {
	VerifyReauthFunc func(ctx context.Context, userID, proof string) (bool, error)
}

func (m *MockReauthVerifier) VerifyReauth(ctx context.Context, userID, proof string) (bool, error) {
	if m.VerifyReauthFunc != nil {
		return m.VerifyReauthFunc(ctx, userID, proof)
	}
	return true, nil
}

// recordedEvent captures a single audit invocation for assertion.
type recordedEvent struct {
	UserID    string
	EventType string
	Category  string
	Severity  string
	Details   models.AuditDetails
}

// MockAuditRecorder implements AuditRecorder and remembers every event.
type MockAuditRecorder struct {
	mu     sync.Mutex
	Events []recordedEvent
}

func (m *MockAuditRecorder) Record(ctx context.Context, userID, eventType, eventCategory, severity string, details models.AuditDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, recordedEvent{
		UserID:    userID,
		EventType: eventType,
		Category:  eventCategory,
		Severity:  severity,
		Details:   details,
	})
}

// HasEvent reports whether an event of the given type was recorded.
func (m *MockAuditRecorder) HasEvent(eventType string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// enabledTOTPSettings builds settings for a user with a confirmed secret.
func enabledTOTPSettings(userID, secret string) *models.MFASettings {
	return &models.MFASettings{
		ID:           uuid.NewString(),
		UserID:       userID,
		Enabled:      true,
		Method:       models.MFAMethodTOTP,
		TOTPSecret:   &secret,
		TOTPVerified: true,
	}
}
