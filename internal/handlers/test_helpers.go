package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/services"
)

// MockMFAOrchestrator implements MFAOrchestrator for testing
type MockMFAOrchestrator struct {
	EnrollTOTPFunc            func(ctx context.Context, userID, accountLabel string) (*services.EnrollmentResult, error)
	ConfirmTOTPFunc           func(ctx context.Context, userID, secret, code string) ([]services.PlaintextCode, error)
	DisableFunc               func(ctx context.Context, userID, reauthProof string) error
	VerifyFunc                func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error)
	RegenerateBackupCodesFunc func(ctx context.Context, userID string) ([]services.PlaintextCode, error)
	StatusFunc                func(ctx context.Context, userID string) (*models.MFAStatus, error)
}

func (m *MockMFAOrchestrator) EnrollTOTP(ctx context.Context, userID, accountLabel string) (*services.EnrollmentResult, error) {
	if m.EnrollTOTPFunc != nil {
		return m.EnrollTOTPFunc(ctx, userID, accountLabel)
	}
	return &services.EnrollmentResult{
		Secret:          "JBSWY3DPEHPK3PXP",
		ProvisioningURI: "otpauth://totp/Stallmarket:user@example.com?secret=JBSWY3DPEHPK3PXP",
		QRCode:          "data:image/png;base64,iVBOR",
	}, nil
}

func (m *MockMFAOrchestrator) ConfirmTOTP(ctx context.Context, userID, secret, code string) ([]services.PlaintextCode, error) {
	if m.ConfirmTOTPFunc != nil {
		return m.ConfirmTOTPFunc(ctx, userID, secret, code)
	}
	return []services.PlaintextCode{"A1B2-C3D4", "E5F6-A7B8"}, nil
}

func (m *MockMFAOrchestrator) Disable(ctx context.Context, userID, reauthProof string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, userID, reauthProof)
	}
	return nil
}

func (m *MockMFAOrchestrator) Verify(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, userID, code, fingerprint, ipAddress)
	}
	return false, nil
}

func (m *MockMFAOrchestrator) RegenerateBackupCodes(ctx context.Context, userID string) ([]services.PlaintextCode, error) {
	if m.RegenerateBackupCodesFunc != nil {
		return m.RegenerateBackupCodesFunc(ctx, userID)
	}
	return []services.PlaintextCode{"A1B2-C3D4"}, nil
}

func (m *MockMFAOrchestrator) Status(ctx context.Context, userID string) (*models.MFAStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, userID)
	}
	return &models.MFAStatus{Method: models.MFAMethodNone}, nil
}

// MockDeviceManager implements DeviceManager for testing
type MockDeviceManager struct {
	TrustFunc     func(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error)
	IsTrustedFunc func(ctx context.Context, userID, fingerprint string) (bool, error)
	RevokeFunc    func(ctx context.Context, deviceID, userID string) error
	ListFunc      func(ctx context.Context, userID string) ([]models.TrustedDevice, error)
}

func (m *MockDeviceManager) Trust(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error) {
	if m.TrustFunc != nil {
		return m.TrustFunc(ctx, userID, fingerprint, deviceName)
	}
	return &models.TrustedDevice{ID: uuid.NewString(), UserID: userID, DeviceFingerprint: fingerprint, IsActive: true}, nil
}

func (m *MockDeviceManager) IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error) {
	if m.IsTrustedFunc != nil {
		return m.IsTrustedFunc(ctx, userID, fingerprint)
	}
	return false, nil
}

func (m *MockDeviceManager) Revoke(ctx context.Context, deviceID, userID string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, deviceID, userID)
	}
	return nil
}

func (m *MockDeviceManager) List(ctx context.Context, userID string) ([]models.TrustedDevice, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID)
	}
	return []models.TrustedDevice{}, nil
}

// MockChallengeIssuer implements ChallengeIssuer for testing
type MockChallengeIssuer struct {
	IssueFunc func(ctx context.Context, userID, email string) error
}

func (m *MockChallengeIssuer) Issue(ctx context.Context, userID, email string) error {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, userID, email)
	}
	return nil
}

// newAuthedRequest builds a request with a resolved actor in context.
func newAuthedRequest(t *testing.T, method, target, userID string, body interface{}) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	ctx := access.WithActor(req.Context(), access.ResolvedActor(userID, access.RoleUser))
	return req.WithContext(ctx)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}
