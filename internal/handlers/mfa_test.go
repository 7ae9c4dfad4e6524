package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/services"
)

func newTestMFAHandler(mfa *MockMFAOrchestrator, devices *MockDeviceManager, challenges *MockChallengeIssuer) *MFAHandler {
	return NewMFAHandler(mfa, devices, challenges, nil, slog.Default())
}

func TestMFAHandler_Enroll_Success(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/enroll", "user123",
		EnrollTOTPRequest{AccountLabel: "user@example.com"})
	w := httptest.NewRecorder()

	h.Enroll(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EnrollTOTPResponse](t, w)
	assert.NotEmpty(t, resp.Secret)
	assert.Contains(t, resp.ProvisioningURI, "otpauth://totp/")
	assert.NotEmpty(t, resp.QRCode)
}

func TestMFAHandler_Enroll_Unauthenticated(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := httptest.NewRequest(http.MethodPost, "/mfa/totp/enroll", nil)
	w := httptest.NewRecorder()

	h.Enroll(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMFAHandler_Enroll_AlreadyEnabled(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		EnrollTOTPFunc: func(ctx context.Context, userID, accountLabel string) (*services.EnrollmentResult, error) {
			return nil, models.ErrMFAAlreadyEnabled
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/enroll", "user123",
		EnrollTOTPRequest{AccountLabel: "user@example.com"})
	w := httptest.NewRecorder()

	h.Enroll(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMFAHandler_Enroll_InvalidLabel(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/enroll", "user123",
		EnrollTOTPRequest{AccountLabel: "not-an-email"})
	w := httptest.NewRecorder()

	h.Enroll(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMFAHandler_Confirm_Success(t *testing.T) {
	var gotSecret, gotCode string
	mfa := &MockMFAOrchestrator{
		ConfirmTOTPFunc: func(ctx context.Context, userID, secret, code string) ([]services.PlaintextCode, error) {
			gotSecret, gotCode = secret, code
			return []services.PlaintextCode{"A1B2-C3D4", "E5F6-A7B8"}, nil
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/confirm", "user123",
		ConfirmTOTPRequest{Secret: "JBSWY3DPEHPK3PXP", Code: "123456"})
	w := httptest.NewRecorder()

	h.Confirm(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[ConfirmTOTPResponse](t, w)
	assert.True(t, resp.Enabled)
	assert.Equal(t, []string{"A1B2-C3D4", "E5F6-A7B8"}, resp.BackupCodes)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", gotSecret)
	assert.Equal(t, "123456", gotCode)
}

func TestMFAHandler_Confirm_InvalidCode(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		ConfirmTOTPFunc: func(ctx context.Context, userID, secret, code string) ([]services.PlaintextCode, error) {
			return nil, models.ErrMFAInvalidCode
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/confirm", "user123",
		ConfirmTOTPRequest{Secret: "JBSWY3DPEHPK3PXP", Code: "000000"})
	w := httptest.NewRecorder()

	h.Confirm(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMFAHandler_Confirm_NoPendingSecret(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/confirm", "user123",
		ConfirmTOTPRequest{Code: "123456"})
	w := httptest.NewRecorder()

	h.Confirm(w, req)

	// validator rejects the missing secret before the service is reached
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMFAHandler_Confirm_NonNumericCode(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/totp/confirm", "user123",
		ConfirmTOTPRequest{Secret: "JBSWY3DPEHPK3PXP", Code: "12a456"})
	w := httptest.NewRecorder()

	h.Confirm(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMFAHandler_Verify_Success(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		VerifyFunc: func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
			return true, nil
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/verify", "user123",
		VerifyRequest{Code: "123456"})
	w := httptest.NewRecorder()

	h.Verify(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[VerifyResponse](t, w)
	assert.True(t, resp.Verified)
	assert.False(t, resp.DeviceTrusted)
}

func TestMFAHandler_Verify_TrustsDeviceOnSuccess(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		VerifyFunc: func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
			return true, nil
		},
	}
	var trustedFingerprint string
	devices := &MockDeviceManager{
		TrustFunc: func(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error) {
			trustedFingerprint = fingerprint
			return &models.TrustedDevice{ID: "device123", UserID: userID, DeviceFingerprint: fingerprint, IsActive: true}, nil
		},
	}
	h := newTestMFAHandler(mfa, devices, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/verify", "user123",
		VerifyRequest{Code: "123456", TrustDevice: true})
	w := httptest.NewRecorder()

	h.Verify(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[VerifyResponse](t, w)
	assert.True(t, resp.Verified)
	assert.True(t, resp.DeviceTrusted)
	assert.Len(t, trustedFingerprint, 8)
}

func TestMFAHandler_Verify_WrongCode(t *testing.T) {
	trustCalled := false
	devices := &MockDeviceManager{
		TrustFunc: func(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error) {
			trustCalled = true
			return nil, nil
		},
	}
	h := newTestMFAHandler(&MockMFAOrchestrator{}, devices, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/verify", "user123",
		VerifyRequest{Code: "000000", TrustDevice: true})
	w := httptest.NewRecorder()

	h.Verify(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeBody[VerifyResponse](t, w)
	assert.False(t, resp.Verified)
	assert.False(t, trustCalled, "failed verification must never trust a device")
}

func TestMFAHandler_Verify_MalformedBodyLooksLikeWrongCode(t *testing.T) {
	var gotCode *string
	mfa := &MockMFAOrchestrator{
		VerifyFunc: func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
			gotCode = &code
			return false, nil
		},
	}
	trustCalled := false
	devices := &MockDeviceManager{
		TrustFunc: func(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error) {
			trustCalled = true
			return nil, nil
		},
	}
	h := newTestMFAHandler(mfa, devices, &MockChallengeIssuer{})

	bodies := []string{
		`{not json`,
		`{"trust_device": true}`,
		`{"code": "` + strings.Repeat("9", 40) + `", "trust_device": true}`,
	}
	for _, body := range bodies {
		gotCode = nil
		req := httptest.NewRequest(http.MethodPost, "/mfa/verify", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(access.WithActor(req.Context(), access.ResolvedActor("user123", access.RoleUser)))
		w := httptest.NewRecorder()

		h.Verify(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, "body: %s", body)
		resp := decodeBody[VerifyResponse](t, w)
		assert.False(t, resp.Verified)
		require.NotNil(t, gotCode, "bad submissions still go through verification")
		assert.Empty(t, *gotCode)
	}
	assert.False(t, trustCalled)
}

func TestMFAHandler_Verify_RateLimited(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		VerifyFunc: func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
			return false, models.ErrMFARateLimited
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/verify", "user123",
		VerifyRequest{Code: "123456"})
	w := httptest.NewRecorder()

	h.Verify(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestMFAHandler_Verify_SMSUnavailable(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		VerifyFunc: func(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error) {
			return false, models.ErrMFAMethodUnavailable
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/verify", "user123",
		VerifyRequest{Code: "123456"})
	w := httptest.NewRecorder()

	h.Verify(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMFAHandler_Disable_Success(t *testing.T) {
	var gotProof string
	mfa := &MockMFAOrchestrator{
		DisableFunc: func(ctx context.Context, userID, reauthProof string) error {
			gotProof = reauthProof
			return nil
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/disable", "user123",
		DisableMFARequest{Password: "SecurePassword123!"})
	w := httptest.NewRecorder()

	h.Disable(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[DisableMFAResponse](t, w)
	assert.True(t, resp.Success)
	assert.False(t, resp.MFAEnabled)
	assert.Equal(t, "SecurePassword123!", gotProof)
}

func TestMFAHandler_Disable_WrongPassword(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		DisableFunc: func(ctx context.Context, userID, reauthProof string) error {
			return models.ErrUnauthorized
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/disable", "user123",
		DisableMFARequest{Password: "WrongPassword"})
	w := httptest.NewRecorder()

	h.Disable(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMFAHandler_Disable_MissingPassword(t *testing.T) {
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/disable", "user123",
		DisableMFARequest{})
	w := httptest.NewRecorder()

	h.Disable(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMFAHandler_RegenerateBackupCodes_NotEnabled(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		RegenerateBackupCodesFunc: func(ctx context.Context, userID string) ([]services.PlaintextCode, error) {
			return nil, models.ErrMFANotEnabled
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodPost, "/mfa/backup-codes/regenerate", "user123", nil)
	w := httptest.NewRecorder()

	h.RegenerateBackupCodes(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMFAHandler_Status(t *testing.T) {
	mfa := &MockMFAOrchestrator{
		StatusFunc: func(ctx context.Context, userID string) (*models.MFAStatus, error) {
			return &models.MFAStatus{
				Enabled:              true,
				Method:               models.MFAMethodTOTP,
				TOTPVerified:         true,
				BackupCodesRemaining: 7,
				TrustedDevices:       []models.TrustedDevice{{ID: "device123", IsActive: true}},
			}, nil
		},
	}
	h := newTestMFAHandler(mfa, &MockDeviceManager{}, &MockChallengeIssuer{})
	req := newAuthedRequest(t, http.MethodGet, "/mfa", "user123", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[MFAStatusResponse](t, w)
	assert.True(t, resp.Enabled)
	assert.Equal(t, "totp", resp.Method)
	assert.Equal(t, 7, resp.BackupCodesRemaining)
	require.Len(t, resp.TrustedDevices, 1)
	assert.Equal(t, "device123", resp.TrustedDevices[0].ID)
	// secrets never appear in the status payload
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestMFAHandler_IssueEmailChallenge(t *testing.T) {
	var sentTo string
	challenges := &MockChallengeIssuer{
		IssueFunc: func(ctx context.Context, userID, email string) error {
			sentTo = email
			return nil
		},
	}
	h := newTestMFAHandler(&MockMFAOrchestrator{}, &MockDeviceManager{}, challenges)
	req := newAuthedRequest(t, http.MethodPost, "/mfa/email/challenge", "user123",
		EmailChallengeRequest{Email: "user@example.com"})
	w := httptest.NewRecorder()

	h.IssueEmailChallenge(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "user@example.com", sentTo)
}
