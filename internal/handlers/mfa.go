package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/models"
	"github.com/stallmarket/bastion/internal/services"
	pkghttp "github.com/stallmarket/bastion/pkg/http"
)

// MFAOrchestrator is the slice of the MFA service the handler needs.
type MFAOrchestrator interface {
	EnrollTOTP(ctx context.Context, userID, accountLabel string) (*services.EnrollmentResult, error)
	ConfirmTOTP(ctx context.Context, userID, secret, code string) ([]services.PlaintextCode, error)
	Disable(ctx context.Context, userID, reauthProof string) error
	Verify(ctx context.Context, userID, code, fingerprint, ipAddress string) (bool, error)
	RegenerateBackupCodes(ctx context.Context, userID string) ([]services.PlaintextCode, error)
	Status(ctx context.Context, userID string) (*models.MFAStatus, error)
}

// DeviceManager is the slice of the trusted device service the handler needs.
type DeviceManager interface {
	Trust(ctx context.Context, userID, fingerprint string, deviceName *string) (*models.TrustedDevice, error)
	IsTrusted(ctx context.Context, userID, fingerprint string) (bool, error)
	Revoke(ctx context.Context, deviceID, userID string) error
	List(ctx context.Context, userID string) ([]models.TrustedDevice, error)
}

// ChallengeIssuer delivers email-method challenges.
type ChallengeIssuer interface {
	Issue(ctx context.Context, userID, email string) error
}

// MFAHandler handles MFA-related HTTP requests
type MFAHandler struct {
	mfa        MFAOrchestrator
	devices    DeviceManager
	challenges ChallengeIssuer
	ipConfig   *pkghttp.IPConfig
	logger     *slog.Logger
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(mfa MFAOrchestrator, devices DeviceManager, challenges ChallengeIssuer, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{
		mfa:        mfa,
		devices:    devices,
		challenges: challenges,
		ipConfig:   ipConfig,
		logger:     logger,
	}
}

// actorID pulls the resolved caller from the request context. Routes are
// gated by the access middleware, so a missing actor is a wiring bug.
func actorID(r *http.Request) (string, bool) {
	state := access.ActorFromContext(r.Context())
	if state.Loading || state.Actor == nil {
		return "", false
	}
	return state.Actor.UserID, true
}

func codesToStrings(codes []services.PlaintextCode) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// Enroll handles POST /mfa/totp/enroll to begin TOTP enrollment
func (h *MFAHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EnrollTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.mfa.EnrollTOTP(r.Context(), userID, req.AccountLabel)
	if err != nil {
		if errors.Is(err, models.ErrMFAAlreadyEnabled) {
			pkghttp.WriteConflict(w, "MFA is already enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "enrollment failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Enrollment failed")
		return
	}

	writeJSON(w, http.StatusOK, EnrollTOTPResponse{
		Secret:          result.Secret,
		ProvisioningURI: result.ProvisioningURI,
		QRCode:          result.QRCode,
	})
}

// Confirm handles POST /mfa/totp/confirm to prove possession and enable MFA
func (h *MFAHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ConfirmTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	codes, err := h.mfa.ConfirmTOTP(r.Context(), userID, req.Secret, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFANoPendingSecret):
			pkghttp.WriteBadRequest(w, "No pending enrollment")
		case errors.Is(err, models.ErrMFAInvalidCode):
			pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_code", "Verification failed")
		case errors.Is(err, models.ErrMFAAlreadyEnabled):
			pkghttp.WriteConflict(w, "MFA is already enabled")
		default:
			h.logger.ErrorContext(r.Context(), "confirmation failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Confirmation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ConfirmTOTPResponse{
		Enabled:     true,
		BackupCodes: codesToStrings(codes),
	})
}

// Verify handles POST /mfa/verify for step-up and login challenges
func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	// A malformed submission takes the same padded failure path as a wrong
	// code, so the two cannot be told apart by status, shape, or timing.
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || ValidateRequest(req) != nil {
		req.Code = ""
		req.TrustDevice = false
	}

	fingerprint := auth.Fingerprint(r, req.Signals)
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	verified, err := h.mfa.Verify(r.Context(), userID, req.Code, fingerprint, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		case errors.Is(err, models.ErrMFARateLimited):
			pkghttp.WriteTooManyRequests(w, "Too many failed attempts")
		case errors.Is(err, models.ErrMFAMethodUnavailable):
			pkghttp.WriteError(w, http.StatusNotImplemented, "method_unavailable", "This MFA method is not available")
		default:
			h.logger.ErrorContext(r.Context(), "verification failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Verification failed")
		}
		return
	}

	resp := VerifyResponse{Verified: verified}
	if verified && req.TrustDevice {
		if _, err := h.devices.Trust(r.Context(), userID, fingerprint, req.DeviceName); err != nil {
			// Trust failure does not undo a successful verification.
			h.logger.ErrorContext(r.Context(), "failed to trust device", slog.Any("error", err))
		} else {
			resp.DeviceTrusted = true
		}
	}

	status := http.StatusOK
	if !verified {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, resp)
}

// Disable handles POST /mfa/disable; requires the primary credential
func (h *MFAHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req DisableMFARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.mfa.Disable(r.Context(), userID, req.Password); err != nil {
		switch {
		case errors.Is(err, models.ErrReauthRequired):
			pkghttp.WriteBadRequest(w, "Re-authentication is required")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Invalid credentials")
		case errors.Is(err, models.ErrMFANotEnabled):
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
		default:
			h.logger.ErrorContext(r.Context(), "disable failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Disable failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, DisableMFAResponse{Success: true, MFAEnabled: false})
}

// RegenerateBackupCodes handles POST /mfa/backup-codes/regenerate
func (h *MFAHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	codes, err := h.mfa.RegenerateBackupCodes(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrMFANotEnabled) {
			pkghttp.WriteBadRequest(w, "MFA is not enabled")
			return
		}
		h.logger.ErrorContext(r.Context(), "regeneration failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Regeneration failed")
		return
	}

	writeJSON(w, http.StatusOK, RegenerateBackupCodesResponse{BackupCodes: codesToStrings(codes)})
}

// IssueEmailChallenge handles POST /mfa/email/challenge
func (h *MFAHandler) IssueEmailChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req EmailChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.challenges.Issue(r.Context(), userID, req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "challenge delivery failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Challenge delivery failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

// Status handles GET /mfa
func (h *MFAHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.mfa.Status(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "status lookup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Status lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, statusToResponse(status))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
