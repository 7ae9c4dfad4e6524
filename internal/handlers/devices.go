package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/models"
	pkghttp "github.com/stallmarket/bastion/pkg/http"
)

// DeviceHandler handles trusted device ledger requests
type DeviceHandler struct {
	devices DeviceManager
	logger  *slog.Logger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices DeviceManager, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		devices: devices,
		logger:  logger,
	}
}

// List handles GET /mfa/devices, returning the full ledger including
// revoked entries
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	devices, err := h.devices.List(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "device list failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Device list failed")
		return
	}

	dtos := make([]TrustedDeviceDTO, len(devices))
	for i, d := range devices {
		dtos[i] = deviceToDTO(d)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": dtos})
}

// Check handles POST /mfa/devices/check: is the current browser trusted
func (h *DeviceHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req CheckDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request")
		return
	}

	fingerprint := auth.Fingerprint(r, req.Signals)
	trusted, err := h.devices.IsTrusted(r.Context(), userID, fingerprint)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "trust check failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Trust check failed")
		return
	}

	writeJSON(w, http.StatusOK, CheckDeviceResponse{Trusted: trusted})
}

// Revoke handles DELETE /mfa/devices/{deviceID}. The row is deactivated,
// not deleted; it stays visible in the ledger.
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		pkghttp.WriteBadRequest(w, "device id is required")
		return
	}

	if err := h.devices.Revoke(r.Context(), deviceID, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Device not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "device revocation failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Revocation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
