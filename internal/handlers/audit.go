package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stallmarket/bastion/internal/models"
	pkghttp "github.com/stallmarket/bastion/pkg/http"
)

// AuditTrailReader is the read side of the audit sink.
type AuditTrailReader interface {
	GetUserAuditTrail(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
	GetCountForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// AuditHandler serves the audit trail. Routes are gated on audit.all.view.
type AuditHandler struct {
	audit  AuditTrailReader
	logger *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditTrailReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// AuditLogResponse is a single audit trail entry
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	UserID        *string                `json:"user_id,omitempty"`
	EventType     string                 `json:"event_type"`
	EventCategory string                 `json:"event_category"`
	Severity      string                 `json:"severity"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

// GetUserAuditTrail handles GET /audit/users/{id}, newest first
func (h *AuditHandler) GetUserAuditTrail(w http.ResponseWriter, r *http.Request) {
	targetUserID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "invalid user id")
		return
	}

	limit := 50
	offset := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if o, err := strconv.Atoi(s); err == nil && o >= 0 {
			offset = o
		}
	}

	logs, err := h.audit.GetUserAuditTrail(r.Context(), targetUserID, limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit trail lookup failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Audit trail lookup failed")
		return
	}

	count, err := h.audit.GetCountForUser(r.Context(), targetUserID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit count failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Audit trail lookup failed")
		return
	}

	response := make([]*AuditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = auditLogToResponse(log)
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(count, 10))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   response,
		"total":  count,
		"limit":  limit,
		"offset": offset,
	})
}

func auditLogToResponse(log *models.AuditLog) *AuditLogResponse {
	resp := &AuditLogResponse{
		ID:            log.ID.String(),
		EventType:     log.EventType,
		EventCategory: log.EventCategory,
		Severity:      log.Severity,
		Details:       log.EventDetails,
		CreatedAt:     log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if log.UserID != nil {
		uid := log.UserID.String()
		resp.UserID = &uid
	}

	return resp
}
