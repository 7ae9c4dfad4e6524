package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/stallmarket/bastion/internal/access"
	"github.com/stallmarket/bastion/internal/auth"
	"github.com/stallmarket/bastion/internal/handlers"
	"github.com/stallmarket/bastion/internal/middleware"
)

// RegisterRoutes registers all application routes. Every protected route is
// gated by the layered evaluator; handlers never re-check roles themselves.
func RegisterRoutes(
	router chi.Router,
	mfaHandler *handlers.MFAHandler,
	deviceHandler *handlers.DeviceHandler,
	auditHandler *handlers.AuditHandler,
	tokenManager *auth.TokenManager,
	evaluator *access.Evaluator,
	logger *slog.Logger,
) {
	verifyLimit := middleware.DefaultVerifyRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(auth.ActorMiddleware(tokenManager))

		// MFA self-management, gated on mfa.own.manage
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(evaluator, logger, access.PermMFAOwnManage))

			r.Get("/mfa", mfaHandler.Status)
			r.Post("/mfa/totp/enroll", mfaHandler.Enroll)
			r.Post("/mfa/totp/confirm", mfaHandler.Confirm)
			r.Post("/mfa/disable", mfaHandler.Disable)
			r.Post("/mfa/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)
			r.Post("/mfa/email/challenge", mfaHandler.IssueEmailChallenge)

			r.Get("/mfa/devices", deviceHandler.List)
			r.Post("/mfa/devices/check", deviceHandler.Check)
			r.Delete("/mfa/devices/{deviceID}", deviceHandler.Revoke)

			// code submission gets a tighter per-actor budget
			r.With(middleware.RateLimitByActor(verifyLimit)).Post("/mfa/verify", mfaHandler.Verify)
		})

		// Audit trail reads, admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(evaluator, logger, access.PermAuditAllView))
			r.Get("/audit/users/{id}", auditHandler.GetUserAuditTrail)
		})
	})
}
