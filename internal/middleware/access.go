package middleware

import (
	"log/slog"
	"net/http"

	"github.com/stallmarket/bastion/internal/access"
	pkghttp "github.com/stallmarket/bastion/pkg/http"
)

// RequireAccess runs the layered access check before the handler. A pending
// identity is answered with 503 and Retry-After rather than a denial; the
// client should retry once its session resolves.
func RequireAccess(evaluator *access.Evaluator, logger *slog.Logger, opts access.CheckOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := access.ActorFromContext(r.Context())

			result, err := evaluator.CheckAccess(r.Context(), state, opts)
			if err != nil {
				logger.ErrorContext(r.Context(), "access check failed", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "Access check failed")
				return
			}

			switch result.Decision {
			case access.DecisionPending:
				w.Header().Set("Retry-After", "1")
				pkghttp.WriteError(w, http.StatusServiceUnavailable, "identity_pending", "Identity still resolving, retry shortly")
				return
			case access.DecisionDenied:
				if result.Layer == access.LayerAuthentication {
					pkghttp.WriteUnauthorized(w, "Authentication required")
					return
				}
				pkghttp.WriteForbidden(w, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission is the common case: an authenticated actor holding perm.
func RequirePermission(evaluator *access.Evaluator, logger *slog.Logger, perm access.Permission) func(http.Handler) http.Handler {
	return RequireAccess(evaluator, logger, access.CheckOptions{Permission: perm, SkipOwnership: true})
}

// RequireRoleLevel gates a route on a minimum role level.
func RequireRoleLevel(evaluator *access.Evaluator, logger *slog.Logger, level access.RoleLevel) func(http.Handler) http.Handler {
	return RequireAccess(evaluator, logger, access.CheckOptions{MinLevel: level})
}
