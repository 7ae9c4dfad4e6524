package auth

import (
	"net/http"
	"strings"

	"github.com/stallmarket/bastion/internal/access"
)

// ActorMiddleware resolves the bearer token into an actor state and places
// it on the request context. A missing or invalid token resolves to an
// anonymous actor rather than rejecting the request: the layered evaluator
// owns the denial so that Layer 1 attribution and auditing stay in one
// place.
func ActorMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := access.AnonymousActor()

			authHeader := r.Header.Get("Authorization")
			if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := tm.ValidateToken(parts[1]); err == nil {
					state = claims.ActorState()
				}
			}

			ctx := access.WithActor(r.Context(), state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
