package access

import "context"

type contextKey struct{}

var actorKey contextKey

// WithActor returns a context carrying the request's actor state. The
// security context is always explicit, request-scoped state; there is no
// process-global actor.
func WithActor(ctx context.Context, state ActorState) context.Context {
	return context.WithValue(ctx, actorKey, state)
}

// ActorFromContext returns the actor state placed by WithActor. A context
// without one resolves to an anonymous (resolved-and-absent) actor.
func ActorFromContext(ctx context.Context) ActorState {
	if state, ok := ctx.Value(actorKey).(ActorState); ok {
		return state
	}
	return AnonymousActor()
}
