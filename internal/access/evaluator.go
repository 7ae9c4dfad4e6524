package access

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Denial reasons attached to CheckResult and audit events.
const (
	ReasonAuthRequired     = "auth_required"
	ReasonInsufficientRole = "insufficient_role"
	ReasonMissingPerm      = "missing_permission"
	ReasonNotOwner         = "not_owner"
)

// AuditSink receives access-control denials for the append-only audit log.
type AuditSink interface {
	AccessDenied(ctx context.Context, userID string, layer int, reason string, details map[string]interface{})
}

// CheckOptions parameterizes a layered access check. Zero values mean the
// corresponding layer constraint is not applied.
type CheckOptions struct {
	Permission   Permission
	MinLevel     RoleLevel
	ResourceType string
	ResourceID   string

	// SkipOwnership forces Layer 3 off even for "own."-scoped permissions.
	SkipOwnership bool
}

// Evaluator runs the ordered authentication -> authorization -> ownership
// pipeline, short-circuiting at the first denial. Layer 4 (storage-level
// enforcement) belongs to the backing datastore; the evaluator's verdict
// must agree with what that layer would independently enforce.
type Evaluator struct {
	dir    Directory
	owners OwnershipResolver
	audit  AuditSink
	logger *slog.Logger
}

// NewEvaluator creates an evaluator over the given role directory and
// ownership resolver. audit may be nil when no sink is wired.
func NewEvaluator(dir Directory, owners OwnershipResolver, audit AuditSink, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		dir:    dir,
		owners: owners,
		audit:  audit,
		logger: logger,
	}
}

// CheckAccess runs layers 1-3 in order, returning the first denial or an
// allowed verdict once every applicable layer passes. A loading actor
// yields a pending result, never a denial.
func (e *Evaluator) CheckAccess(ctx context.Context, state ActorState, opts CheckOptions) (CheckResult, error) {
	// Layer 1: authentication.
	if state.Loading {
		return pending(), nil
	}
	if state.Actor == nil {
		result := deniedAt(LayerAuthentication, ReasonAuthRequired)
		e.recordDenial(ctx, "", result, opts)
		return result, nil
	}
	actor := state.Actor

	// Layer 2: authorization.
	level, perms, err := e.resolveRoles(ctx, actor)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to resolve roles: %w", err)
	}

	if opts.MinLevel > LevelNone && level < opts.MinLevel {
		result := deniedAt(LayerAuthorization, ReasonInsufficientRole)
		e.recordDenial(ctx, actor.UserID, result, opts)
		return result, nil
	}

	holdsOverride := false
	if opts.Permission != "" {
		granted := slices.Contains(perms, opts.Permission)
		if !granted && level >= LevelAdmin {
			if override, ok := opts.Permission.AdminOverride(); ok && slices.Contains(perms, override) {
				granted = true
				holdsOverride = true
			}
		}
		if !granted {
			result := deniedAt(LayerAuthorization, ReasonMissingPerm)
			e.recordDenial(ctx, actor.UserID, result, opts)
			return result, nil
		}
		// Holding the "all." variant directly also waives ownership.
		if override, ok := opts.Permission.AdminOverride(); ok && slices.Contains(perms, override) {
			holdsOverride = true
		}
	}

	// Layer 3: ownership. Skipped when the permission is not owner-scoped
	// or the caller opted out; administrators pass unconditionally.
	if !e.ownershipApplies(opts) {
		return allowed(), nil
	}
	if level >= LevelAdmin || holdsOverride {
		return allowed(), nil
	}

	ownership, err := e.owners.Resolve(ctx, opts.ResourceType, opts.ResourceID, actor.UserID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("ownership resolution failed: %w", err)
	}
	if ownership.AccessLevel == AccessNone {
		result := deniedAt(LayerOwnership, ReasonNotOwner)
		if ownership.Reason != "" {
			result.Reason = ownership.Reason
		}
		result.Ownership = &ownership
		e.recordDenial(ctx, actor.UserID, result, opts)
		return result, nil
	}

	return allowed(), nil
}

// HasPermission is a layers-1-2 fast path for UI gating. It must not be
// the sole authorization gate for a mutating action.
func (e *Evaluator) HasPermission(ctx context.Context, state ActorState, perm Permission) bool {
	if state.Loading || state.Actor == nil {
		return false
	}

	level, perms, err := e.resolveRoles(ctx, state.Actor)
	if err != nil {
		e.logger.Error("role resolution failed", slog.Any("error", err))
		return false
	}

	if slices.Contains(perms, perm) {
		return true
	}
	if level >= LevelAdmin {
		if override, ok := perm.AdminOverride(); ok {
			return slices.Contains(perms, override)
		}
	}
	return false
}

// HasRoleLevel reports whether the actor's maximum role level is at least
// the given level. UI fast path, same caveat as HasPermission.
func (e *Evaluator) HasRoleLevel(ctx context.Context, state ActorState, level RoleLevel) bool {
	if state.Loading || state.Actor == nil {
		return false
	}

	actorLevel, _, err := e.resolveRoles(ctx, state.Actor)
	if err != nil {
		e.logger.Error("role resolution failed", slog.Any("error", err))
		return false
	}
	return actorLevel >= level
}

// VerifyResourceAccess resolves ownership directly, bypassing layers 1-2.
// Used by callers that already hold an allowed verdict and need the
// granular access level.
func (e *Evaluator) VerifyResourceAccess(ctx context.Context, userID, resourceType, resourceID string) (OwnershipResult, error) {
	return e.owners.Resolve(ctx, resourceType, resourceID, userID)
}

// resolveRoles folds the actor's role set into its maximum level and the
// union of granted permissions.
func (e *Evaluator) resolveRoles(ctx context.Context, actor *Actor) (RoleLevel, []Permission, error) {
	table, err := e.dir.Roles(ctx)
	if err != nil {
		return LevelNone, nil, err
	}

	level := LevelNone
	var perms []Permission
	for _, role := range actor.Roles {
		def, ok := table[role]
		if !ok {
			continue
		}
		if def.Level > level {
			level = def.Level
		}
		for _, p := range def.Permissions {
			if !slices.Contains(perms, p) {
				perms = append(perms, p)
			}
		}
	}
	return level, perms, nil
}

func (e *Evaluator) ownershipApplies(opts CheckOptions) bool {
	if opts.SkipOwnership {
		return false
	}
	if opts.ResourceType == "" {
		return false
	}
	if opts.Permission != "" && !opts.Permission.RequiresOwnership() {
		return false
	}
	return true
}

func (e *Evaluator) recordDenial(ctx context.Context, userID string, result CheckResult, opts CheckOptions) {
	e.logger.WarnContext(ctx, "access denied",
		slog.String("user_id", userID),
		slog.Int("layer", result.Layer),
		slog.String("reason", result.Reason),
		slog.String("permission", string(opts.Permission)),
		slog.String("resource_type", opts.ResourceType),
	)

	if e.audit == nil {
		return
	}
	details := map[string]interface{}{
		"permission":    string(opts.Permission),
		"resource_type": opts.ResourceType,
		"resource_id":   opts.ResourceID,
	}
	e.audit.AccessDenied(ctx, userID, result.Layer, result.Reason, details)
}
