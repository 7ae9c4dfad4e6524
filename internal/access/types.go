package access

import "strings"

// Role is one of the closed set of named roles in the marketplace.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// RoleLevel is a total order over roles: User < Moderator < Admin.
type RoleLevel int

const (
	LevelNone      RoleLevel = 0
	LevelUser      RoleLevel = 1
	LevelModerator RoleLevel = 2
	LevelAdmin     RoleLevel = 3
)

// Permission is a capability string. Permissions carrying an "own." segment
// require an ownership check unless the actor holds the matching "all."
// variant (the administrative override).
type Permission string

// Marketplace capability strings consulted by the evaluator. The mapping of
// roles to permissions lives in the role directory; this is the closed set
// of names.
const (
	PermListingsOwnEdit   Permission = "listings.own.edit"
	PermListingsAllEdit   Permission = "listings.all.edit"
	PermListingsOwnDelete Permission = "listings.own.delete"
	PermListingsAllDelete Permission = "listings.all.delete"
	PermOrdersOwnView     Permission = "orders.own.view"
	PermOrdersAllView     Permission = "orders.all.view"
	PermMFAOwnManage      Permission = "mfa.own.manage"
	PermMFAAllManage      Permission = "mfa.all.manage"
	PermAuditAllView      Permission = "audit.all.view"
)

const ownSegment = "own."

// RequiresOwnership reports whether the permission names an owner-scoped
// capability and therefore needs Layer 3 verification.
func (p Permission) RequiresOwnership() bool {
	s := string(p)
	return strings.HasPrefix(s, ownSegment) || strings.Contains(s, "."+ownSegment)
}

// AdminOverride returns the "all."-scoped variant of an "own."-scoped
// permission, and whether one exists.
func (p Permission) AdminOverride() (Permission, bool) {
	s := string(p)
	switch {
	case strings.HasPrefix(s, ownSegment):
		return Permission("all." + s[len(ownSegment):]), true
	case strings.Contains(s, "."+ownSegment):
		return Permission(strings.Replace(s, "."+ownSegment, ".all.", 1)), true
	}
	return "", false
}

// RoleDefinition is one row of the role/permission directory: the role's
// level in the total order and the permissions it grants.
type RoleDefinition struct {
	Level       RoleLevel
	Permissions []Permission
}

// AccessLevel describes how much of a resource an actor may touch.
type AccessLevel string

const (
	AccessNone  AccessLevel = "none"
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessFull  AccessLevel = "full"
)

// OwnershipResult is the verdict of the ownership-resolution collaborator.
// AccessNone covers both "not yours" and "does not exist" so that a denial
// never confirms a resource's existence.
type OwnershipResult struct {
	AccessLevel AccessLevel `json:"access_level"`
	Reason      string      `json:"reason,omitempty"`
}

// Decision is the outcome kind of a security check.
type Decision int

const (
	// DecisionPending means the actor identity is still resolving. It is
	// distinct from denial; callers must not treat it as denied.
	DecisionPending Decision = iota
	DecisionAllowed
	DecisionDenied
)

// Evaluator layers, in execution order. Layer 4 is the datastore's own
// enforcement and is outside this core.
const (
	LayerAuthentication = 1
	LayerAuthorization  = 2
	LayerOwnership      = 3
)

// CheckResult is the typed verdict of a layered access check. A denied
// result always carries the layer that rejected it.
type CheckResult struct {
	Decision  Decision         `json:"decision"`
	Layer     int              `json:"layer,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Ownership *OwnershipResult `json:"ownership,omitempty"`
}

// Allowed reports whether the check passed outright.
func (r CheckResult) Allowed() bool { return r.Decision == DecisionAllowed }

// Denied reports whether the check was rejected (pending is not denied).
func (r CheckResult) Denied() bool { return r.Decision == DecisionDenied }

func allowed() CheckResult {
	return CheckResult{Decision: DecisionAllowed}
}

func deniedAt(layer int, reason string) CheckResult {
	return CheckResult{Decision: DecisionDenied, Layer: layer, Reason: reason}
}

func pending() CheckResult {
	return CheckResult{Decision: DecisionPending}
}

// Actor is a resolved caller identity with its held roles.
type Actor struct {
	UserID string
	Roles  []Role
}

// ActorState carries the authentication layer's input: Loading while the
// identity is still resolving, and a nil Actor once resolved-and-absent.
type ActorState struct {
	Loading bool
	Actor   *Actor
}

// ResolvedActor is the common case of a known, fully resolved actor.
func ResolvedActor(userID string, roles ...Role) ActorState {
	return ActorState{Actor: &Actor{UserID: userID, Roles: roles}}
}

// AnonymousActor is a resolved-but-absent identity.
func AnonymousActor() ActorState { return ActorState{} }

// LoadingActor is an identity still being resolved.
func LoadingActor() ActorState { return ActorState{Loading: true} }
