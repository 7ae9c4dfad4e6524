package access

import "context"

// Directory provides the role/permission table the evaluator consumes.
// Role assignment and permission definitions are written elsewhere; this
// core only reads them.
type Directory interface {
	Roles(ctx context.Context) (map[Role]RoleDefinition, error)
}

// StaticDirectory is an in-memory Directory for tests and defaults.
type StaticDirectory map[Role]RoleDefinition

// Roles returns the directory table as-is.
func (d StaticDirectory) Roles(_ context.Context) (map[Role]RoleDefinition, error) {
	return d, nil
}

// DefaultDirectory returns the marketplace's built-in role table. The
// database-backed directory takes precedence when configured.
func DefaultDirectory() StaticDirectory {
	return StaticDirectory{
		RoleUser: {
			Level: LevelUser,
			Permissions: []Permission{
				PermListingsOwnEdit,
				PermListingsOwnDelete,
				PermOrdersOwnView,
				PermMFAOwnManage,
			},
		},
		RoleModerator: {
			Level: LevelModerator,
			Permissions: []Permission{
				PermListingsOwnEdit,
				PermListingsOwnDelete,
				PermOrdersOwnView,
				PermMFAOwnManage,
				PermOrdersAllView,
			},
		},
		RoleAdmin: {
			Level: LevelAdmin,
			Permissions: []Permission{
				PermListingsOwnEdit,
				PermListingsOwnDelete,
				PermOrdersOwnView,
				PermMFAOwnManage,
				PermListingsAllEdit,
				PermListingsAllDelete,
				PermOrdersAllView,
				PermMFAAllManage,
				PermAuditAllView,
			},
		},
	}
}

// OwnershipResolver resolves whether a user may touch a resource. It is an
// external collaborator keyed by resource type; implementations typically
// query the datastore owning that resource kind.
type OwnershipResolver interface {
	Resolve(ctx context.Context, resourceType, resourceID, userID string) (OwnershipResult, error)
}

// OwnershipResolverFunc adapts a function to the OwnershipResolver interface.
type OwnershipResolverFunc func(ctx context.Context, resourceType, resourceID, userID string) (OwnershipResult, error)

func (f OwnershipResolverFunc) Resolve(ctx context.Context, resourceType, resourceID, userID string) (OwnershipResult, error) {
	return f(ctx, resourceType, resourceID, userID)
}

// ResolverRegistry routes ownership resolution by resource type.
type ResolverRegistry struct {
	resolvers map[string]OwnershipResolver
}

// NewResolverRegistry creates an empty registry.
func NewResolverRegistry() *ResolverRegistry {
	return &ResolverRegistry{resolvers: make(map[string]OwnershipResolver)}
}

// Register binds a resolver to a resource type, replacing any previous one.
func (rr *ResolverRegistry) Register(resourceType string, resolver OwnershipResolver) {
	rr.resolvers[resourceType] = resolver
}

// Resolve dispatches to the registered resolver. Unknown resource types
// resolve to AccessNone, matching the anti-enumeration posture.
func (rr *ResolverRegistry) Resolve(ctx context.Context, resourceType, resourceID, userID string) (OwnershipResult, error) {
	resolver, ok := rr.resolvers[resourceType]
	if !ok {
		return OwnershipResult{AccessLevel: AccessNone, Reason: "no access"}, nil
	}
	return resolver.Resolve(ctx, resourceType, resourceID, userID)
}
