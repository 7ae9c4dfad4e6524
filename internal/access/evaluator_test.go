package access

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyResolver counts ownership resolutions so tests can prove Layer 3 was
// never reached.
type spyResolver struct {
	calls  int
	result OwnershipResult
}

func (s *spyResolver) Resolve(_ context.Context, _, _, _ string) (OwnershipResult, error) {
	s.calls++
	return s.result, nil
}

func newTestEvaluator(resolver OwnershipResolver) *Evaluator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEvaluator(DefaultDirectory(), resolver, nil, logger)
}

func TestCheckAccess_UnauthenticatedDeniesAtLayer1(t *testing.T) {
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessFull}}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(), AnonymousActor(), CheckOptions{
		Permission:   PermListingsOwnEdit,
		MinLevel:     LevelUser,
		ResourceType: "listing",
		ResourceID:   "42",
	})
	require.NoError(t, err)

	assert.True(t, result.Denied())
	assert.Equal(t, LayerAuthentication, result.Layer)
	assert.Equal(t, ReasonAuthRequired, result.Reason)
	// Layers 2-3 never ran.
	assert.Equal(t, 0, spy.calls)
}

func TestCheckAccess_LoadingActorIsPendingNotDenied(t *testing.T) {
	spy := &spyResolver{}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(), LoadingActor(), CheckOptions{
		Permission: PermListingsOwnEdit,
	})
	require.NoError(t, err)

	assert.Equal(t, DecisionPending, result.Decision)
	assert.False(t, result.Denied())
	assert.False(t, result.Allowed())
	assert.Equal(t, 0, spy.calls)
}

func TestCheckAccess_InsufficientRoleLevelDeniesAtLayer2(t *testing.T) {
	spy := &spyResolver{}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{MinLevel: LevelModerator})
	require.NoError(t, err)

	assert.True(t, result.Denied())
	assert.Equal(t, LayerAuthorization, result.Layer)
	assert.Equal(t, ReasonInsufficientRole, result.Reason)
	assert.Equal(t, 0, spy.calls)
}

func TestCheckAccess_MissingPermissionDeniesAtLayer2(t *testing.T) {
	spy := &spyResolver{}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{Permission: PermAuditAllView})
	require.NoError(t, err)

	assert.True(t, result.Denied())
	assert.Equal(t, LayerAuthorization, result.Layer)
	assert.Equal(t, ReasonMissingPerm, result.Reason)
	assert.Equal(t, 0, spy.calls)
}

func TestCheckAccess_OwnerScopedPermissionConsultsResolver(t *testing.T) {
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessFull}}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{
			Permission:   PermListingsOwnEdit,
			ResourceType: "listing",
			ResourceID:   "42",
		})
	require.NoError(t, err)

	assert.True(t, result.Allowed())
	assert.Equal(t, 1, spy.calls)
}

func TestCheckAccess_NotOwnerDeniesAtLayer3(t *testing.T) {
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessNone, Reason: "no access"}}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{
			Permission:   PermListingsOwnEdit,
			ResourceType: "listing",
			ResourceID:   "42",
		})
	require.NoError(t, err)

	assert.True(t, result.Denied())
	assert.Equal(t, LayerOwnership, result.Layer)
	require.NotNil(t, result.Ownership)
	assert.Equal(t, AccessNone, result.Ownership.AccessLevel)
}

func TestCheckAccess_AdminOverrideSupersedesOwnership(t *testing.T) {
	// Resource owned by someone else: the resolver would say no.
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessNone}}
	e := newTestEvaluator(spy)

	// Admin holds listings.all.edit, so the own.-scoped request passes both
	// the permission check and the ownership layer without a resolver call.
	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("admin1", RoleAdmin),
		CheckOptions{
			Permission:   PermListingsOwnEdit,
			ResourceType: "listing",
			ResourceID:   "42",
		})
	require.NoError(t, err)
	assert.True(t, result.Allowed())
	assert.Equal(t, 0, spy.calls)

	// A plain user holding only the own.-scoped permission is denied for a
	// resource owned by someone else.
	result, err = e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{
			Permission:   PermListingsOwnEdit,
			ResourceType: "listing",
			ResourceID:   "42",
		})
	require.NoError(t, err)
	assert.True(t, result.Denied())
	assert.Equal(t, LayerOwnership, result.Layer)
}

func TestCheckAccess_AdminOverrideNeverSupersedesAuthentication(t *testing.T) {
	spy := &spyResolver{}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(), AnonymousActor(), CheckOptions{
		Permission: PermListingsAllEdit,
	})
	require.NoError(t, err)

	assert.True(t, result.Denied())
	assert.Equal(t, LayerAuthentication, result.Layer)
}

func TestCheckAccess_SkipOwnership(t *testing.T) {
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessNone}}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("u1", RoleUser),
		CheckOptions{
			Permission:    PermListingsOwnEdit,
			ResourceType:  "listing",
			ResourceID:    "42",
			SkipOwnership: true,
		})
	require.NoError(t, err)

	assert.True(t, result.Allowed())
	assert.Equal(t, 0, spy.calls)
}

func TestCheckAccess_NonOwnerScopedPermissionSkipsLayer3(t *testing.T) {
	spy := &spyResolver{result: OwnershipResult{AccessLevel: AccessNone}}
	e := newTestEvaluator(spy)

	result, err := e.CheckAccess(context.Background(),
		ResolvedActor("mod1", RoleModerator),
		CheckOptions{
			Permission:   PermOrdersAllView,
			ResourceType: "order",
			ResourceID:   "7",
		})
	require.NoError(t, err)

	assert.True(t, result.Allowed())
	assert.Equal(t, 0, spy.calls)
}

func TestHasPermission(t *testing.T) {
	e := newTestEvaluator(&spyResolver{})
	ctx := context.Background()

	assert.True(t, e.HasPermission(ctx, ResolvedActor("u1", RoleUser), PermListingsOwnEdit))
	assert.False(t, e.HasPermission(ctx, ResolvedActor("u1", RoleUser), PermListingsAllEdit))
	assert.True(t, e.HasPermission(ctx, ResolvedActor("a1", RoleAdmin), PermListingsAllEdit))
	assert.False(t, e.HasPermission(ctx, AnonymousActor(), PermListingsOwnEdit))
	assert.False(t, e.HasPermission(ctx, LoadingActor(), PermListingsOwnEdit))
}

func TestHasRoleLevel(t *testing.T) {
	e := newTestEvaluator(&spyResolver{})
	ctx := context.Background()

	assert.True(t, e.HasRoleLevel(ctx, ResolvedActor("m1", RoleModerator), LevelUser))
	assert.True(t, e.HasRoleLevel(ctx, ResolvedActor("m1", RoleModerator), LevelModerator))
	assert.False(t, e.HasRoleLevel(ctx, ResolvedActor("m1", RoleModerator), LevelAdmin))
	assert.False(t, e.HasRoleLevel(ctx, AnonymousActor(), LevelUser))
}

func TestHasRoleLevel_MaxOfHeldRoles(t *testing.T) {
	e := newTestEvaluator(&spyResolver{})

	state := ResolvedActor("u1", RoleUser, RoleAdmin)
	assert.True(t, e.HasRoleLevel(context.Background(), state, LevelAdmin))
}

func TestPermission_OwnershipHelpers(t *testing.T) {
	assert.True(t, PermListingsOwnEdit.RequiresOwnership())
	assert.False(t, PermListingsAllEdit.RequiresOwnership())
	assert.False(t, PermAuditAllView.RequiresOwnership())

	override, ok := PermListingsOwnEdit.AdminOverride()
	assert.True(t, ok)
	assert.Equal(t, PermListingsAllEdit, override)

	_, ok = PermAuditAllView.AdminOverride()
	assert.False(t, ok)
}

func TestActorContext_RoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), ResolvedActor("u1", RoleUser))
	state := ActorFromContext(ctx)
	require.NotNil(t, state.Actor)
	assert.Equal(t, "u1", state.Actor.UserID)

	// Absent actor resolves to anonymous, never loading.
	state = ActorFromContext(context.Background())
	assert.Nil(t, state.Actor)
	assert.False(t, state.Loading)
}
