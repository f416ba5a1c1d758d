package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	return NewEngine(DefaultCatalog(), NewMemoryStore(), opts...)
}

func TestAssignAndCheckRolePermissions(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	dev := uuid.New()

	require.NoError(t, engine.AssignRole(ctx, dev, RoleDeveloper))

	pctx := NewContext(dev, "10.0.0.1")
	require.True(t, engine.CheckPermission(ctx, dev, NewPermission("tokens", "generate"), pctx))
	// Inherited via read_only.
	require.True(t, engine.CheckPermission(ctx, dev, NewPermission("documentation", "read"), pctx))
	// Admin-only.
	require.False(t, engine.CheckPermission(ctx, dev, NewPermission("developers", "create"), pctx))
}

func TestAssignUnknownRole(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.AssignRole(context.Background(), uuid.New(), Role("warlord"))
	require.ErrorIs(t, err, ErrUnknownRole)

	err = engine.RemoveRole(context.Background(), uuid.New(), Role("warlord"))
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestRemoveRoleRevokesPermissions(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	id := uuid.New()

	require.NoError(t, engine.AssignRole(ctx, id, RoleAuditor))
	pctx := NewContext(id, "")
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("compliance", "report"), pctx))

	require.NoError(t, engine.RemoveRole(ctx, id, RoleAuditor))
	require.False(t, engine.CheckPermission(ctx, id, NewPermission("compliance", "report"), pctx))
}

func TestDenialOverridesEverything(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	id := uuid.New()
	pctx := NewContext(id, "")

	require.NoError(t, engine.AssignRole(ctx, id, RoleSuperAdmin))
	require.NoError(t, engine.GrantPermission(ctx, id, NewPermission("system", "manage")))
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("system", "manage"), pctx))

	require.NoError(t, engine.DenyPermission(ctx, id, NewPermission("system", "manage")))
	require.False(t, engine.CheckPermission(ctx, id, NewPermission("system", "manage"), pctx))

	// Unrelated permissions are untouched.
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("audit", "configure"), pctx))
}

func TestCustomGrantOutsideRoles(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	id := uuid.New()
	pctx := NewContext(id, "")

	require.NoError(t, engine.AssignRole(ctx, id, RoleReadOnly))
	require.False(t, engine.CheckPermission(ctx, id, NewPermission("tokens", "generate"), pctx))

	require.NoError(t, engine.GrantPermission(ctx, id, NewPermission("tokens", "generate")))
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("tokens", "generate"), pctx))
}

func TestGrantRequiresResourceAndAction(t *testing.T) {
	engine := newTestEngine(t)
	require.Error(t, engine.GrantPermission(context.Background(), uuid.New(), NewPermission("", "read")))
	require.Error(t, engine.DenyPermission(context.Background(), uuid.New(), NewPermission("x", "")))
}

func TestUnknownPrincipalDeniedByDefault(t *testing.T) {
	engine := newTestEngine(t)
	id := uuid.New()
	require.False(t, engine.CheckPermission(context.Background(), id, NewPermission("profile", "read_own"), NewContext(id, "")))
}

func TestUnknownPrincipalFallbackRole(t *testing.T) {
	engine := newTestEngine(t, WithFallbackRole(RoleReadOnly))
	id := uuid.New()
	pctx := NewContext(id, "")

	require.True(t, engine.CheckPermission(context.Background(), id, NewPermission("documentation", "read"), pctx))
	require.False(t, engine.CheckPermission(context.Background(), id, NewPermission("tokens", "generate"), pctx))
}

func TestCheckPermissionEmptyRequired(t *testing.T) {
	engine := newTestEngine(t, WithFallbackRole(RoleSuperAdmin))
	id := uuid.New()
	require.False(t, engine.CheckPermission(context.Background(), id, Permission{}, NewContext(id, "")))
}

func TestAuthorizeReturnsTypedError(t *testing.T) {
	engine := newTestEngine(t)
	id := uuid.New()
	required := NewPermission("system", "manage")

	err := engine.Authorize(context.Background(), id, required, NewContext(id, ""))
	var authzErr *AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, id, authzErr.PrincipalID)
	require.Equal(t, required, authzErr.Required)

	require.NoError(t, engine.AssignRole(context.Background(), id, RoleSuperAdmin))
	require.NoError(t, engine.Authorize(context.Background(), id, required, NewContext(id, "")))
}

func TestOwnershipConditionThroughEngine(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	dev := uuid.New()
	other := uuid.New()
	require.NoError(t, engine.AssignRole(ctx, dev, RoleDeveloper))

	required := NewPermission("projects", "update_own", WithCondition(ConditionOwner, ConditionSelf))
	require.True(t, engine.CheckPermission(ctx, dev, required, NewContext(dev, "", WithResourceOwner(dev))))
	require.False(t, engine.CheckPermission(ctx, dev, required, NewContext(dev, "", WithResourceOwner(other))))
}

func TestEffectivePermissions(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)
	id := uuid.New()

	require.NoError(t, engine.AssignRole(ctx, id, RoleDeveloper))
	require.NoError(t, engine.GrantPermission(ctx, id, NewPermission("reports", "export")))
	require.NoError(t, engine.DenyPermission(ctx, id, NewPermission("tokens", "generate")))

	perms, err := engine.EffectivePermissions(ctx, id)
	require.NoError(t, err)

	set := permissionSet(perms)
	require.Contains(t, set, NewPermission("api", "access").key())
	require.Contains(t, set, NewPermission("reports", "export").key())
	require.Contains(t, set, NewPermission("documentation", "read").key())
	require.NotContains(t, set, NewPermission("tokens", "generate").key())
}

func TestEffectivePermissionsUnknownPrincipal(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.EffectivePermissions(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, principalID uuid.UUID) (UserRoles, error) {
	return UserRoles{}, errors.New("store down")
}

func (failingStore) Mutate(ctx context.Context, principalID uuid.UUID, create func() UserRoles, fn func(*UserRoles)) error {
	return errors.New("store down")
}

func TestStoreFailureDenies(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), failingStore{}, WithFallbackRole(RoleSuperAdmin))
	id := uuid.New()
	require.False(t, engine.CheckPermission(context.Background(), id, NewPermission("profile", "read_own"), NewContext(id, "")))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "rbac")
	engine := NewEngine(DefaultCatalog(), store)
	id := uuid.New()

	require.NoError(t, engine.AssignRole(ctx, id, RoleSupport))
	require.NoError(t, engine.GrantPermission(ctx, id, NewPermission("tickets", "escalate")))
	require.NoError(t, engine.DenyPermission(ctx, id, NewPermission("projects", "read")))

	record, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.Contains(t, record.Roles, RoleSupport)
	require.Len(t, record.CustomPermissions, 1)
	require.Len(t, record.DeniedPermissions, 1)

	pctx := NewContext(id, "")
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("tickets", "escalate"), pctx))
	require.False(t, engine.CheckPermission(ctx, id, NewPermission("projects", "read"), pctx))
	require.True(t, engine.CheckPermission(ctx, id, NewPermission("support", "assist"), pctx))

	_, err = store.Get(ctx, uuid.New())
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}
