package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dipdive.org/internal/rbac"
	"dipdive.org/internal/store/memory"
)

type resolverFixture struct {
	svc      *rbac.Service
	resolver *rbac.Resolver
	account  rbac.Account
	role     rbac.Role
	perm     rbac.Permission
}

// newResolverFixture builds one account holding one role that grants
// dives:read.
func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	store := memory.New()
	svc, err := rbac.NewService(store)
	require.NoError(t, err)
	resolver, err := rbac.NewResolver(store)
	require.NoError(t, err)
	ctx := context.Background()

	account := mustAccount(t, svc, "diver@dipdive.local")
	role := mustRole(t, svc, "diver")
	perm := mustPermission(t, svc, "dives", rbac.ActionRead)

	_, err = svc.GrantPermission(ctx, role.ID, perm.ID, "")
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	require.NoError(t, err)

	return &resolverFixture{svc: svc, resolver: resolver, account: account, role: role, perm: perm}
}

func TestIsAuthorized(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	allowed, err := f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionDelete)
	require.NoError(t, err)
	assert.False(t, allowed)

	// resource casing is normalized before the membership test
	allowed, err = f.resolver.IsAuthorized(ctx, f.account.ID, " DIVES ", rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	// unknown action is a denial, not an error
	allowed, err = f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.Action("fly"))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestResolutionReflectsDeactivation(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// deactivating the role removes its grants from the effective set
	require.NoError(t, f.svc.DeactivateRole(ctx, f.role.ID))
	allowed, err := f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	perms, err := f.resolver.EffectivePermissions(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, perms)

	// reactivation restores resolution without touching any edge
	require.NoError(t, f.svc.ReactivateRole(ctx, f.role.ID))
	allowed, err = f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestResolutionReflectsEdgeAndEndpointState(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	// inactive permission endpoint wins over an active grant edge
	require.NoError(t, f.svc.DeactivatePermission(ctx, f.perm.ID))
	allowed, err := f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)
	require.NoError(t, f.svc.ReactivatePermission(ctx, f.perm.ID))

	// a revoked assignment stops resolution while the row survives
	require.NoError(t, f.svc.RevokeRole(ctx, f.account.ID, f.role.ID))
	allowed, err = f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	roles, err := f.resolver.EffectiveRoles(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestResolutionForInactiveOrMissingAccount(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeactivateAccount(ctx, f.account.ID))

	// inactive account resolves to empty sets, not an error
	roles, err := f.resolver.EffectiveRoles(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, roles)

	allowed, err := f.resolver.IsAuthorized(ctx, f.account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// well-formed but unknown id behaves the same
	perms, err := f.resolver.EffectivePermissions(ctx, "7b77c2f0-0000-4000-8000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, perms)

	// malformed id is an input error
	_, err = f.resolver.EffectiveRoles(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}

func TestResolutionDeduplicatesAcrossRoles(t *testing.T) {
	f := newResolverFixture(t)
	ctx := context.Background()

	second := mustRole(t, f.svc, "dive_master")
	_, err := f.svc.GrantPermission(ctx, second.ID, f.perm.ID, "")
	require.NoError(t, err)
	_, err = f.svc.AssignRole(ctx, f.account.ID, second.ID, "")
	require.NoError(t, err)

	perms, err := f.resolver.EffectivePermissions(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	roles, err := f.resolver.EffectiveRoles(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}
