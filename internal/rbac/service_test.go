package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dipdive.org/internal/rbac"
	"dipdive.org/internal/store/memory"
)

func newService(t *testing.T) (*rbac.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc, err := rbac.NewService(store)
	require.NoError(t, err)
	return svc, store
}

func mustAccount(t *testing.T, svc *rbac.Service, email string) rbac.Account {
	t.Helper()
	a, err := svc.CreateAccount(context.Background(), rbac.NewAccount{
		FirstName:    "Test",
		LastName:     "Account",
		Email:        email,
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	return a
}

func mustRole(t *testing.T, svc *rbac.Service, name string) rbac.Role {
	t.Helper()
	r, err := svc.CreateRole(context.Background(), rbac.NewRole{
		Name:        name,
		DisplayName: name,
		Category:    rbac.CategoryDiving,
	})
	require.NoError(t, err)
	return r
}

func mustPermission(t *testing.T, svc *rbac.Service, resource string, action rbac.Action) rbac.Permission {
	t.Helper()
	p, err := svc.CreatePermission(context.Background(), rbac.NewPermission{
		Resource:    resource,
		Action:      action,
		DisplayName: resource + " " + string(action),
		Category:    rbac.CategoryDiving,
	})
	require.NoError(t, err)
	return p
}

func TestCreateAccountNormalizesAndConflicts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, rbac.NewAccount{
		FirstName:     "  Ada ",
		LastName:      " Diver ",
		Email:         " Ada@DipDive.Local ",
		PasswordHash:  "hash",
		LicenseNumber: "padi-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@dipdive.local", a.Email)
	assert.Equal(t, "Ada", a.FirstName)
	assert.Equal(t, "PADI-9", a.LicenseNumber)
	assert.True(t, a.Active)
	assert.NotEmpty(t, a.ID)

	_, err = svc.CreateAccount(ctx, rbac.NewAccount{
		FirstName:    "Second",
		LastName:     "Person",
		Email:        "ADA@dipdive.local",
		PasswordHash: "hash",
	})
	assert.ErrorIs(t, err, rbac.ErrConflict)
}

func TestCreateAccountValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   rbac.NewAccount
	}{
		{"missing email", rbac.NewAccount{FirstName: "A", LastName: "B", PasswordHash: "h"}},
		{"bad email", rbac.NewAccount{FirstName: "A", LastName: "B", Email: "no-at-sign", PasswordHash: "h"}},
		{"missing first name", rbac.NewAccount{LastName: "B", Email: "a@b.c", PasswordHash: "h"}},
		{"missing credential", rbac.NewAccount{FirstName: "A", LastName: "B", Email: "a@b.c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, tc.in)
			assert.ErrorIs(t, err, rbac.ErrInvalidInput)
		})
	}
}

func TestCreateRoleAndPermissionNaming(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, rbac.NewRole{
		Name:        "  Dive_Master ",
		DisplayName: "Dive Master",
		Category:    rbac.CategoryDiving,
	})
	require.NoError(t, err)
	assert.Equal(t, "dive_master", role.Name)

	_, err = svc.CreateRole(ctx, rbac.NewRole{
		Name:        "DIVE_MASTER",
		DisplayName: "Duplicate",
		Category:    rbac.CategoryDiving,
	})
	assert.ErrorIs(t, err, rbac.ErrConflict)

	_, err = svc.CreateRole(ctx, rbac.NewRole{
		Name:        "broken",
		DisplayName: "Broken",
		Category:    rbac.Category("nonsense"),
	})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	perm, err := svc.CreatePermission(ctx, rbac.NewPermission{
		Resource:    " Dives ",
		Action:      rbac.ActionRead,
		DisplayName: "Read Dives",
		Category:    rbac.CategoryDiving,
	})
	require.NoError(t, err)
	assert.Equal(t, "dives:read", perm.Name)
	assert.Equal(t, "dives", perm.Resource)

	_, err = svc.CreatePermission(ctx, rbac.NewPermission{
		Resource:    "dives",
		Action:      rbac.Action("explode"),
		DisplayName: "Bad Action",
		Category:    rbac.CategoryDiving,
	})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}

func TestAssignRoleLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "finn@dipdive.local")
	role := mustRole(t, svc, "diver")

	edge, err := svc.AssignRole(ctx, account.ID, role.ID, "")
	require.NoError(t, err)
	assert.True(t, edge.Active)
	assert.Equal(t, account.ID, edge.AccountID)

	// the same pair again conflicts, revoked or not
	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	assert.ErrorIs(t, err, rbac.ErrConflict)

	require.NoError(t, svc.RevokeRole(ctx, account.ID, role.ID))

	// revocation keeps the row; re-assignment still conflicts
	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	assert.ErrorIs(t, err, rbac.ErrConflict)

	err = svc.RevokeRole(ctx, account.ID, "missing-role")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestAssignRoleRejectsInactiveEndpoints(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "nora@dipdive.local")
	role := mustRole(t, svc, "instructor")

	require.NoError(t, svc.DeactivateRole(ctx, role.ID))
	_, err := svc.AssignRole(ctx, account.ID, role.ID, "")
	assert.ErrorIs(t, err, rbac.ErrInvalidState)

	require.NoError(t, svc.ReactivateRole(ctx, role.ID))
	require.NoError(t, svc.DeactivateAccount(ctx, account.ID))
	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	assert.ErrorIs(t, err, rbac.ErrInvalidState)

	require.NoError(t, svc.ReactivateAccount(ctx, account.ID))
	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	assert.NoError(t, err)
}

func TestGrantPermissionValidatesAssigner(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	admin := mustAccount(t, svc, "admin@dipdive.local")
	role := mustRole(t, svc, "diver")
	perm := mustPermission(t, svc, "dives", rbac.ActionRead)

	edge, err := svc.GrantPermission(ctx, role.ID, perm.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, edge.AssignedBy)

	role2 := mustRole(t, svc, "observer")
	_, err = svc.GrantPermission(ctx, role2.ID, perm.ID, "not-a-real-account")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestSoftDeleteCascadesAndRestores(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "cascade@dipdive.local")
	role := mustRole(t, svc, "diver")
	perm := mustPermission(t, svc, "dives", rbac.ActionRead)

	_, err := svc.AssignRole(ctx, account.ID, role.ID, "")
	require.NoError(t, err)
	_, err = svc.GrantPermission(ctx, role.ID, perm.ID, "")
	require.NoError(t, err)

	require.NoError(t, svc.SoftDeleteRole(ctx, role.ID))

	// live lookups no longer see the role
	_, err = svc.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	// cascaded edges are gone for good
	edges, err := store.ListAccountRoles(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)

	// deleting twice is NotFound, not a silent success
	assert.ErrorIs(t, svc.SoftDeleteRole(ctx, role.ID), rbac.ErrNotFound)

	// reactivate restores the role itself but not the cascaded edges
	require.NoError(t, svc.ReactivateRole(ctx, role.ID))
	restored, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, restored.Active)

	edges, err = store.ListAccountRoles(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestSoftDeletePermissionRoundTrip(t *testing.T) {
	svc, store := newService(t)
	resolver, err := rbac.NewResolver(store)
	require.NoError(t, err)
	ctx := context.Background()

	account := mustAccount(t, svc, "roundtrip@dipdive.local")
	role := mustRole(t, svc, "diver")
	perm := mustPermission(t, svc, "dives", rbac.ActionRead)

	_, err = svc.AssignRole(ctx, account.ID, role.ID, "")
	require.NoError(t, err)
	_, err = svc.GrantPermission(ctx, role.ID, perm.ID, "")
	require.NoError(t, err)

	allowed, err := resolver.IsAuthorized(ctx, account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, svc.SoftDeletePermission(ctx, perm.ID))

	// live lookups and authorization both lose the permission
	_, err = svc.GetPermission(ctx, perm.ID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)
	allowed, err = resolver.IsAuthorized(ctx, account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// reactivate restores the permission row but not the cascaded grant
	require.NoError(t, svc.ReactivatePermission(ctx, perm.ID))
	restored, err := svc.GetPermission(ctx, perm.ID)
	require.NoError(t, err)
	assert.True(t, restored.Active)
	assert.Nil(t, restored.DeletedAt)

	allowed, err = resolver.IsAuthorized(ctx, account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.False(t, allowed)

	// a fresh grant makes it resolvable again
	_, err = svc.GrantPermission(ctx, role.ID, perm.ID, "")
	require.NoError(t, err)
	allowed, err = resolver.IsAuthorized(ctx, account.ID, "dives", rbac.ActionRead)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSoftDeleteAccountFreesEmail(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "reuse@dipdive.local")
	require.NoError(t, svc.SoftDeleteAccount(ctx, account.ID))

	// the email can be reused by a fresh account
	again := mustAccount(t, svc, "reuse@dipdive.local")
	assert.NotEqual(t, account.ID, again.ID)
}

func TestUpdateAccount(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "update@dipdive.local")

	first := "Renamed"
	updated, err := svc.UpdateAccount(ctx, account.ID, rbac.AccountUpdate{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FirstName)
	assert.Equal(t, account.Email, updated.Email)

	empty := "  "
	_, err = svc.UpdateAccount(ctx, account.ID, rbac.AccountUpdate{FirstName: &empty})
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	_, err = svc.UpdateAccount(ctx, "missing", rbac.AccountUpdate{FirstName: &first})
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestDeactivateIsReversibleAndKeepsRows(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	account := mustAccount(t, svc, "pause@dipdive.local")
	require.NoError(t, svc.DeactivateAccount(ctx, account.ID))

	got, err := svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Nil(t, got.DeletedAt)

	require.NoError(t, svc.ReactivateAccount(ctx, account.ID))
	got, err = svc.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}
