package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dipdive.org/internal/rbac"
)

func TestInTxRollsBackSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(st rbac.Store) error {
		_, err := st.CreateAccount(ctx, rbac.Account{
			FirstName: "Ghost", LastName: "Row", Email: "ghost@dipdive.local", Active: true,
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetAccountByEmail(ctx, "ghost@dipdive.local")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestInTxCommitsAndNests(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.InTx(ctx, func(st rbac.Store) error {
		return st.InTx(ctx, func(inner rbac.Store) error {
			_, err := inner.CreateAccount(ctx, rbac.Account{
				FirstName: "Kept", LastName: "Row", Email: "kept@dipdive.local", Active: true,
			})
			return err
		})
	})
	require.NoError(t, err)

	a, err := store.GetAccountByEmail(ctx, "kept@dipdive.local")
	require.NoError(t, err)
	assert.Equal(t, "Kept", a.FirstName)
}

func TestLiveUniquenessIgnoresDeletedRows(t *testing.T) {
	store := New()
	ctx := context.Background()

	a, err := store.CreateAccount(ctx, rbac.Account{
		FirstName: "One", LastName: "Row", Email: "same@dipdive.local", Active: true,
	})
	require.NoError(t, err)

	_, err = store.CreateAccount(ctx, rbac.Account{
		FirstName: "Two", LastName: "Row", Email: "same@dipdive.local", Active: true,
	})
	assert.ErrorIs(t, err, rbac.ErrConflict)

	require.NoError(t, store.SoftDeleteAccount(ctx, a.ID))

	_, err = store.CreateAccount(ctx, rbac.Account{
		FirstName: "Two", LastName: "Row", Email: "same@dipdive.local", Active: true,
	})
	assert.NoError(t, err)
}

func TestGetAnyAndRestore(t *testing.T) {
	store := New()
	ctx := context.Background()

	r, err := store.CreateRole(ctx, rbac.Role{
		Name: "diver", DisplayName: "Diver", Category: rbac.CategoryDiving, Active: true,
	})
	require.NoError(t, err)
	require.NoError(t, store.SoftDeleteRole(ctx, r.ID))

	_, err = store.GetRole(ctx, r.ID)
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	any, err := store.GetRoleAny(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, any.DeletedAt)

	require.NoError(t, store.RestoreRole(ctx, r.ID))
	restored, err := store.GetRole(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
	assert.True(t, restored.Active)
}

func TestEdgeVisibilityCoversRevokedEdges(t *testing.T) {
	store := New().WithClock(func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()

	a, err := store.CreateAccount(ctx, rbac.Account{
		FirstName: "Edge", LastName: "Case", Email: "edge@dipdive.local", Active: true,
	})
	require.NoError(t, err)
	r, err := store.CreateRole(ctx, rbac.Role{
		Name: "diver", DisplayName: "Diver", Category: rbac.CategoryDiving, Active: true,
	})
	require.NoError(t, err)

	_, err = store.CreateAccountRole(ctx, rbac.AccountRole{AccountID: a.ID, RoleID: r.ID, Active: true})
	require.NoError(t, err)

	require.NoError(t, store.SetAccountRoleActive(ctx, a.ID, r.ID, false))

	// revoked edges stay visible to lookups
	edge, err := store.GetAccountRole(ctx, a.ID, r.ID)
	require.NoError(t, err)
	assert.False(t, edge.Active)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), edge.UpdatedAt)

	// and a second live pair still conflicts
	_, err = store.CreateAccountRole(ctx, rbac.AccountRole{AccountID: a.ID, RoleID: r.ID, Active: true})
	assert.ErrorIs(t, err, rbac.ErrConflict)
}
