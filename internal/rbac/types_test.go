package rbac_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dipdive.org/internal/rbac"
)

func TestPermissionName(t *testing.T) {
	assert.Equal(t, "dives:read", rbac.PermissionName("dives", rbac.ActionRead))
	assert.Equal(t, "diving_sites:update", rbac.PermissionName("diving_sites", rbac.ActionUpdate))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, rbac.CategoryAdmin.Valid())
	assert.True(t, rbac.CategoryDiving.Valid())
	assert.False(t, rbac.Category("finance").Valid())

	for _, a := range []rbac.Action{rbac.ActionCreate, rbac.ActionRead, rbac.ActionUpdate, rbac.ActionDelete} {
		assert.True(t, a.Valid())
	}
	assert.False(t, rbac.Action("teleport").Valid())
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "ada@dipdive.local", rbac.NormalizeEmail(" Ada@DipDive.Local "))
	assert.Equal(t, "dive_master", rbac.NormalizeName("  Dive_Master "))
}

func TestAccountFullNameAndJSON(t *testing.T) {
	a := rbac.Account{
		FirstName:    "Ada",
		LastName:     "Diver",
		Email:        "ada@dipdive.local",
		PasswordHash: "secret-hash",
	}
	assert.Equal(t, "Ada Diver", a.FullName())

	// the credential hash never serializes
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-hash")
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, rbac.AdminRole(rbac.Role{Category: rbac.CategoryAdmin}))
	assert.False(t, rbac.AdminRole(rbac.Role{Category: rbac.CategoryDiving}))
	assert.True(t, rbac.DivingPermission(rbac.Permission{Category: rbac.CategoryDiving}))
	assert.False(t, rbac.AdminPermission(rbac.Permission{Category: rbac.CategoryDiving}))
}
