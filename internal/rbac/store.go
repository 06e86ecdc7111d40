package rbac

import "context"

// Store describes the persistence operations the authorization graph needs.
//
// Lookup methods (GetAccount, GetRole, GetPermission and the By* variants)
// see only live rows: soft-deleted records resolve to ErrNotFound. The *Any
// variants include soft-deleted rows and exist for restore paths. Edge
// lookups and listings cover non-deleted edges regardless of their active
// flag.
//
// Multi-statement mutations are only atomic inside InTx; the service layer
// wraps every mutating operation in it.
type Store interface {
	// InTx runs fn inside a single storage transaction, rolling back all
	// writes if fn returns an error. Calling InTx on a store that is
	// already transactional reuses the open transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountAny(ctx context.Context, id string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (Account, error)
	SetAccountActive(ctx context.Context, id string, active bool) error
	SoftDeleteAccount(ctx context.Context, id string) error
	RestoreAccount(ctx context.Context, id string) error

	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleAny(ctx context.Context, id string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	SetRoleActive(ctx context.Context, id string, active bool) error
	SoftDeleteRole(ctx context.Context, id string) error
	RestoreRole(ctx context.Context, id string) error

	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	GetPermission(ctx context.Context, id string) (Permission, error)
	GetPermissionAny(ctx context.Context, id string) (Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error)
	SetPermissionActive(ctx context.Context, id string, active bool) error
	SoftDeletePermission(ctx context.Context, id string) error
	RestorePermission(ctx context.Context, id string) error

	CreateAccountRole(ctx context.Context, e AccountRole) (AccountRole, error)
	GetAccountRole(ctx context.Context, accountID, roleID string) (AccountRole, error)
	ListAccountRoles(ctx context.Context, accountID string) ([]AccountRole, error)
	SetAccountRoleActive(ctx context.Context, accountID, roleID string, active bool) error

	CreateRolePermission(ctx context.Context, e RolePermission) (RolePermission, error)
	GetRolePermission(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	ListRolePermissions(ctx context.Context, roleID string) ([]RolePermission, error)
	SetRolePermissionActive(ctx context.Context, roleID, permissionID string, active bool) error
}
