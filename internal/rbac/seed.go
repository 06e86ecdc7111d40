package rbac

import (
	"context"
	"errors"
	"fmt"
)

// PermissionSeed describes one catalog permission.
type PermissionSeed struct {
	Resource    string
	Action      Action
	DisplayName string
	Description string
	Category    Category
}

// Name returns the canonical name the seed resolves to.
func (p PermissionSeed) Name() string {
	return PermissionName(NormalizeName(p.Resource), p.Action)
}

// RoleSeed describes one catalog role.
type RoleSeed struct {
	Name        string
	DisplayName string
	Description string
	Category    Category
}

// RootAccountSeed describes the designated root account. PasswordHash must
// be filled by the caller with an opaque credential reference.
type RootAccountSeed struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
}

// Catalog is the explicit configuration the seeder runs from. Keeping the
// name tables here, rather than as scattered literals, makes the catalog
// overridable and testable in isolation.
type Catalog struct {
	Permissions []PermissionSeed
	Roles       []RoleSeed
	// Grants maps role name to canonical permission names.
	Grants map[string][]string
	Root   RootAccountSeed
	// RootRole is the highest-privilege role, assigned to the root account
	// with the root account recorded as its own assigner.
	RootRole string
}

// Seed bootstraps the authorization graph from the catalog inside a single
// transaction. Re-running it against an already-seeded system is a no-op
// beyond idempotent skips: existing permissions, roles, grants and the root
// assignment are left untouched, never duplicated. Any failure rolls back
// the whole run.
func (s *Service) Seed(ctx context.Context, cat Catalog) error {
	if err := validateCatalog(cat); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(st Store) error {
		perms, err := s.seedPermissions(ctx, st, cat.Permissions)
		if err != nil {
			return err
		}
		roles, err := s.seedRoles(ctx, st, cat.Roles)
		if err != nil {
			return err
		}
		if err := s.seedGrants(ctx, st, cat.Grants, roles, perms); err != nil {
			return err
		}
		root, err := s.seedRootAccount(ctx, st, cat.Root)
		if err != nil {
			return err
		}
		return s.seedRootAssignment(ctx, st, root, roles[NormalizeName(cat.RootRole)])
	})
}

func validateCatalog(cat Catalog) error {
	if len(cat.Permissions) == 0 || len(cat.Roles) == 0 {
		return fmt.Errorf("%w: catalog must define permissions and roles", ErrInvalidInput)
	}
	if cat.Root.Email == "" || cat.Root.PasswordHash == "" {
		return fmt.Errorf("%w: catalog root account needs email and credential", ErrInvalidInput)
	}
	rootRole := NormalizeName(cat.RootRole)
	known := make(map[string]struct{}, len(cat.Roles))
	for _, r := range cat.Roles {
		known[NormalizeName(r.Name)] = struct{}{}
	}
	if _, ok := known[rootRole]; !ok {
		return fmt.Errorf("%w: root role %q is not in the catalog", ErrInvalidInput, cat.RootRole)
	}
	names := make(map[string]struct{}, len(cat.Permissions))
	for _, p := range cat.Permissions {
		names[p.Name()] = struct{}{}
	}
	for role, grants := range cat.Grants {
		if _, ok := known[NormalizeName(role)]; !ok {
			return fmt.Errorf("%w: grant matrix references unknown role %q", ErrInvalidInput, role)
		}
		for _, name := range grants {
			if _, ok := names[NormalizeName(name)]; !ok {
				return fmt.Errorf("%w: grant matrix references unknown permission %q", ErrInvalidInput, name)
			}
		}
	}
	return nil
}

func (s *Service) seedPermissions(ctx context.Context, st Store, seeds []PermissionSeed) (map[string]Permission, error) {
	perms := make(map[string]Permission, len(seeds))
	for _, seed := range seeds {
		existing, err := st.GetPermissionByName(ctx, seed.Name())
		if err == nil {
			perms[existing.Name] = existing
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		p := Permission{
			Resource:    seed.Resource,
			Action:      seed.Action,
			DisplayName: seed.DisplayName,
			Description: seed.Description,
			Category:    seed.Category,
			Active:      true,
		}
		p.normalize()
		created, err := st.CreatePermission(ctx, p)
		if err != nil {
			return nil, err
		}
		perms[created.Name] = created
	}
	return perms, nil
}

func (s *Service) seedRoles(ctx context.Context, st Store, seeds []RoleSeed) (map[string]Role, error) {
	roles := make(map[string]Role, len(seeds))
	for _, seed := range seeds {
		name := NormalizeName(seed.Name)
		existing, err := st.GetRoleByName(ctx, name)
		if err == nil {
			roles[existing.Name] = existing
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		r := Role{
			Name:        seed.Name,
			DisplayName: seed.DisplayName,
			Description: seed.Description,
			Category:    seed.Category,
			Active:      true,
		}
		r.normalize()
		created, err := st.CreateRole(ctx, r)
		if err != nil {
			return nil, err
		}
		roles[created.Name] = created
	}
	return roles, nil
}

func (s *Service) seedGrants(ctx context.Context, st Store, grants map[string][]string, roles map[string]Role, perms map[string]Permission) error {
	for roleName, permNames := range grants {
		role := roles[NormalizeName(roleName)]
		for _, permName := range permNames {
			perm := perms[NormalizeName(permName)]
			_, err := st.GetRolePermission(ctx, role.ID, perm.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if _, err := s.grantPermission(ctx, st, role.ID, perm.ID, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) seedRootAccount(ctx context.Context, st Store, seed RootAccountSeed) (Account, error) {
	email := NormalizeEmail(seed.Email)
	existing, err := st.GetAccountByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	a := Account{
		FirstName:    seed.FirstName,
		LastName:     seed.LastName,
		Email:        seed.Email,
		PasswordHash: seed.PasswordHash,
		Active:       true,
	}
	a.normalize()
	return st.CreateAccount(ctx, a)
}

func (s *Service) seedRootAssignment(ctx context.Context, st Store, root Account, role Role) error {
	_, err := st.GetAccountRole(ctx, root.ID, role.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	// Self-assigned during setup.
	_, err = s.assignRole(ctx, st, root.ID, role.ID, root.ID)
	return err
}

// Canonical role names of the default catalog.
const (
	RoleSuperAdmin       = "super_admin"
	RoleAdmin            = "admin"
	RoleDivingSupervisor = "diving_supervisor"
	RoleDiver            = "diver"
	RoleDiveMaster       = "dive_master"
	RoleInstructor       = "instructor"
)

// DefaultCatalog returns the canonical permission and role catalog for a
// fresh dive-center installation. The root account credential must be set by
// the caller before seeding.
func DefaultCatalog() Catalog {
	perms := []PermissionSeed{
		{Resource: "users", Action: ActionCreate, DisplayName: "Create Users", Description: "Create new users", Category: CategoryAdmin},
		{Resource: "users", Action: ActionRead, DisplayName: "View Users", Description: "View users", Category: CategoryAdmin},
		{Resource: "users", Action: ActionUpdate, DisplayName: "Update Users", Description: "Update user information", Category: CategoryAdmin},
		{Resource: "users", Action: ActionDelete, DisplayName: "Delete Users", Description: "Delete users", Category: CategoryAdmin},

		{Resource: "roles", Action: ActionCreate, DisplayName: "Create Roles", Description: "Create new roles", Category: CategoryAdmin},
		{Resource: "roles", Action: ActionRead, DisplayName: "View Roles", Description: "View roles", Category: CategoryAdmin},
		{Resource: "roles", Action: ActionUpdate, DisplayName: "Update Roles", Description: "Update roles", Category: CategoryAdmin},
		{Resource: "roles", Action: ActionDelete, DisplayName: "Delete Roles", Description: "Delete roles", Category: CategoryAdmin},

		{Resource: "permissions", Action: ActionCreate, DisplayName: "Create Permissions", Description: "Create new permissions", Category: CategoryAdmin},
		{Resource: "permissions", Action: ActionRead, DisplayName: "View Permissions", Description: "View permissions", Category: CategoryAdmin},
		{Resource: "permissions", Action: ActionUpdate, DisplayName: "Update Permissions", Description: "Update permissions", Category: CategoryAdmin},
		{Resource: "permissions", Action: ActionDelete, DisplayName: "Delete Permissions", Description: "Delete permissions", Category: CategoryAdmin},

		{Resource: "settings", Action: ActionRead, DisplayName: "View Settings", Description: "View system settings", Category: CategoryAdmin},
		{Resource: "settings", Action: ActionUpdate, DisplayName: "Update Settings", Description: "Update system settings", Category: CategoryAdmin},

		{Resource: "dives", Action: ActionCreate, DisplayName: "Create Dives", Description: "Create new dives", Category: CategoryDiving},
		{Resource: "dives", Action: ActionRead, DisplayName: "View Dives", Description: "View dives", Category: CategoryDiving},
		{Resource: "dives", Action: ActionUpdate, DisplayName: "Update Dives", Description: "Update dive information", Category: CategoryDiving},
		{Resource: "dives", Action: ActionDelete, DisplayName: "Delete Dives", Description: "Delete dives", Category: CategoryDiving},

		{Resource: "divers", Action: ActionRead, DisplayName: "View Divers", Description: "View divers", Category: CategoryDiving},
		{Resource: "divers", Action: ActionUpdate, DisplayName: "Update Divers", Description: "Update diver information", Category: CategoryDiving},

		{Resource: "diving_sites", Action: ActionCreate, DisplayName: "Create Diving Sites", Description: "Create diving sites", Category: CategoryDiving},
		{Resource: "diving_sites", Action: ActionRead, DisplayName: "View Diving Sites", Description: "View diving sites", Category: CategoryDiving},
		{Resource: "diving_sites", Action: ActionUpdate, DisplayName: "Update Diving Sites", Description: "Update diving sites", Category: CategoryDiving},

		{Resource: "reports", Action: ActionRead, DisplayName: "View Reports", Description: "View diving reports", Category: CategoryDiving},
		{Resource: "reports", Action: ActionCreate, DisplayName: "Create Reports", Description: "Create diving reports", Category: CategoryDiving},
	}

	all := make([]string, 0, len(perms))
	for _, p := range perms {
		all = append(all, p.Name())
	}

	return Catalog{
		Permissions: perms,
		Roles: []RoleSeed{
			{Name: RoleSuperAdmin, DisplayName: "Super Administrator", Description: "Super Administrator with full system access", Category: CategoryAdmin},
			{Name: RoleAdmin, DisplayName: "Administrator", Description: "System Administrator with technical management access", Category: CategoryAdmin},
			{Name: RoleDivingSupervisor, DisplayName: "Diving Supervisor", Description: "Diving Supervisor responsible for dive operations", Category: CategoryDiving},
			{Name: RoleDiver, DisplayName: "Diver", Description: "Certified diver with basic diving permissions", Category: CategoryDiving},
			{Name: RoleDiveMaster, DisplayName: "Dive Master", Description: "Dive Master with advanced diving supervision rights", Category: CategoryDiving},
			{Name: RoleInstructor, DisplayName: "Instructor", Description: "Diving Instructor with teaching and certification rights", Category: CategoryDiving},
		},
		Grants: map[string][]string{
			RoleSuperAdmin: all,
			RoleAdmin: {
				"users:create", "users:read", "users:update", "users:delete",
				"roles:create", "roles:read", "roles:update", "roles:delete",
				"permissions:create", "permissions:read", "permissions:update", "permissions:delete",
				"settings:read", "settings:update",
				"dives:read", "divers:read", "diving_sites:read", "reports:read",
			},
			RoleInstructor: {
				"dives:create", "dives:read", "dives:update", "dives:delete",
				"divers:read", "divers:update",
				"diving_sites:create", "diving_sites:read", "diving_sites:update",
				"reports:create", "reports:read",
			},
			RoleDiveMaster: {
				"dives:create", "dives:read", "dives:update",
				"divers:read", "divers:update",
				"diving_sites:read", "diving_sites:update",
				"reports:create", "reports:read",
			},
			RoleDivingSupervisor: {
				"dives:read", "dives:update",
				"divers:read",
				"diving_sites:read",
				"reports:create", "reports:read",
			},
			RoleDiver: {
				"dives:read",
				"diving_sites:read",
				"reports:read",
			},
		},
		Root: RootAccountSeed{
			FirstName: "System",
			LastName:  "Administrator",
			Email:     "admin@dipdive.local",
		},
		RootRole: RoleSuperAdmin,
	}
}
