package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service is the graph mutation API. Every mutating call runs inside a
// single store transaction; either all invariant checks and writes succeed
// or nothing is persisted.
type Service struct {
	store Store
}

// NewService constructs the mutation service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store}, nil
}

// NewAccount is the input for account creation.
type NewAccount struct {
	FirstName     string
	LastName      string
	Email         string
	PasswordHash  string
	LicenseNumber string
}

// NewRole is the input for role creation.
type NewRole struct {
	Name        string
	DisplayName string
	Description string
	Category    Category
}

// NewPermission is the input for permission creation. The canonical name is
// derived from Resource and Action; any caller-supplied name is ignored.
type NewPermission struct {
	Resource    string
	Action      Action
	DisplayName string
	Description string
	Category    Category
}

func (s *Service) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	a := Account{
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		LicenseNumber: in.LicenseNumber,
		Active:        true,
	}
	a.normalize()
	if a.FirstName == "" || a.LastName == "" {
		return Account{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if a.Email == "" || !strings.Contains(a.Email, "@") {
		return Account{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if a.PasswordHash == "" {
		return Account{}, fmt.Errorf("%w: credential reference is required", ErrInvalidInput)
	}
	var created Account
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		created, err = s.createAccount(ctx, st, a)
		return err
	})
	return created, err
}

func (s *Service) createAccount(ctx context.Context, st Store, a Account) (Account, error) {
	_, err := st.GetAccountByEmail(ctx, a.Email)
	if err == nil {
		return Account{}, fmt.Errorf("%w: email %s already registered", ErrConflict, a.Email)
	}
	if !errors.Is(err, ErrNotFound) {
		return Account{}, err
	}
	return st.CreateAccount(ctx, a)
}

func (s *Service) CreateRole(ctx context.Context, in NewRole) (Role, error) {
	r := Role{
		Name:        in.Name,
		DisplayName: in.DisplayName,
		Description: in.Description,
		Category:    in.Category,
		Active:      true,
	}
	r.normalize()
	if r.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if r.DisplayName == "" {
		r.DisplayName = r.Name
	}
	if !r.Category.Valid() {
		return Role{}, fmt.Errorf("%w: unsupported category %q", ErrInvalidInput, r.Category)
	}
	var created Role
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		created, err = s.createRole(ctx, st, r)
		return err
	})
	return created, err
}

func (s *Service) createRole(ctx context.Context, st Store, r Role) (Role, error) {
	_, err := st.GetRoleByName(ctx, r.Name)
	if err == nil {
		return Role{}, fmt.Errorf("%w: role %s already exists", ErrConflict, r.Name)
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	return st.CreateRole(ctx, r)
}

func (s *Service) CreatePermission(ctx context.Context, in NewPermission) (Permission, error) {
	p := Permission{
		Resource:    in.Resource,
		Action:      in.Action,
		DisplayName: in.DisplayName,
		Description: in.Description,
		Category:    in.Category,
		Active:      true,
	}
	p.normalize()
	if p.Resource == "" {
		return Permission{}, fmt.Errorf("%w: resource is required", ErrInvalidInput)
	}
	if !p.Action.Valid() {
		return Permission{}, fmt.Errorf("%w: unsupported action %q", ErrInvalidInput, p.Action)
	}
	if !p.Category.Valid() {
		return Permission{}, fmt.Errorf("%w: unsupported category %q", ErrInvalidInput, p.Category)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	var created Permission
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		created, err = s.createPermission(ctx, st, p)
		return err
	})
	return created, err
}

func (s *Service) createPermission(ctx context.Context, st Store, p Permission) (Permission, error) {
	_, err := st.GetPermissionByName(ctx, p.Name)
	if err == nil {
		return Permission{}, fmt.Errorf("%w: permission %s already exists", ErrConflict, p.Name)
	}
	if !errors.Is(err, ErrNotFound) {
		return Permission{}, err
	}
	return st.CreatePermission(ctx, p)
}

func (s *Service) UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if email == "" || !strings.Contains(email, "@") {
			return Account{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		if v == "" {
			return Account{}, fmt.Errorf("%w: first name is required", ErrInvalidInput)
		}
		upd.FirstName = &v
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		if v == "" {
			return Account{}, fmt.Errorf("%w: last name is required", ErrInvalidInput)
		}
		upd.LastName = &v
	}
	if upd.LicenseNumber != nil {
		v := strings.ToUpper(strings.TrimSpace(*upd.LicenseNumber))
		upd.LicenseNumber = &v
	}
	var updated Account
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		updated, err = st.UpdateAccount(ctx, id, upd)
		return err
	})
	return updated, err
}

func (s *Service) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if upd.DisplayName != nil {
		v := strings.TrimSpace(*upd.DisplayName)
		if v == "" {
			return Role{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		upd.DisplayName = &v
	}
	if upd.Description != nil {
		v := strings.TrimSpace(*upd.Description)
		upd.Description = &v
	}
	var updated Role
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		updated, err = st.UpdateRole(ctx, id, upd)
		return err
	})
	return updated, err
}

func (s *Service) UpdatePermission(ctx context.Context, id string, upd PermissionUpdate) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	if upd.DisplayName != nil {
		v := strings.TrimSpace(*upd.DisplayName)
		if v == "" {
			return Permission{}, fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		upd.DisplayName = &v
	}
	if upd.Description != nil {
		v := strings.TrimSpace(*upd.Description)
		upd.Description = &v
	}
	var updated Permission
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		updated, err = st.UpdatePermission(ctx, id, upd)
		return err
	})
	return updated, err
}

// AssignRole connects an account to a role. The edge is validated and
// persisted in one transaction; a second assignment of the same pair fails
// with ErrConflict.
func (s *Service) AssignRole(ctx context.Context, accountID, roleID, assignedBy string) (AccountRole, error) {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	assignedBy = strings.TrimSpace(assignedBy)
	if accountID == "" || roleID == "" {
		return AccountRole{}, fmt.Errorf("%w: account id and role id are required", ErrInvalidInput)
	}
	var created AccountRole
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		created, err = s.assignRole(ctx, st, accountID, roleID, assignedBy)
		return err
	})
	return created, err
}

func (s *Service) assignRole(ctx context.Context, st Store, accountID, roleID, assignedBy string) (AccountRole, error) {
	if err := validateAccountRole(ctx, st, accountID, roleID, assignedBy); err != nil {
		return AccountRole{}, err
	}
	return st.CreateAccountRole(ctx, AccountRole{
		AccountID:  accountID,
		RoleID:     roleID,
		AssignedBy: assignedBy,
		Active:     true,
	})
}

// GrantPermission connects a role to a permission under the same rules as
// AssignRole.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID, assignedBy string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	assignedBy = strings.TrimSpace(assignedBy)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	var created RolePermission
	err := s.store.InTx(ctx, func(st Store) error {
		var err error
		created, err = s.grantPermission(ctx, st, roleID, permissionID, assignedBy)
		return err
	})
	return created, err
}

func (s *Service) grantPermission(ctx context.Context, st Store, roleID, permissionID, assignedBy string) (RolePermission, error) {
	if err := validateRolePermission(ctx, st, roleID, permissionID, assignedBy); err != nil {
		return RolePermission{}, err
	}
	return st.CreateRolePermission(ctx, RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		AssignedBy:   assignedBy,
		Active:       true,
	})
}

// RevokeRole deactivates the account-role edge. The row is kept for audit
// history.
func (s *Service) RevokeRole(ctx context.Context, accountID, roleID string) error {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	if accountID == "" || roleID == "" {
		return fmt.Errorf("%w: account id and role id are required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if _, err := st.GetAccountRole(ctx, accountID, roleID); err != nil {
			return err
		}
		return st.SetAccountRoleActive(ctx, accountID, roleID, false)
	})
}

// RevokePermission deactivates the role-permission edge, keeping the row.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if _, err := st.GetRolePermission(ctx, roleID, permissionID); err != nil {
			return err
		}
		return st.SetRolePermissionActive(ctx, roleID, permissionID, false)
	})
}

func (s *Service) DeactivateAccount(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityAccount, id, false)
}

func (s *Service) DeactivateRole(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityRole, id, false)
}

func (s *Service) DeactivatePermission(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityPermission, id, false)
}

// ReactivateAccount sets the account active again. A soft-deleted account is
// restored first: its deletion timestamp is cleared. Edges hard-cascaded
// away during the deletion window are not resurrected.
func (s *Service) ReactivateAccount(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityAccount, id, true)
}

func (s *Service) ReactivateRole(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityRole, id, true)
}

func (s *Service) ReactivatePermission(ctx context.Context, id string) error {
	return s.setEntityActive(ctx, entityPermission, id, true)
}

type entityKind string

const (
	entityAccount    entityKind = "account"
	entityRole       entityKind = "role"
	entityPermission entityKind = "permission"
)

func (s *Service) setEntityActive(ctx context.Context, kind entityKind, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidInput, kind)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if active {
			return restoreEntity(ctx, st, kind, id)
		}
		switch kind {
		case entityAccount:
			return st.SetAccountActive(ctx, id, false)
		case entityRole:
			return st.SetRoleActive(ctx, id, false)
		default:
			return st.SetPermissionActive(ctx, id, false)
		}
	})
}

// restoreEntity handles reactivation for both live and soft-deleted rows:
// the deletion timestamp is cleared and the active flag set in one step.
func restoreEntity(ctx context.Context, st Store, kind entityKind, id string) error {
	switch kind {
	case entityAccount:
		a, err := st.GetAccountAny(ctx, id)
		if err != nil {
			return err
		}
		if a.DeletedAt != nil {
			return st.RestoreAccount(ctx, id)
		}
		return st.SetAccountActive(ctx, id, true)
	case entityRole:
		r, err := st.GetRoleAny(ctx, id)
		if err != nil {
			return err
		}
		if r.DeletedAt != nil {
			return st.RestoreRole(ctx, id)
		}
		return st.SetRoleActive(ctx, id, true)
	default:
		p, err := st.GetPermissionAny(ctx, id)
		if err != nil {
			return err
		}
		if p.DeletedAt != nil {
			return st.RestorePermission(ctx, id)
		}
		return st.SetPermissionActive(ctx, id, true)
	}
}

// SoftDeleteAccount marks the account deleted and removes its dependent
// edges. Edges assigned by this account elsewhere keep their rows with the
// assigner reference cleared.
func (s *Service) SoftDeleteAccount(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if _, err := st.GetAccount(ctx, id); err != nil {
			return err
		}
		return st.SoftDeleteAccount(ctx, id)
	})
}

// SoftDeleteRole marks the role deleted and removes every edge touching it.
func (s *Service) SoftDeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if _, err := st.GetRole(ctx, id); err != nil {
			return err
		}
		return st.SoftDeleteRole(ctx, id)
	})
}

// SoftDeletePermission marks the permission deleted and removes its
// role-permission edges.
func (s *Service) SoftDeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.store.InTx(ctx, func(st Store) error {
		if _, err := st.GetPermission(ctx, id); err != nil {
			return err
		}
		return st.SoftDeletePermission(ctx, id)
	})
}

// AccountByEmail resolves a live account by normalized email. Used by the
// sign-in path; reads run outside any transaction.
func (s *Service) AccountByEmail(ctx context.Context, email string) (Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.GetAccountByEmail(ctx, email)
}

// GetAccount resolves a live account by id.
func (s *Service) GetAccount(ctx context.Context, id string) (Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	return s.store.GetAccount(ctx, id)
}

// GetRole resolves a live role by id.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, id)
}

// GetPermission resolves a live permission by id.
func (s *Service) GetPermission(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return s.store.GetPermission(ctx, id)
}

func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.store.ListAccounts(ctx)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}
