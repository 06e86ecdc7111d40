// Package memory provides an in-memory rbac.Store used by tests and local
// runs without a database. Semantics mirror the PostgreSQL store, including
// soft-delete visibility and edge cascades.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dipdive.org/internal/rbac"
)

type state struct {
	accounts     map[string]rbac.Account
	roles        map[string]rbac.Role
	permissions  map[string]rbac.Permission
	accountRoles map[string]rbac.AccountRole
	rolePerms    map[string]rbac.RolePermission
}

func newState() *state {
	return &state{
		accounts:     make(map[string]rbac.Account),
		roles:        make(map[string]rbac.Role),
		permissions:  make(map[string]rbac.Permission),
		accountRoles: make(map[string]rbac.AccountRole),
		rolePerms:    make(map[string]rbac.RolePermission),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.permissions {
		c.permissions[k] = v
	}
	for k, v := range s.accountRoles {
		c.accountRoles[k] = v
	}
	for k, v := range s.rolePerms {
		c.rolePerms[k] = v
	}
	return c
}

// Store implements rbac.Store over process memory.
type Store struct {
	mu   sync.Mutex
	s    *state
	now  func() time.Time
	inTx bool
}

var _ rbac.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{s: newState(), now: time.Now}
}

// WithClock overrides the time source, useful for tests.
func (m *Store) WithClock(fn func() time.Time) *Store {
	if fn != nil {
		m.now = fn
	}
	return m
}

// InTx serializes the mutation and restores the pre-transaction snapshot if
// fn fails. Nested calls reuse the open transaction.
func (m *Store) InTx(ctx context.Context, fn func(rbac.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.s.clone()
	tx := &Store{s: m.s, now: m.now, inTx: true}
	if err := fn(tx); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Store) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Accounts -----------------------------------------------------------------

func (m *Store) CreateAccount(ctx context.Context, a rbac.Account) (rbac.Account, error) {
	defer m.lock()()
	for _, other := range m.s.accounts {
		if other.DeletedAt == nil && other.Email == a.Email {
			return rbac.Account{}, fmt.Errorf("%w: email %s", rbac.ErrConflict, a.Email)
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := m.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.s.accounts[a.ID] = a
	return a, nil
}

func (m *Store) GetAccount(ctx context.Context, id string) (rbac.Account, error) {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return a, nil
}

func (m *Store) GetAccountAny(ctx context.Context, id string) (rbac.Account, error) {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return a, nil
}

func (m *Store) GetAccountByEmail(ctx context.Context, email string) (rbac.Account, error) {
	defer m.lock()()
	for _, a := range m.s.accounts {
		if a.DeletedAt == nil && a.Email == email {
			return a, nil
		}
	}
	return rbac.Account{}, rbac.ErrNotFound
}

func (m *Store) ListAccounts(ctx context.Context) ([]rbac.Account, error) {
	defer m.lock()()
	var out []rbac.Account
	for _, a := range m.s.accounts {
		if a.DeletedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Store) UpdateAccount(ctx context.Context, id string, upd rbac.AccountUpdate) (rbac.Account, error) {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return rbac.Account{}, rbac.ErrNotFound
	}
	if upd.Email != nil {
		for _, other := range m.s.accounts {
			if other.ID != id && other.DeletedAt == nil && other.Email == *upd.Email {
				return rbac.Account{}, fmt.Errorf("%w: email %s", rbac.ErrConflict, *upd.Email)
			}
		}
		a.Email = *upd.Email
	}
	if upd.FirstName != nil {
		a.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		a.LastName = *upd.LastName
	}
	if upd.LicenseNumber != nil {
		a.LicenseNumber = *upd.LicenseNumber
	}
	a.UpdatedAt = m.now().UTC()
	m.s.accounts[id] = a
	return a, nil
}

func (m *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	a.Active = active
	a.UpdatedAt = m.now().UTC()
	m.s.accounts[id] = a
	return nil
}

func (m *Store) SoftDeleteAccount(ctx context.Context, id string) error {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok || a.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	now := m.now().UTC()
	for eid, e := range m.s.accountRoles {
		if e.AccountID == id {
			delete(m.s.accountRoles, eid)
		}
	}
	for eid, e := range m.s.accountRoles {
		if e.AssignedBy == id {
			e.AssignedBy = ""
			m.s.accountRoles[eid] = e
		}
	}
	for eid, e := range m.s.rolePerms {
		if e.AssignedBy == id {
			e.AssignedBy = ""
			m.s.rolePerms[eid] = e
		}
	}
	a.DeletedAt = &now
	a.Active = false
	a.UpdatedAt = now
	m.s.accounts[id] = a
	return nil
}

func (m *Store) RestoreAccount(ctx context.Context, id string) error {
	defer m.lock()()
	a, ok := m.s.accounts[id]
	if !ok {
		return rbac.ErrNotFound
	}
	a.DeletedAt = nil
	a.Active = true
	a.UpdatedAt = m.now().UTC()
	m.s.accounts[id] = a
	return nil
}

// Roles --------------------------------------------------------------------

func (m *Store) CreateRole(ctx context.Context, r rbac.Role) (rbac.Role, error) {
	defer m.lock()()
	for _, other := range m.s.roles {
		if other.DeletedAt == nil && other.Name == r.Name {
			return rbac.Role{}, fmt.Errorf("%w: role %s", rbac.ErrConflict, r.Name)
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := m.now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.s.roles[r.ID] = r
	return r, nil
}

func (m *Store) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok || r.DeletedAt != nil {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, nil
}

func (m *Store) GetRoleAny(ctx context.Context, id string) (rbac.Role, error) {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, nil
}

func (m *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	defer m.lock()()
	for _, r := range m.s.roles {
		if r.DeletedAt == nil && r.Name == name {
			return r, nil
		}
	}
	return rbac.Role{}, rbac.ErrNotFound
}

func (m *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	defer m.lock()()
	var out []rbac.Role
	for _, r := range m.s.roles {
		if r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Store) UpdateRole(ctx context.Context, id string, upd rbac.RoleUpdate) (rbac.Role, error) {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok || r.DeletedAt != nil {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if upd.DisplayName != nil {
		r.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	r.UpdatedAt = m.now().UTC()
	m.s.roles[id] = r
	return r, nil
}

func (m *Store) SetRoleActive(ctx context.Context, id string, active bool) error {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok || r.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	r.Active = active
	r.UpdatedAt = m.now().UTC()
	m.s.roles[id] = r
	return nil
}

func (m *Store) SoftDeleteRole(ctx context.Context, id string) error {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok || r.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	now := m.now().UTC()
	for eid, e := range m.s.accountRoles {
		if e.RoleID == id {
			delete(m.s.accountRoles, eid)
		}
	}
	for eid, e := range m.s.rolePerms {
		if e.RoleID == id {
			delete(m.s.rolePerms, eid)
		}
	}
	r.DeletedAt = &now
	r.Active = false
	r.UpdatedAt = now
	m.s.roles[id] = r
	return nil
}

func (m *Store) RestoreRole(ctx context.Context, id string) error {
	defer m.lock()()
	r, ok := m.s.roles[id]
	if !ok {
		return rbac.ErrNotFound
	}
	r.DeletedAt = nil
	r.Active = true
	r.UpdatedAt = m.now().UTC()
	m.s.roles[id] = r
	return nil
}

// Permissions --------------------------------------------------------------

func (m *Store) CreatePermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	defer m.lock()()
	for _, other := range m.s.permissions {
		if other.DeletedAt == nil && other.Name == p.Name {
			return rbac.Permission{}, fmt.Errorf("%w: permission %s", rbac.ErrConflict, p.Name)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := m.now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.s.permissions[p.ID] = p
	return p, nil
}

func (m *Store) GetPermission(ctx context.Context, id string) (rbac.Permission, error) {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok || p.DeletedAt != nil {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, nil
}

func (m *Store) GetPermissionAny(ctx context.Context, id string) (rbac.Permission, error) {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, nil
}

func (m *Store) GetPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	defer m.lock()()
	for _, p := range m.s.permissions {
		if p.DeletedAt == nil && p.Name == name {
			return p, nil
		}
	}
	return rbac.Permission{}, rbac.ErrNotFound
}

func (m *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	defer m.lock()()
	var out []rbac.Permission
	for _, p := range m.s.permissions {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Store) UpdatePermission(ctx context.Context, id string, upd rbac.PermissionUpdate) (rbac.Permission, error) {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok || p.DeletedAt != nil {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = m.now().UTC()
	m.s.permissions[id] = p
	return p, nil
}

func (m *Store) SetPermissionActive(ctx context.Context, id string, active bool) error {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok || p.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = m.now().UTC()
	m.s.permissions[id] = p
	return nil
}

func (m *Store) SoftDeletePermission(ctx context.Context, id string) error {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok || p.DeletedAt != nil {
		return rbac.ErrNotFound
	}
	now := m.now().UTC()
	for eid, e := range m.s.rolePerms {
		if e.PermissionID == id {
			delete(m.s.rolePerms, eid)
		}
	}
	p.DeletedAt = &now
	p.Active = false
	p.UpdatedAt = now
	m.s.permissions[id] = p
	return nil
}

func (m *Store) RestorePermission(ctx context.Context, id string) error {
	defer m.lock()()
	p, ok := m.s.permissions[id]
	if !ok {
		return rbac.ErrNotFound
	}
	p.DeletedAt = nil
	p.Active = true
	p.UpdatedAt = m.now().UTC()
	m.s.permissions[id] = p
	return nil
}

// Edges --------------------------------------------------------------------

func (m *Store) CreateAccountRole(ctx context.Context, e rbac.AccountRole) (rbac.AccountRole, error) {
	defer m.lock()()
	for _, other := range m.s.accountRoles {
		if other.DeletedAt == nil && other.AccountID == e.AccountID && other.RoleID == e.RoleID {
			return rbac.AccountRole{}, fmt.Errorf("%w: account role edge exists", rbac.ErrConflict)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := m.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.s.accountRoles[e.ID] = e
	return e, nil
}

func (m *Store) GetAccountRole(ctx context.Context, accountID, roleID string) (rbac.AccountRole, error) {
	defer m.lock()()
	for _, e := range m.s.accountRoles {
		if e.DeletedAt == nil && e.AccountID == accountID && e.RoleID == roleID {
			return e, nil
		}
	}
	return rbac.AccountRole{}, rbac.ErrNotFound
}

func (m *Store) ListAccountRoles(ctx context.Context, accountID string) ([]rbac.AccountRole, error) {
	defer m.lock()()
	var out []rbac.AccountRole
	for _, e := range m.s.accountRoles {
		if e.DeletedAt == nil && e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Store) SetAccountRoleActive(ctx context.Context, accountID, roleID string, active bool) error {
	defer m.lock()()
	for id, e := range m.s.accountRoles {
		if e.DeletedAt == nil && e.AccountID == accountID && e.RoleID == roleID {
			e.Active = active
			e.UpdatedAt = m.now().UTC()
			m.s.accountRoles[id] = e
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (m *Store) CreateRolePermission(ctx context.Context, e rbac.RolePermission) (rbac.RolePermission, error) {
	defer m.lock()()
	for _, other := range m.s.rolePerms {
		if other.DeletedAt == nil && other.RoleID == e.RoleID && other.PermissionID == e.PermissionID {
			return rbac.RolePermission{}, fmt.Errorf("%w: role permission edge exists", rbac.ErrConflict)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := m.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	m.s.rolePerms[e.ID] = e
	return e, nil
}

func (m *Store) GetRolePermission(ctx context.Context, roleID, permissionID string) (rbac.RolePermission, error) {
	defer m.lock()()
	for _, e := range m.s.rolePerms {
		if e.DeletedAt == nil && e.RoleID == roleID && e.PermissionID == permissionID {
			return e, nil
		}
	}
	return rbac.RolePermission{}, rbac.ErrNotFound
}

func (m *Store) ListRolePermissions(ctx context.Context, roleID string) ([]rbac.RolePermission, error) {
	defer m.lock()()
	var out []rbac.RolePermission
	for _, e := range m.s.rolePerms {
		if e.DeletedAt == nil && e.RoleID == roleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Store) SetRolePermissionActive(ctx context.Context, roleID, permissionID string, active bool) error {
	defer m.lock()()
	for id, e := range m.s.rolePerms {
		if e.DeletedAt == nil && e.RoleID == roleID && e.PermissionID == permissionID {
			e.Active = active
			e.UpdatedAt = m.now().UTC()
			m.s.rolePerms[id] = e
			return nil
		}
	}
	return rbac.ErrNotFound
}
