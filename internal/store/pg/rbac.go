package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"dipdive.org/internal/rbac"
)

const (
	pgErrUniqueViolation           = "23505"
	pgErrForeignKeyViolation       = "23503"
	pgErrInvalidTextRepresentation = "22P02"
)

const accountColumns = `id, first_name, last_name, email, password_hash, license_number, active, created_at, updated_at, deleted_at`

const roleColumns = `id, name, display_name, description, category, active, created_at, updated_at, deleted_at`

const permissionColumns = `id, name, display_name, description, resource, action, category, active, created_at, updated_at, deleted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (rbac.Account, error) {
	var (
		a       rbac.Account
		license sql.NullString
		deleted sql.NullTime
	)
	err := row.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.PasswordHash,
		&license, &a.Active, &a.CreatedAt, &a.UpdatedAt, &deleted)
	if err != nil {
		return rbac.Account{}, err
	}
	a.LicenseNumber = license.String
	if deleted.Valid {
		t := deleted.Time
		a.DeletedAt = &t
	}
	return a, nil
}

func scanRole(row scanner) (rbac.Role, error) {
	var (
		r       rbac.Role
		deleted sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Description, &r.Category,
		&r.Active, &r.CreatedAt, &r.UpdatedAt, &deleted)
	if err != nil {
		return rbac.Role{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		r.DeletedAt = &t
	}
	return r, nil
}

func scanPermission(row scanner) (rbac.Permission, error) {
	var (
		p       rbac.Permission
		deleted sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Description, &p.Resource,
		&p.Action, &p.Category, &p.Active, &p.CreatedAt, &p.UpdatedAt, &deleted)
	if err != nil {
		return rbac.Permission{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		p.DeletedAt = &t
	}
	return p, nil
}

// Accounts -----------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, a rbac.Account) (rbac.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into accounts (id, first_name, last_name, email, password_hash, license_number, active)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning `+accountColumns,
		a.ID, a.FirstName, a.LastName, a.Email, a.PasswordHash, nullIfEmpty(a.LicenseNumber), a.Active)
	created, err := scanAccount(row)
	if err != nil {
		return rbac.Account{}, mapPgError(err, "account "+a.Email)
	}
	return created, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (rbac.Account, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts
		where id = $1 and deleted_at is null
	`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return a, mapPgError(err, "account")
}

func (s *Store) GetAccountAny(ctx context.Context, id string) (rbac.Account, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts where id = $1
	`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return a, mapPgError(err, "account")
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (rbac.Account, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+accountColumns+` from accounts
		where email = $1 and deleted_at is null
	`, email)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Account{}, rbac.ErrNotFound
	}
	return a, mapPgError(err, "account")
}

func (s *Store) ListAccounts(ctx context.Context) ([]rbac.Account, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+accountColumns+` from accounts
		where deleted_at is null
		order by created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, id string, upd rbac.AccountUpdate) (rbac.Account, error) {
	var (
		set  []string
		args []any
		idx  = 1
	)
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.LicenseNumber != nil {
		add("license_number", nullIfEmpty(*upd.LicenseNumber))
	}
	if len(set) == 0 {
		return s.GetAccount(ctx, id)
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)
	row := s.q.QueryRowContext(ctx, fmt.Sprintf(`
		update accounts set %s
		where id = $%d and deleted_at is null
		returning %s
	`, strings.Join(set, ", "), idx, accountColumns), args...)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Account{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Account{}, mapPgError(err, "account "+id)
	}
	return a, nil
}

func (s *Store) SetAccountActive(ctx context.Context, id string, active bool) error {
	res, err := s.q.ExecContext(ctx, `
		update accounts set active = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, id, active)
	return oneRow(res, err)
}

func (s *Store) SoftDeleteAccount(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update accounts set deleted_at = now(), active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err := oneRow(res, err); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `delete from account_roles where account_id = $1`, id); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `update account_roles set assigned_by = null where assigned_by = $1`, id); err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `update role_permissions set assigned_by = null where assigned_by = $1`, id)
	return err
}

func (s *Store) RestoreAccount(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update accounts set deleted_at = null, active = true, updated_at = now()
		where id = $1
	`, id)
	return oneRow(res, err)
}

// Roles --------------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, r rbac.Role) (rbac.Role, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into roles (id, name, display_name, description, category, active)
		values ($1, $2, $3, $4, $5, $6)
		returning `+roleColumns,
		r.ID, r.Name, r.DisplayName, r.Description, r.Category, r.Active)
	created, err := scanRole(row)
	if err != nil {
		return rbac.Role{}, mapPgError(err, "role "+r.Name)
	}
	return created, nil
}

func (s *Store) GetRole(ctx context.Context, id string) (rbac.Role, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+roleColumns+` from roles
		where id = $1 and deleted_at is null
	`, id)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, mapPgError(err, "role")
}

func (s *Store) GetRoleAny(ctx context.Context, id string) (rbac.Role, error) {
	row := s.q.QueryRowContext(ctx, `select `+roleColumns+` from roles where id = $1`, id)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, mapPgError(err, "role")
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+roleColumns+` from roles
		where name = $1 and deleted_at is null
	`, name)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, mapPgError(err, "role")
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+roleColumns+` from roles
		where deleted_at is null
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd rbac.RoleUpdate) (rbac.Role, error) {
	var (
		set  []string
		args []any
		idx  = 1
	)
	if upd.DisplayName != nil {
		set = append(set, fmt.Sprintf("display_name = $%d", idx))
		args = append(args, *upd.DisplayName)
		idx++
	}
	if upd.Description != nil {
		set = append(set, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(set) == 0 {
		return s.GetRole(ctx, id)
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)
	row := s.q.QueryRowContext(ctx, fmt.Sprintf(`
		update roles set %s
		where id = $%d and deleted_at is null
		returning %s
	`, strings.Join(set, ", "), idx, roleColumns), args...)
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	return r, mapPgError(err, "role")
}

func (s *Store) SetRoleActive(ctx context.Context, id string, active bool) error {
	res, err := s.q.ExecContext(ctx, `
		update roles set active = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, id, active)
	return oneRow(res, err)
}

func (s *Store) SoftDeleteRole(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update roles set deleted_at = now(), active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err := oneRow(res, err); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `delete from account_roles where role_id = $1`, id); err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `delete from role_permissions where role_id = $1`, id)
	return err
}

func (s *Store) RestoreRole(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update roles set deleted_at = null, active = true, updated_at = now()
		where id = $1
	`, id)
	return oneRow(res, err)
}

// Permissions --------------------------------------------------------------

func (s *Store) CreatePermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into permissions (id, name, display_name, description, resource, action, category, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning `+permissionColumns,
		p.ID, p.Name, p.DisplayName, p.Description, p.Resource, p.Action, p.Category, p.Active)
	created, err := scanPermission(row)
	if err != nil {
		return rbac.Permission{}, mapPgError(err, "permission "+p.Name)
	}
	return created, nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (rbac.Permission, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+permissionColumns+` from permissions
		where id = $1 and deleted_at is null
	`, id)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, mapPgError(err, "permission")
}

func (s *Store) GetPermissionAny(ctx context.Context, id string) (rbac.Permission, error) {
	row := s.q.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, mapPgError(err, "permission")
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+permissionColumns+` from permissions
		where name = $1 and deleted_at is null
	`, name)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, mapPgError(err, "permission")
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+permissionColumns+` from permissions
		where deleted_at is null
		order by resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePermission(ctx context.Context, id string, upd rbac.PermissionUpdate) (rbac.Permission, error) {
	var (
		set  []string
		args []any
		idx  = 1
	)
	if upd.DisplayName != nil {
		set = append(set, fmt.Sprintf("display_name = $%d", idx))
		args = append(args, *upd.DisplayName)
		idx++
	}
	if upd.Description != nil {
		set = append(set, fmt.Sprintf("description = $%d", idx))
		args = append(args, *upd.Description)
		idx++
	}
	if len(set) == 0 {
		return s.GetPermission(ctx, id)
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)
	row := s.q.QueryRowContext(ctx, fmt.Sprintf(`
		update permissions set %s
		where id = $%d and deleted_at is null
		returning %s
	`, strings.Join(set, ", "), idx, permissionColumns), args...)
	p, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, mapPgError(err, "permission")
}

func (s *Store) SetPermissionActive(ctx context.Context, id string, active bool) error {
	res, err := s.q.ExecContext(ctx, `
		update permissions set active = $2, updated_at = now()
		where id = $1 and deleted_at is null
	`, id, active)
	return oneRow(res, err)
}

func (s *Store) SoftDeletePermission(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update permissions set deleted_at = now(), active = false, updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err := oneRow(res, err); err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `delete from role_permissions where permission_id = $1`, id)
	return err
}

func (s *Store) RestorePermission(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `
		update permissions set deleted_at = null, active = true, updated_at = now()
		where id = $1
	`, id)
	return oneRow(res, err)
}

// Edges --------------------------------------------------------------------

func scanAccountRole(row scanner) (rbac.AccountRole, error) {
	var (
		e        rbac.AccountRole
		assigned sql.NullString
		deleted  sql.NullTime
	)
	err := row.Scan(&e.ID, &e.AccountID, &e.RoleID, &assigned, &e.Active,
		&e.CreatedAt, &e.UpdatedAt, &deleted)
	if err != nil {
		return rbac.AccountRole{}, err
	}
	e.AssignedBy = assigned.String
	if deleted.Valid {
		t := deleted.Time
		e.DeletedAt = &t
	}
	return e, nil
}

func scanRolePermission(row scanner) (rbac.RolePermission, error) {
	var (
		e        rbac.RolePermission
		assigned sql.NullString
		deleted  sql.NullTime
	)
	err := row.Scan(&e.ID, &e.RoleID, &e.PermissionID, &assigned, &e.Active,
		&e.CreatedAt, &e.UpdatedAt, &deleted)
	if err != nil {
		return rbac.RolePermission{}, err
	}
	e.AssignedBy = assigned.String
	if deleted.Valid {
		t := deleted.Time
		e.DeletedAt = &t
	}
	return e, nil
}

const accountRoleColumns = `id, account_id, role_id, assigned_by, active, created_at, updated_at, deleted_at`

const rolePermissionColumns = `id, role_id, permission_id, assigned_by, active, created_at, updated_at, deleted_at`

func (s *Store) CreateAccountRole(ctx context.Context, e rbac.AccountRole) (rbac.AccountRole, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into account_roles (id, account_id, role_id, assigned_by, active)
		values ($1, $2, $3, $4, $5)
		returning `+accountRoleColumns,
		e.ID, e.AccountID, e.RoleID, nullIfEmpty(e.AssignedBy), e.Active)
	created, err := scanAccountRole(row)
	if err != nil {
		return rbac.AccountRole{}, mapPgError(err, "account role edge")
	}
	return created, nil
}

func (s *Store) GetAccountRole(ctx context.Context, accountID, roleID string) (rbac.AccountRole, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+accountRoleColumns+` from account_roles
		where account_id = $1 and role_id = $2 and deleted_at is null
	`, accountID, roleID)
	e, err := scanAccountRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.AccountRole{}, rbac.ErrNotFound
	}
	return e, mapPgError(err, "account role edge")
}

func (s *Store) ListAccountRoles(ctx context.Context, accountID string) ([]rbac.AccountRole, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+accountRoleColumns+` from account_roles
		where account_id = $1 and deleted_at is null
		order by created_at, id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.AccountRole
	for rows.Next() {
		e, err := scanAccountRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SetAccountRoleActive(ctx context.Context, accountID, roleID string, active bool) error {
	res, err := s.q.ExecContext(ctx, `
		update account_roles set active = $3, updated_at = now()
		where account_id = $1 and role_id = $2 and deleted_at is null
	`, accountID, roleID, active)
	return oneRow(res, err)
}

func (s *Store) CreateRolePermission(ctx context.Context, e rbac.RolePermission) (rbac.RolePermission, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := s.q.QueryRowContext(ctx, `
		insert into role_permissions (id, role_id, permission_id, assigned_by, active)
		values ($1, $2, $3, $4, $5)
		returning `+rolePermissionColumns,
		e.ID, e.RoleID, e.PermissionID, nullIfEmpty(e.AssignedBy), e.Active)
	created, err := scanRolePermission(row)
	if err != nil {
		return rbac.RolePermission{}, mapPgError(err, "role permission edge")
	}
	return created, nil
}

func (s *Store) GetRolePermission(ctx context.Context, roleID, permissionID string) (rbac.RolePermission, error) {
	row := s.q.QueryRowContext(ctx, `
		select `+rolePermissionColumns+` from role_permissions
		where role_id = $1 and permission_id = $2 and deleted_at is null
	`, roleID, permissionID)
	e, err := scanRolePermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.RolePermission{}, rbac.ErrNotFound
	}
	return e, mapPgError(err, "role permission edge")
}

func (s *Store) ListRolePermissions(ctx context.Context, roleID string) ([]rbac.RolePermission, error) {
	rows, err := s.q.QueryContext(ctx, `
		select `+rolePermissionColumns+` from role_permissions
		where role_id = $1 and deleted_at is null
		order by created_at, id
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.RolePermission
	for rows.Next() {
		e, err := scanRolePermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SetRolePermissionActive(ctx context.Context, roleID, permissionID string, active bool) error {
	res, err := s.q.ExecContext(ctx, `
		update role_permissions set active = $3, updated_at = now()
		where role_id = $1 and permission_id = $2 and deleted_at is null
	`, roleID, permissionID, active)
	return oneRow(res, err)
}

// Helpers ------------------------------------------------------------------

// mapPgError translates constraint violations into the domain sentinels.
// Unique violations mean the row already exists; foreign key violations mean
// a referenced row is gone. Malformed uuid text in an id parameter can never
// match a row, so it reads as not found, matching the in-memory store.
func mapPgError(err error, subject string) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", rbac.ErrConflict, subject)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", rbac.ErrNotFound, subject)
		case pgErrInvalidTextRepresentation:
			return fmt.Errorf("%w: %s", rbac.ErrNotFound, subject)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func oneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
