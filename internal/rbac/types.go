package rbac

import (
	"strings"
	"time"
)

// Category partitions roles and permissions into the business domains of the
// dive center: technical administration and diving operations.
type Category string

const (
	CategoryAdmin  Category = "admin"
	CategoryDiving Category = "diving"
)

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	return c == CategoryAdmin || c == CategoryDiving
}

// Action is the CRUD verb a permission controls.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a member of the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Account represents a human operator. PasswordHash is an opaque credential
// reference produced by the auth package; this package never inspects it.
type Account struct {
	ID            string     `json:"id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	LicenseNumber string     `json:"license_number,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// FullName joins the account's given and family names.
func (a Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Role groups permissions under a unique lower-case name.
type Role struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description,omitempty"`
	Category    Category   `json:"category"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Permission is a fine-grained capability over one resource and action.
// Its Name is always the canonical "resource:action" form.
type Permission struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description,omitempty"`
	Resource    string     `json:"resource"`
	Action      Action     `json:"action"`
	Category    Category   `json:"category"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// AccountRole links an account to a role. AssignedBy optionally records the
// account that performed the assignment; it is nulled, never cascaded, when
// that account is removed.
type AccountRole struct {
	ID         string     `json:"id"`
	AccountID  string     `json:"account_id"`
	RoleID     string     `json:"role_id"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// RolePermission links a role to a permission.
type RolePermission struct {
	ID           string     `json:"id"`
	RoleID       string     `json:"role_id"`
	PermissionID string     `json:"permission_id"`
	AssignedBy   string     `json:"assigned_by,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// AccountUpdate carries optional field changes; nil means "leave unchanged".
type AccountUpdate struct {
	FirstName     *string
	LastName      *string
	Email         *string
	LicenseNumber *string
}

// RoleUpdate carries optional field changes for a role.
type RoleUpdate struct {
	DisplayName *string
	Description *string
}

// PermissionUpdate carries optional field changes for a permission.
// Resource and action are immutable; the canonical name follows them.
type PermissionUpdate struct {
	DisplayName *string
	Description *string
}

// PermissionName derives the canonical permission name from a resource and
// action. Callers are expected to pass the resource already normalized.
func PermissionName(resource string, action Action) string {
	return resource + ":" + string(action)
}

// NormalizeEmail lower-cases and trims an email address. Applied on every
// account write before validation and persistence.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName lower-cases and trims a role name or permission resource.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (a *Account) normalize() {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Email = NormalizeEmail(a.Email)
	a.LicenseNumber = strings.ToUpper(strings.TrimSpace(a.LicenseNumber))
}

func (r *Role) normalize() {
	r.Name = NormalizeName(r.Name)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.Description = strings.TrimSpace(r.Description)
}

// normalize folds the permission fields and forces the canonical name.
// Once resource and action are known they always win over a caller-supplied
// name.
func (p *Permission) normalize() {
	p.Resource = NormalizeName(p.Resource)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Description = strings.TrimSpace(p.Description)
	if p.Resource != "" && p.Action != "" {
		p.Name = PermissionName(p.Resource, p.Action)
	} else {
		p.Name = NormalizeName(p.Name)
	}
}

// AdminRole reports whether the role belongs to the administrative domain.
func AdminRole(r Role) bool { return r.Category == CategoryAdmin }

// DivingRole reports whether the role belongs to the diving domain.
func DivingRole(r Role) bool { return r.Category == CategoryDiving }

// AdminPermission reports whether the permission belongs to the
// administrative domain.
func AdminPermission(p Permission) bool { return p.Category == CategoryAdmin }

// DivingPermission reports whether the permission belongs to the diving
// domain.
func DivingPermission(p Permission) bool { return p.Category == CategoryDiving }
