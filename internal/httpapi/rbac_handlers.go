package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"dipdive.org/internal/auth"
	"dipdive.org/internal/obs"
	"dipdive.org/internal/rbac"
)

// Management permissions gating the API surface. These match the seeded
// admin catalog.
var (
	permAccountsCreate = rbac.PermissionName("users", rbac.ActionCreate)
	permAccountsRead   = rbac.PermissionName("users", rbac.ActionRead)
	permAccountsUpdate = rbac.PermissionName("users", rbac.ActionUpdate)
	permAccountsDelete = rbac.PermissionName("users", rbac.ActionDelete)

	permRolesCreate = rbac.PermissionName("roles", rbac.ActionCreate)
	permRolesRead   = rbac.PermissionName("roles", rbac.ActionRead)
	permRolesUpdate = rbac.PermissionName("roles", rbac.ActionUpdate)
	permRolesDelete = rbac.PermissionName("roles", rbac.ActionDelete)

	permPermsCreate = rbac.PermissionName("permissions", rbac.ActionCreate)
	permPermsRead   = rbac.PermissionName("permissions", rbac.ActionRead)
	permPermsUpdate = rbac.PermissionName("permissions", rbac.ActionUpdate)
	permPermsDelete = rbac.PermissionName("permissions", rbac.ActionDelete)
)

type createAccountRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	LicenseNumber string `json:"license_number"`
}

type updateAccountRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	Email         *string `json:"email"`
	LicenseNumber *string `json:"license_number"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type updateRoleRequest struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
}

type createPermissionRequest struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type updatePermissionRequest struct {
	DisplayName *string `json:"display_name"`
	Description *string `json:"description"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type grantPermissionRequest struct {
	PermissionID string `json:"permission_id"`
}

type authzCheckRequest struct {
	AccountID string `json:"account_id"`
	Resource  string `json:"resource"`
	Action    string `json:"action"`
}

// --- accounts ---

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createAccount(w, r)
	case http.MethodGet:
		if !a.ensurePermission(w, r, permAccountsRead) {
			return
		}
		accounts, err := a.svc.ListAccounts(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createAccount(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, permAccountsCreate) {
		return
	}
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := hashRequestPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.svc.CreateAccount(r.Context(), rbac.NewAccount{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		PasswordHash:  hash,
		LicenseNumber: req.LicenseNumber,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.audit(r.Context(), "accounts.create", "account", account.ID, map[string]string{
		"email": account.Email,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/accounts/%s", account.ID))
	writeJSON(w, http.StatusCreated, account)
}

func (a *API) handleAccountScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/accounts/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	accountID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleAccountByID(w, r, accountID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleAccountRoles(w, r, accountID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleAccountRole(w, r, accountID, parts[2])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleAccountPermissions(w, r, accountID)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleLifecycle(w, r, permAccountsUpdate, "accounts.deactivate", "account", accountID, a.svc.DeactivateAccount)
	case len(parts) == 2 && parts[1] == "reactivate":
		a.handleLifecycle(w, r, permAccountsUpdate, "accounts.reactivate", "account", accountID, a.svc.ReactivateAccount)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleAccountByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permAccountsRead) {
			return
		}
		account, err := a.svc.GetAccount(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case http.MethodPatch:
		if !a.ensurePermission(w, r, permAccountsUpdate) {
			return
		}
		var req updateAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		account, err := a.svc.UpdateAccount(r.Context(), id, rbac.AccountUpdate{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			Email:         req.Email,
			LicenseNumber: req.LicenseNumber,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "accounts.update", "account", id, nil)
		writeJSON(w, http.StatusOK, account)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, permAccountsDelete) {
			return
		}
		if err := a.svc.SoftDeleteAccount(r.Context(), id); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "accounts.delete", "account", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleAccountRoles(w http.ResponseWriter, r *http.Request, accountID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permAccountsRead) {
			return
		}
		roles, err := a.resolver.EffectiveRoles(r.Context(), accountID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermission(w, r, permRolesUpdate) {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		edge, err := a.svc.AssignRole(r.Context(), accountID, req.RoleID, callerID(r))
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "accounts.assign_role", "account", accountID, map[string]string{
			"role_id": edge.RoleID,
		})
		writeJSON(w, http.StatusCreated, edge)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAccountRole(w http.ResponseWriter, r *http.Request, accountID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, permRolesUpdate) {
		return
	}
	if err := a.svc.RevokeRole(r.Context(), accountID, roleID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.audit(r.Context(), "accounts.revoke_role", "account", accountID, map[string]string{
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAccountPermissions(w http.ResponseWriter, r *http.Request, accountID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, permAccountsRead) {
		return
	}
	perms, err := a.resolver.EffectivePermissions(r.Context(), accountID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// --- roles ---

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermission(w, r, permRolesCreate) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), rbac.NewRole{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			Description: req.Description,
			Category:    rbac.Category(req.Category),
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "roles.create", "role", role.ID, map[string]string{
			"name": role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if !a.ensurePermission(w, r, permRolesRead) {
			return
		}
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleRoleByID(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, roleID)
	case len(parts) == 3 && parts[1] == "permissions":
		a.handleRolePermission(w, r, roleID, parts[2])
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleLifecycle(w, r, permRolesUpdate, "roles.deactivate", "role", roleID, a.svc.DeactivateRole)
	case len(parts) == 2 && parts[1] == "reactivate":
		a.handleLifecycle(w, r, permRolesUpdate, "roles.reactivate", "role", roleID, a.svc.ReactivateRole)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permRolesRead) {
			return
		}
		role, err := a.svc.GetRole(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		if !a.ensurePermission(w, r, permRolesUpdate) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpdateRole(r.Context(), id, rbac.RoleUpdate{
			DisplayName: req.DisplayName,
			Description: req.Description,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "roles.update", "role", id, nil)
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, permRolesDelete) {
			return
		}
		if err := a.svc.SoftDeleteRole(r.Context(), id); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "roles.delete", "role", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, permPermsUpdate) {
		return
	}
	var req grantPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	edge, err := a.svc.GrantPermission(r.Context(), roleID, req.PermissionID, callerID(r))
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.audit(r.Context(), "roles.grant_permission", "role", roleID, map[string]string{
		"permission_id": edge.PermissionID,
	})
	writeJSON(w, http.StatusCreated, edge)
}

func (a *API) handleRolePermission(w http.ResponseWriter, r *http.Request, roleID, permissionID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, permPermsUpdate) {
		return
	}
	if err := a.svc.RevokePermission(r.Context(), roleID, permissionID); err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.audit(r.Context(), "roles.revoke_permission", "role", roleID, map[string]string{
		"permission_id": permissionID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// --- permissions ---

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermission(w, r, permPermsCreate) {
			return
		}
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.svc.CreatePermission(r.Context(), rbac.NewPermission{
			Resource:    req.Resource,
			Action:      rbac.Action(req.Action),
			DisplayName: req.DisplayName,
			Description: req.Description,
			Category:    rbac.Category(req.Category),
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "permissions.create", "permission", perm.ID, map[string]string{
			"name": perm.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	case http.MethodGet:
		if !a.ensurePermission(w, r, permPermsRead) {
			return
		}
		perms, err := a.svc.ListPermissions(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	permissionID := parts[0]

	switch {
	case len(parts) == 1:
		a.handlePermissionByID(w, r, permissionID)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.handleLifecycle(w, r, permPermsUpdate, "permissions.deactivate", "permission", permissionID, a.svc.DeactivatePermission)
	case len(parts) == 2 && parts[1] == "reactivate":
		a.handleLifecycle(w, r, permPermsUpdate, "permissions.reactivate", "permission", permissionID, a.svc.ReactivatePermission)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePermissionByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermission(w, r, permPermsRead) {
			return
		}
		perm, err := a.svc.GetPermission(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodPatch:
		if !a.ensurePermission(w, r, permPermsUpdate) {
			return
		}
		var req updatePermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.svc.UpdatePermission(r.Context(), id, rbac.PermissionUpdate{
			DisplayName: req.DisplayName,
			Description: req.Description,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "permissions.update", "permission", id, nil)
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		if !a.ensurePermission(w, r, permPermsDelete) {
			return
		}
		if err := a.svc.SoftDeletePermission(r.Context(), id); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.audit(r.Context(), "permissions.delete", "permission", id, nil)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// --- authz ---

// handleAuthzCheck answers access questions. GET checks the calling
// account against ?resource=&action=; POST carries an explicit account id
// in the body and requires permission management access.
func (a *API) handleAuthzCheck(w http.ResponseWriter, r *http.Request) {
	var req authzCheckRequest
	switch r.Method {
	case http.MethodGet:
		req.AccountID = callerID(r)
		req.Resource = r.URL.Query().Get("resource")
		req.Action = r.URL.Query().Get("action")
		if req.AccountID == "" {
			writeError(w, r, http.StatusBadRequest, "no authenticated account to check")
			return
		}
	case http.MethodPost:
		if !a.ensurePermission(w, r, permPermsRead) {
			return
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	allowed, err := a.resolver.IsAuthorized(r.Context(), req.AccountID, req.Resource, rbac.Action(req.Action))
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	obs.CountAuthzCheck(allowed)
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed":    allowed,
		"account_id": req.AccountID,
		"permission": rbac.PermissionName(rbac.NormalizeName(req.Resource), rbac.Action(req.Action)),
	})
}

// --- shared ---

// callerID returns the authenticated account id, empty for anonymous calls.
func callerID(r *http.Request) string {
	return auth.AccountIDFromContext(r.Context())
}

func hashRequestPassword(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", errors.New("password is required")
	}
	return auth.HashPassword(plain)
}

// handleLifecycle runs a deactivate/reactivate style operation.
func (a *API) handleLifecycle(w http.ResponseWriter, r *http.Request, permission, event, entity, id string, op func(context.Context, string) error) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, permission) {
		return
	}
	if err := op(r.Context(), id); err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.audit(r.Context(), event, entity, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrInvalidState):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}
