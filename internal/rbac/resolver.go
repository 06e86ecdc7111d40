package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Resolver answers authorization questions by walking the graph as it is
// committed right now. Results are never cached or materialized; every check
// re-reads the current state, trading resolution latency for correctness.
type Resolver struct {
	store Store
}

// NewResolver constructs a read-only resolver over the given store.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Resolver{store: store}, nil
}

// EffectiveRoles returns the roles the account holds through fully active
// assignments: the edge and the role itself must be active and non-deleted.
// A missing, deactivated or soft-deleted account yields an empty set, not an
// error.
func (r *Resolver) EffectiveRoles(ctx context.Context, accountID string) ([]Role, error) {
	account, ok, err := r.liveAccount(ctx, accountID)
	if err != nil || !ok {
		return nil, err
	}
	return r.effectiveRoles(ctx, account.ID)
}

// EffectivePermissions returns every permission reachable from the account
// through at least one fully active role path, deduplicated by identity.
func (r *Resolver) EffectivePermissions(ctx context.Context, accountID string) ([]Permission, error) {
	account, ok, err := r.liveAccount(ctx, accountID)
	if err != nil || !ok {
		return nil, err
	}
	roles, err := r.effectiveRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var perms []Permission
	for _, role := range roles {
		edges, err := r.store.ListRolePermissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if !edge.Active {
				continue
			}
			perm, err := r.store.GetPermission(ctx, edge.PermissionID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// Endpoint activity wins over edge activity.
					continue
				}
				return nil, err
			}
			if !perm.Active {
				continue
			}
			if _, ok := seen[perm.ID]; ok {
				continue
			}
			seen[perm.ID] = struct{}{}
			perms = append(perms, perm)
		}
	}
	return perms, nil
}

// IsAuthorized reports whether the account may perform action on resource.
// The pair is normalized exactly as permission names are, so the answer is
// an exact-name membership test over the effective permission set. Lack of
// access is a false return, never an error.
func (r *Resolver) IsAuthorized(ctx context.Context, accountID, resource string, action Action) (bool, error) {
	if !action.Valid() {
		return false, nil
	}
	want := PermissionName(NormalizeName(resource), action)
	perms, err := r.EffectivePermissions(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Name == want {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) effectiveRoles(ctx context.Context, accountID string) ([]Role, error) {
	edges, err := r.store.ListAccountRoles(ctx, accountID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var roles []Role
	for _, edge := range edges {
		if !edge.Active {
			continue
		}
		role, err := r.store.GetRole(ctx, edge.RoleID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !role.Active {
			continue
		}
		if _, ok := seen[role.ID]; ok {
			continue
		}
		seen[role.ID] = struct{}{}
		roles = append(roles, role)
	}
	return roles, nil
}

// liveAccount resolves the account, distinguishing a malformed identifier
// (an error) from an absent or inactive account (empty result).
func (r *Resolver) liveAccount(ctx context.Context, accountID string) (Account, bool, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return Account{}, false, fmt.Errorf("%w: malformed account id %q", ErrInvalidInput, accountID)
	}
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}
	if !account.Active {
		return Account{}, false, nil
	}
	return account, true, nil
}
