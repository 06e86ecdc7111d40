package rbac

import (
	"context"
	"errors"
	"fmt"
)

// Edge validation runs inside the same transaction as the edge write it
// guards. The in-transaction duplicate check gives callers a precise error;
// the database unique constraints remain the authoritative guard under
// concurrency.

func validateAccountRole(ctx context.Context, st Store, accountID, roleID, assignedBy string) error {
	account, err := st.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: account %s", ErrNotFound, accountID)
		}
		return err
	}
	if !account.Active {
		return fmt.Errorf("%w: account %s is deactivated", ErrInvalidState, accountID)
	}
	role, err := st.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
		}
		return err
	}
	if !role.Active {
		return fmt.Errorf("%w: role %s is deactivated", ErrInvalidState, roleID)
	}
	if _, err := st.GetAccountRole(ctx, accountID, roleID); err == nil {
		return fmt.Errorf("%w: account %s already holds role %s", ErrConflict, accountID, role.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return validateAssigner(ctx, st, assignedBy)
}

func validateRolePermission(ctx context.Context, st Store, roleID, permissionID, assignedBy string) error {
	role, err := st.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
		}
		return err
	}
	if !role.Active {
		return fmt.Errorf("%w: role %s is deactivated", ErrInvalidState, roleID)
	}
	perm, err := st.GetPermission(ctx, permissionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: permission %s", ErrNotFound, permissionID)
		}
		return err
	}
	if !perm.Active {
		return fmt.Errorf("%w: permission %s is deactivated", ErrInvalidState, permissionID)
	}
	if _, err := st.GetRolePermission(ctx, roleID, permissionID); err == nil {
		return fmt.Errorf("%w: role %s already granted %s", ErrConflict, role.Name, perm.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return validateAssigner(ctx, st, assignedBy)
}

func validateAssigner(ctx context.Context, st Store, assignedBy string) error {
	if assignedBy == "" {
		return nil
	}
	if _, err := st.GetAccount(ctx, assignedBy); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: assigning account %s", ErrNotFound, assignedBy)
		}
		return err
	}
	return nil
}
