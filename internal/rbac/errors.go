package rbac

import "errors"

var (
	// ErrInvalidInput marks malformed or missing caller input.
	ErrInvalidInput = errors.New("rbac: invalid input")
	// ErrNotFound marks identifiers that do not resolve to a live,
	// non-soft-deleted record.
	ErrNotFound = errors.New("rbac: not found")
	// ErrConflict marks uniqueness violations: duplicate email, role name,
	// permission name, or edge pair.
	ErrConflict = errors.New("rbac: conflict")
	// ErrInvalidState marks edge writes against a deactivated endpoint.
	ErrInvalidState = errors.New("rbac: invalid state")
	// ErrTxFailure marks storage transactions that could not commit.
	ErrTxFailure = errors.New("rbac: transaction failure")
)
