package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// Require returns the principal when it holds the named permission.
func Require(ctx context.Context, permission string) (*Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !p.HasPermission(permission) {
		return nil, fmt.Errorf("%w: missing %s", ErrForbidden, permission)
	}
	return p, nil
}
