package auth

import (
	"context"

	"dipdive.org/internal/rbac"
)

type ctxKey int

const (
	principalKey ctxKey = iota
	tokenKey
)

// Principal is the authenticated caller with its resolved permission set.
type Principal struct {
	Account     rbac.Account
	Permissions map[string]struct{}
}

// NewPrincipal indexes the permission names for constant-time checks.
func NewPrincipal(account rbac.Account, perms []rbac.Permission) *Principal {
	idx := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		idx[p.Name] = struct{}{}
	}
	return &Principal{Account: account, Permissions: idx}
}

func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Permissions[name]
	return ok
}

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// AccountIDFromContext returns the caller's account id, empty when anonymous.
func AccountIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Account.ID
	}
	return ""
}

func ContextWithToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, tokenKey, raw)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(tokenKey).(string)
	return raw, ok && raw != ""
}
