package authz

import (
	"context"
	"strings"
)

// Principal is the authenticated caller of a request.
// It is created by the authentication stage and never modified afterwards.
type Principal struct {
	ID    string   `json:"id"`
	Label string   `json:"label"` // human readable, for logs
	Roles []string `json:"roles"` // global roles
}

func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached to ctx, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
