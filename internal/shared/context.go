package shared

import (
	"context"

	"github.com/google/uuid"
)

type principalContextKey struct{}

// Principal identifies the authenticated actor for the current request.
type Principal struct {
	ID    uuid.UUID
	Email string
}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
