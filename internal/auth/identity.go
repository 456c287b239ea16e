package auth

import "context"

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID  int64
	Email   string
	IsAdmin bool
}

type contextKey string

const identityContextKey contextKey = "github.com/ariefcatur/go-order-lifecycle/internal/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
