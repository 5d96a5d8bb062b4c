package auth

import "context"

type contextKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	Workspace string
	Role      Role
	Subject   string
}

// WithIdentity stores the caller in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// SubjectFromContext returns the caller subject or "anonymous".
func SubjectFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.Subject != "" {
		return id.Subject
	}
	return "anonymous"
}
