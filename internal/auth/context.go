package auth

import "context"

type identityContextKey struct{}

// ContextWithIdentity attaches the verified caller to the request context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the verified caller, if the gate attached one.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// RequireVariant composes on top of the gate: the authenticated identity must
// match the required partition or the call is rejected.
func RequireVariant(ctx context.Context, variant Variant) (Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrTokenInvalid
	}
	if identity.Variant != variant {
		return Identity{}, ErrPermissionDenied
	}
	return identity, nil
}
