package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal PrincipalSummary) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (PrincipalSummary, bool) {
	if ctx == nil {
		return PrincipalSummary{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*PrincipalSummary)
	if !ok || v == nil {
		return PrincipalSummary{}, false
	}
	return *v, true
}
