package httpx

import (
	"context"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
)

// principalKey is an unexported context key type to avoid collisions across packages.
type principalKey struct{}

// requestIDKey carries the per-request correlation id.
type requestIDKey struct{}

// SetPrincipalInContext returns a child context that carries the given principal.
// If principal is nil, the original ctx is returned unchanged.
func SetPrincipalInContext(ctx context.Context, principal *domainauth.Principal) context.Context {
	if principal == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the authenticated principal and a boolean indicating presence.
func PrincipalFromContext(ctx context.Context) (*domainauth.Principal, bool) {
	if p, ok := ctx.Value(principalKey{}).(*domainauth.Principal); ok && p != nil {
		return p, true
	}
	return nil, false
}

// ActorID returns the user id recorded as createdBy for actions taken by the request.
func ActorID(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID
	}
	return anonymousUserID
}

// RequestIDFromContext returns the request id set by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
