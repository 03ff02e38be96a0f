package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; HTTP middleware consumes them.

import (
	"context"
	"errors"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
)

// ErrUnauthenticated is returned by a TokenVerifier when the token is missing or invalid.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenVerifier authenticates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (domainauth.Identity, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, rawToken string) (domainauth.Identity, error)

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	return f(ctx, rawToken)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}
