package auth

// Package auth contains domain-level types for authenticating admin API callers.
// It is pure and free of framework/adapter concerns.

import (
	"slices"
	"time"
)

// Role represents an application's authorization role.
type Role string

const (
	// RoleAdmin may trigger jobs and purge run history.
	RoleAdmin Role = "admin"
	// RoleUser may read the job catalog and run history.
	RoleUser Role = "user"
	// RoleGuest is authenticated but has no access.
	RoleGuest Role = "guest"
)

// Identity represents the authenticated principal behind a bearer token.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (e.g., samAccountName or sub)
	Email     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from the token
}

// InGroup reports whether the identity is a member of group.
func (i Identity) InGroup(group string) bool {
	return group != "" && slices.Contains(i.Groups, group)
}

// Principal is an identity together with its mapped role.
type Principal struct {
	Identity
	Role Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanRead reports whether the principal may read jobs and runs.
func (p Principal) CanRead() bool { return p.Role == RoleAdmin || p.Role == RoleUser }
