package devauth

// Package devauth provides a config-driven token verifier for local development.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
)

// Config controls the dev verifier behavior.
// All fields are required except Groups, which may be empty.
type Config struct {
	UserID   string
	Email    string
	Groups   []string
	TokenTTL time.Duration // default 8h when zero
}

// Verifier implements ports.TokenVerifier for local development.
// Every token, including an empty one, authenticates as the configured identity.
type Verifier struct {
	identity domainauth.Identity
	ttl      time.Duration
	now      func() time.Time
}

// NewVerifier constructs a dev verifier from Config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &Verifier{
		identity: domainauth.Identity{
			UserID: cfg.UserID,
			Email:  cfg.Email,
			Groups: append([]string(nil), cfg.Groups...),
		},
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Verify ignores the token and returns the dev identity.
func (v *Verifier) Verify(_ context.Context, _ string) (domainauth.Identity, error) {
	id := v.identity
	id.Groups = append([]string(nil), v.identity.Groups...)
	id.ExpiresAt = v.now().Add(v.ttl)
	return id, nil
}
