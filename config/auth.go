package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the authentication mode of the admin API.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer ID tokens against an OIDC issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev authenticates every request as a fixed development identity.
	AuthModeDev AuthMode = "dev"
	// AuthModeNone disables authentication (local use only).
	AuthModeNone AuthMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oidc", "dev", "none":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, dev, none)", v)
	}
}

// OIDCConfig contains bearer token verification settings.
type OIDCConfig struct {
	// DiscoveryURL is the issuer URL or its /.well-known/openid-configuration document.
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// ClientID is the expected audience of ID tokens.
	ClientID string `env:"CLIENT_ID" envDefault:"hrm-scheduler"`
	// GroupsClaim names the token claim carrying group membership.
	GroupsClaim string `env:"GROUPS_CLAIM" envDefault:"groups"`
}

// DevAuthConfig controls the development identity.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-user"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Groups []string `env:"GROUPS"  envDefault:"hr-admins"       envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authenticator guards the admin API.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oidc"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"AUTH_OIDC_"`

	// DevAuth configuration (used when Mode=dev).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup grants permission to trigger jobs and purge history.
	AdminGroup string `env:"AUTH_ADMIN_GROUP" envDefault:"hr-admins"`
}
