package oidc

// Package oidc verifies bearer ID tokens issued by an OpenID Connect provider.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
	"github.com/target/hrm-scheduler/internal/ports"
	"golang.org/x/oauth2"
)

const defaultGroupsClaim = "groups"

// VerifierConfig holds configuration for the bearer token verifier.
type VerifierConfig struct {
	// DiscoveryURL is the issuer URL, with or without the well-known suffix.
	DiscoveryURL string
	// ClientID is the expected token audience.
	ClientID string
	// GroupsClaim names the claim carrying group membership. Defaults to "groups".
	GroupsClaim string
	HTTPClient  *http.Client // Optional, defaults to a client with a 30s timeout
}

// Verifier implements ports.TokenVerifier using go-oidc.
type Verifier struct {
	verifier    *gooidc.IDTokenVerifier
	groupsClaim string
	httpClient  *http.Client
}

// NewVerifier discovers the issuer and returns a verifier for its ID tokens.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return newVerifier(op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}), cfg.GroupsClaim, httpClient), nil
}

func newVerifier(v *gooidc.IDTokenVerifier, groupsClaim string, httpClient *http.Client) *Verifier {
	if groupsClaim == "" {
		groupsClaim = defaultGroupsClaim
	}
	return &Verifier{verifier: v, groupsClaim: groupsClaim, httpClient: httpClient}
}

// Verify checks the token signature, issuer, audience and expiry and maps its claims to an Identity.
// Every verification failure wraps ports.ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (domainauth.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domainauth.Identity{}, fmt.Errorf("%w: missing token", ports.ErrUnauthenticated)
	}
	if v.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	}

	idTok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: verify id_token: %w", ports.ErrUnauthenticated, err)
	}

	var claims map[string]any
	if err := idTok.Claims(&claims); err != nil {
		return domainauth.Identity{}, fmt.Errorf("%w: parse id_token claims: %w", ports.ErrUnauthenticated, err)
	}

	id := mapClaims(claims, v.groupsClaim)
	if id.UserID == "" {
		id.UserID = idTok.Subject
	}
	id.ExpiresAt = idTok.Expiry
	return id, nil
}

// mapClaims maps raw claims into an Identity, accepting both OIDC and AD/ADFS shapes.
func mapClaims(claims map[string]any, groupsClaim string) domainauth.Identity {
	groups := stringList(claims[groupsClaim])
	if len(groups) == 0 {
		groups = stringList(claims["memberof"])
	}
	return domainauth.Identity{
		UserID: firstNonEmpty(
			stringClaim(claims, "samaccountname"),
			stringClaim(claims, "preferred_username"),
			stringClaim(claims, "sub"),
		),
		Email:  firstNonEmpty(stringClaim(claims, "mail"), stringClaim(claims, "email")),
		Groups: groups,
	}
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// stringList accepts a single string or a JSON array of strings.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	default:
		return nil
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
