package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/adapters/authroles"
	"github.com/target/hrm-scheduler/internal/adapters/devauth"
	"github.com/target/hrm-scheduler/internal/adapters/oidc"
	httpx "github.com/target/hrm-scheduler/internal/http"
)

// AuthConfig contains configuration for the admin API authenticator.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildAuth creates the bearer token authenticator for the configured auth mode.
// Mode none returns an Auth without a verifier, which admits every caller as an admin.
func BuildAuth(ctx context.Context, cfg AuthConfig) (httpx.Auth, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auth := httpx.Auth{
		Roles:  authroles.StaticRoleMapper{AdminGroup: cfg.Auth.AdminGroup},
		Logger: logger,
	}

	switch cfg.Auth.Mode {
	case config.AuthModeOIDC:
		verifier, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
			DiscoveryURL: cfg.Auth.OIDC.DiscoveryURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			GroupsClaim:  cfg.Auth.OIDC.GroupsClaim,
		})
		if err != nil {
			return httpx.Auth{}, fmt.Errorf("build oidc verifier: %w", err)
		}
		auth.Verifier = verifier

	case config.AuthModeDev:
		verifier, err := devauth.NewVerifier(devauth.Config{
			UserID: cfg.Auth.DevAuth.UserID,
			Email:  cfg.Auth.DevAuth.Email,
			Groups: cfg.Auth.DevAuth.Groups,
		})
		if err != nil {
			return httpx.Auth{}, fmt.Errorf("build dev auth verifier: %w", err)
		}
		logger.Warn("dev auth enabled: every request authenticates as the development identity",
			"user_id", cfg.Auth.DevAuth.UserID)
		auth.Verifier = verifier

	case config.AuthModeNone:
		logger.Warn("admin API authentication disabled")

	default:
		return httpx.Auth{}, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	return auth, nil
}
