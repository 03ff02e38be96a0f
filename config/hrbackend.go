package config

import (
	"strings"
	"time"
)

// HRBackendConfig configures the client that executes job bodies against the HR backend.
type HRBackendConfig struct {
	// BaseURL of the HR backend internal jobs API, e.g. "http://hr-api:3000/internal/jobs".
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000/internal/jobs"`

	// Token is sent as a static bearer token when client credentials are not configured.
	Token string `env:"TOKEN"`

	// OAuth2 client credentials; when TokenURL and ClientID are set tokens are fetched and refreshed.
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"        envSeparator:","`

	// Timeout bounds a single HTTP call. The job timeout still applies on top of it.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"4m"`
}

// Sanitize applies guardrails to HR backend configuration values.
func (c *HRBackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Token = strings.TrimSpace(c.Token)
	c.TokenURL = strings.TrimSpace(c.TokenURL)
	c.ClientID = strings.TrimSpace(c.ClientID)
	if c.Timeout <= 0 {
		c.Timeout = 4 * time.Minute
	}
}

// UsesClientCredentials reports whether OAuth2 client credentials are configured.
func (c HRBackendConfig) UsesClientCredentials() bool {
	return c.TokenURL != "" && c.ClientID != ""
}
