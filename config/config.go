package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Admin API authentication
//   - database.go: Database and cache configuration
//   - http.go: HTTP server configuration
//   - services.go: Service mode, scheduler and reaper configuration
//   - hrbackend.go: HR backend client used by job handlers
//   - observability.go: Metrics and failure notifications
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, relaxed auth defaults).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,scheduler,reaper"`

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Reaper configuration
	Reaper ReaperConfig

	// HR backend configuration
	HRBackend HRBackendConfig `envPrefix:"HR_BACKEND_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Postgres.Sanitize()
	c.HTTP.Sanitize()
	c.Scheduler.Sanitize()
	c.Reaper.Sanitize()
	c.HRBackend.Sanitize()
	c.Cache.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsSchedulerEnabled returns true if the cron scheduler is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	return c.Scheduler.Enabled && c.serviceEnabled(ServiceModeScheduler)
}

// IsReaperEnabled returns true if the retention reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
