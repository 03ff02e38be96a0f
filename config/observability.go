package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "hrm-scheduler"

// ObservabilityConfig groups configuration that controls logging, metrics and failure fan-out.
type ObservabilityConfig struct {
	Logging       LoggingConfig
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Logging.Sanitize()
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LoggingConfig controls the process-wide slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Sanitize lower-cases values and falls back to info/json on anything unknown.
func (c *LoggingConfig) Sanitize() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format != LogFormatText {
		c.Format = LogFormatJSON
	}
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"STATSD_ENABLED" envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"STATSD_PREFIX"  envDefault:"hrm"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotificationsConfig controls outbound notifications for FAILED runs.
type ObservabilityNotificationsConfig struct {
	Enabled    bool                        `env:"NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration               `env:"NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int                         `env:"NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`
	Slack      SlackNotificationConfig     `                                                 envPrefix:"SLACK_"`
	PagerDuty  PagerDutyNotificationConfig `                                                 envPrefix:"PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled      bool   `env:"ENABLED"        envDefault:"false"`
	WebhookURL   string `env:"WEBHOOK_URL"`
	Channel      string `env:"CHANNEL"`
	Username     string `env:"USERNAME"       envDefault:"hrm-scheduler"`
	RunURLPrefix string `env:"RUN_URL_PREFIX"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.RunURLPrefix = strings.TrimSpace(c.RunURLPrefix)
	if c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"hrm-scheduler"`
	Component  string `env:"COMPONENT"   envDefault:"job-orchestrator"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = "job-orchestrator"
	}
}
