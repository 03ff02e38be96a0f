package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the admin HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScheduler runs the cron entry points.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeReaper runs job log retention.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeScheduler, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScheduler, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, scheduler, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SchedulerConfig contains job scheduling configuration.
type SchedulerConfig struct {
	// Enabled toggles registration of cron entry points.
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// OrgTimezone is the single IANA zone used for cron schedules, period windows
	// and future-date validation.
	OrgTimezone string `env:"ORG_TIMEZONE" envDefault:"Asia/Kolkata"`

	// JobTimeout bounds a single handler invocation.
	JobTimeout time.Duration `env:"SCHEDULER_JOB_TIMEOUT" envDefault:"5m"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	s.OrgTimezone = strings.TrimSpace(s.OrgTimezone)
	if s.OrgTimezone == "" {
		s.OrgTimezone = "Asia/Kolkata"
	}
	if s.JobTimeout < time.Second {
		s.JobTimeout = 5 * time.Minute
	}
}

// Location resolves OrgTimezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.OrgTimezone)
	if err != nil {
		return nil, fmt.Errorf("load org timezone %q: %w", s.OrgTimezone, err)
	}
	return loc, nil
}

// ReaperConfig contains job log retention configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1h"`

	// StaleRunMaxAge is how long a run may stay RUNNING before it is marked FAILED.
	// Runs are abandoned when the process dies between the start and terminal writes.
	StaleRunMaxAge time.Duration `env:"REAPER_STALE_RUN_MAX_AGE" envDefault:"2h"`

	// Retention is the age after which runs are deleted.
	Retention time.Duration `env:"REAPER_RETENTION" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.StaleRunMaxAge < 10*time.Minute {
		r.StaleRunMaxAge = 10 * time.Minute
	}
	if r.Retention < 24*time.Hour {
		r.Retention = 24 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
