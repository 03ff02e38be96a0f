package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/adapters/hrclient"
	"github.com/target/hrm-scheduler/internal/adapters/reaper"
	"github.com/target/hrm-scheduler/internal/adapters/scheduler"
	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/data"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	httpx "github.com/target/hrm-scheduler/internal/http"
	"github.com/target/hrm-scheduler/internal/observability/notify/pagerduty"
	"github.com/target/hrm-scheduler/internal/observability/notify/slack"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/service"
	"github.com/target/hrm-scheduler/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Catalog       *catalog.Catalog
	Clock         service.OrgClock
	Runs          *service.JobRunService
	Trigger       *service.TriggerService
	Scheduler     *scheduler.Runner
	Reaper        *reaper.Runner
	Auth          httpx.Auth
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink, or nil when metrics are disabled.
//
//nolint:ireturn // a nil interface keeps services from emitting into a disabled client.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger

	// Optional overrides (tests).
	Runs         core.JobRunRepository
	HRHTTPClient *http.Client
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			RunURLPrefix: cfg.Slack.RunURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// buildCache returns the stats cache, or nil when caching is disabled or Redis is unavailable.
//
//nolint:ireturn // a nil interface disables caching in JobRunService.
func buildCache(cfg config.CacheConfig, client redis.UniversalClient) core.CacheRepository {
	if !cfg.Enabled || client == nil {
		return nil
	}
	return data.NewRedisCacheRepo(client, cfg.KeyPrefix)
}

// triggerPipeline groups the collaborators of the trigger pipeline.
type triggerPipeline struct {
	guard        *service.ConcurrencyGuard
	recorder     *service.RunRecorder
	deps         *service.DependencyValidator
	idempotency  *service.IdempotencyChecker
	orchestrator *service.Orchestrator
	trigger      *service.TriggerService
}

type triggerPipelineOptions struct {
	Catalog       *catalog.Catalog
	Runs          core.JobRunRepository
	Handlers      service.HandlerResolver
	History       *service.JobRunService
	Clock         service.OrgClock
	Scheduler     config.SchedulerConfig
	Observability ObservabilityContainer
	Logger        *slog.Logger
}

func buildTriggerPipeline(opts triggerPipelineOptions) (*triggerPipeline, error) {
	p := &triggerPipeline{guard: service.NewConcurrencyGuard()}

	var err error
	p.recorder, err = service.NewRunRecorder(service.RunRecorderOptions{
		Runs:       opts.Runs,
		Notifier:   opts.Observability.FailureNotifier,
		Metrics:    opts.Observability.Sink(),
		Logger:     opts.Logger,
		Clock:      opts.Clock,
		OnTerminal: opts.History.InvalidateStats,
	})
	if err != nil {
		return nil, fmt.Errorf("run recorder: %w", err)
	}

	checkerOpts := service.PeriodCheckerOptions{Catalog: opts.Catalog, Runs: opts.Runs, Clock: opts.Clock}
	if p.deps, err = service.NewDependencyValidator(checkerOpts); err != nil {
		return nil, fmt.Errorf("dependency validator: %w", err)
	}
	if p.idempotency, err = service.NewIdempotencyChecker(checkerOpts); err != nil {
		return nil, fmt.Errorf("idempotency checker: %w", err)
	}

	p.orchestrator, err = service.NewOrchestrator(service.OrchestratorOptions{
		Catalog:    opts.Catalog,
		Handlers:   opts.Handlers,
		Guard:      p.guard,
		Recorder:   p.recorder,
		Clock:      opts.Clock,
		JobTimeout: opts.Scheduler.JobTimeout,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	p.trigger, err = service.NewTriggerService(service.TriggerServiceOptions{
		Catalog:      opts.Catalog,
		Handlers:     opts.Handlers,
		Orchestrator: p.orchestrator,
		Guard:        p.guard,
		Dependencies: p.deps,
		Idempotency:  p.idempotency,
		Recorder:     p.recorder,
		Clock:        opts.Clock,
		JobTimeout:   opts.Scheduler.JobTimeout,
		Metrics:      opts.Observability.Sink(),
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("trigger service: %w", err)
	}
	return p, nil
}

// NewServices wires the catalog, job log store, trigger pipeline and background runners.
// The admin API authenticator is only built when the HTTP service is enabled.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return ServiceContainer{}, err
	}
	clock := service.NewOrgClock(loc)
	cat := catalog.Default()
	observability := buildObservability(logger, cfg.Observability)

	runs := deps.Runs
	if runs == nil {
		if deps.DB == nil {
			return ServiceContainer{}, errors.New("database connection is required")
		}
		runs = data.NewJobRunRepo(deps.DB, data.RepoConfig{Logger: logger, TimeProvider: clock.TimeProvider})
	}

	history, err := service.NewJobRunService(service.JobRunServiceOptions{
		Runs:     runs,
		Cache:    buildCache(cfg.Cache, deps.RedisClient),
		CacheTTL: cfg.Cache.StatsTTL,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job run service: %w", err)
	}

	hr, err := hrclient.New(hrclient.Options{Config: cfg.HRBackend, Logger: logger, HTTPClient: deps.HRHTTPClient})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("hr backend client: %w", err)
	}
	handlers, err := service.NewHandlerRegistry(service.HandlerRegistryOptions{
		Catalog:  cat,
		Handlers: hr.Handlers(cat),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("handler registry: %w", err)
	}

	pipeline, err := buildTriggerPipeline(triggerPipelineOptions{
		Catalog:       cat,
		Runs:          runs,
		Handlers:      handlers,
		History:       history,
		Clock:         clock,
		Scheduler:     cfg.Scheduler,
		Observability: observability,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	reaperRepo, ok := runs.(core.RunReaperRepository)
	if !ok {
		return ServiceContainer{}, errors.New("job run repository does not support retention maintenance")
	}
	reaperRunner, err := reaper.NewRunner(reaper.RunnerOptions{
		Repo:      reaperRepo,
		Config:    cfg.Reaper,
		Clock:     clock,
		Logger:    logger,
		Metrics:   observability.Sink(),
		OnDeleted: history.InvalidateStats,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("reaper: %w", err)
	}

	schedulerRunner, err := scheduler.NewRunner(scheduler.RunnerOptions{
		Catalog:  cat,
		Trigger:  pipeline.trigger,
		Location: loc,
		Logger:   logger,
		Metrics:  observability.Sink(),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("scheduler: %w", err)
	}

	container := ServiceContainer{
		Catalog:       cat,
		Clock:         clock,
		Runs:          history,
		Trigger:       pipeline.trigger,
		Scheduler:     schedulerRunner,
		Reaper:        reaperRunner,
		Observability: observability,
	}

	if cfg.IsHTTPServerEnabled() {
		auth, err := BuildAuth(ctx, AuthConfig{Auth: cfg.Auth, Logger: logger})
		if err != nil {
			return ServiceContainer{}, err
		}
		container.Auth = auth
	}

	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig) []backgroundService {
	var services []backgroundService
	if cfg.Config.IsSchedulerEnabled() && cfg.Services.Scheduler != nil {
		services = append(services, backgroundService{
			mode:  config.ServiceModeScheduler,
			name:  "scheduler",
			start: cfg.Services.Scheduler.Run,
		})
	}
	if cfg.Config.IsReaperEnabled() && cfg.Services.Reaper != nil {
		services = append(services, backgroundService{
			mode:  config.ServiceModeReaper,
			name:  "reaper",
			start: cfg.Services.Reaper.Run,
		})
	}
	return services
}

// RunServicesWithShutdown starts all enabled services and blocks until ctx is cancelled
// or one of them fails. A cancelled ctx is a graceful shutdown and returns nil.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Config.IsHTTPServerEnabled() {
		server := NewHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			DB:       cfg.DB,
			Logger:   logger,
		})
		g.Go(func() error {
			return ServeHTTP(gctx, server, cfg.Config.HTTP.ShutdownTimeout, logger)
		})
	}

	for _, svc := range buildBackgroundServices(cfg) {
		g.Go(func() error {
			logger.InfoContext(gctx, "background service started", "service", svc.name, "mode", svc.mode)
			if err := svc.start(gctx); err != nil {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service error", "error", err)
		return err
	}
	logger.Info("all services stopped")
	return nil
}
