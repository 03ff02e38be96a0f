package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata" // org timezone must resolve in minimal containers

	"github.com/redis/go-redis/v9"
	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.ConfigureLogger(&cfg, logger)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	if services.Observability.MetricsSink != nil {
		defer func() {
			if cerr := services.Observability.MetricsSink.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
			}
		}()
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		DB:       db,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting hrm-scheduler",
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"org_timezone", cfg.Scheduler.OrgTimezone,
		"auth_mode", cfg.Auth.Mode,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

// initInfrastructure connects the job log store and, when the stats cache is enabled, Redis.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	if !cfg.Cache.Enabled {
		return db, nil, nil
	}

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect redis: %w", errors.Join(err, fmt.Errorf("close database: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return db, redisClient, nil
}
