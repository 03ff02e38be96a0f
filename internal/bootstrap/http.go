package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/hrm-scheduler/config"
	httpx "github.com/target/hrm-scheduler/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

// NewHTTPServer builds the admin API server. The caller starts it with ServeHTTP.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Catalog:  cfg.Services.Catalog,
		Trigger:  cfg.Services.Trigger,
		Runs:     cfg.Services.Runs,
		Auth:     cfg.Services.Auth,
		Location: cfg.Services.Clock.Loc(),
		Logger:   logger,
	}
	if cfg.Services.Reaper != nil {
		services.Purger = cfg.Services.Reaper.Service()
	}
	if cfg.DB != nil {
		services.DB = cfg.DB
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           httpx.NewRouter(services),
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      appCfg.HTTP.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs server until ctx is cancelled, then shuts it down gracefully.
func ServeHTTP(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("HTTP server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// The parent context is already cancelled; in-flight triggers get the full shutdown timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return ShutdownHTTPServer(ShutdownConfig{
		Context: shutdownCtx,
		Server:  server,
		Logger:  logger,
	})
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(cfg.Context); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
