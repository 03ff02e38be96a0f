package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/hrm-scheduler/config"
)

// envFileVar names an alternative dotenv file; .env in the working directory is used otherwise.
const envFileVar = "ENV_FILE"

// InitLogger installs the JSON logger used until configuration has been loaded.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger replaces the bootstrap logger with one honouring the logging config.
// Development mode always logs text at debug level.
func ConfigureLogger(cfg *config.AppConfig, logger *slog.Logger) *slog.Logger {
	if cfg == nil {
		return logger
	}
	configured := slog.New(newLogHandler(os.Stdout, cfg))
	slog.SetDefault(configured)
	return configured
}

func newLogHandler(w io.Writer, cfg *config.AppConfig) slog.Handler {
	logCfg := cfg.Observability.Logging
	logCfg.Sanitize()
	if cfg.IsDev {
		logCfg = config.LoggingConfig{Level: "debug", Format: config.LogFormatText}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logCfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if logCfg.Format == config.LogFormatText {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// LoadConfig reads the optional dotenv file, then parses and sanitises the environment.
func LoadConfig() (config.AppConfig, error) {
	if err := loadEnvFile(os.Getenv(envFileVar)); err != nil {
		return config.AppConfig{}, err
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// loadEnvFile loads path, or .env when path is empty. A missing default file is not an error;
// a missing explicit file is.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ValidateServiceConfig checks SERVICES names at least one known mode.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	if len(services) == 0 {
		return errors.New("no services enabled")
	}
	return nil
}

// GetEnabledServices lists enabled modes in their canonical order. Invalid configs yield an
// empty list; ValidateServiceConfig reports the reason.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return []string{}
	}

	out := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			out = append(out, string(mode))
		}
	}
	return out
}
