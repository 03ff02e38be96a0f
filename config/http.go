package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally visible base URL, used to link runs from notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`

	// WriteTimeout must exceed the longest synchronous trigger (job timeout times group size).
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30m"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Minute
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
}
