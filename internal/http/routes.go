package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Catalog *catalog.Catalog
	Trigger TriggerRunner
	Runs    RunReader
	Purger  RunPurger
	Auth    Auth
	// Optional: readiness probe target (usually the *sql.DB).
	DB Pinger
	// Location interprets date-only query bounds.
	Location *time.Location
	Logger   *slog.Logger
}

// NewRouter creates and configures the API router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if services.Auth.Logger == nil {
		services.Auth.Logger = logger
	}

	mux := http.NewServeMux()
	jobHandlers := &JobHandlers{Catalog: services.Catalog, Runner: services.Trigger, Logger: logger}
	runHandlers := &RunHandlers{
		Runs:     services.Runs,
		Purger:   services.Purger,
		Location: services.Location,
		Logger:   logger,
	}

	registerJobRoutes(mux, jobHandlers, services.Auth)
	registerRunRoutes(mux, runHandlers, services.Auth)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.DB))

	return chain(mux, RequestID(), Logging(logger), Recover(logger))
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers, auth Auth) {
	mux.Handle("GET /api/jobs", reader(auth, h.List))
	mux.Handle("POST /api/jobs/trigger", admin(auth, h.Trigger))
}

func registerRunRoutes(mux *http.ServeMux, h *RunHandlers, auth Auth) {
	mux.Handle("GET /api/jobs/runs", reader(auth, h.List))
	mux.Handle("GET /api/jobs/runs/{id}", reader(auth, h.Get))
	mux.Handle("GET /api/jobs/stats", reader(auth, h.Stats))
	mux.Handle("DELETE /api/jobs/runs", admin(auth, h.Purge))
}

// reader requires any authenticated caller with read access.
func reader(auth Auth, fn http.HandlerFunc) http.Handler {
	return RequireAuth(auth)(fn)
}

// admin requires the admin role.
func admin(auth Auth, fn http.HandlerFunc) http.Handler {
	return RequireAuth(auth)(RequireRole(domainauth.RoleAdmin)(fn))
}

// chain applies middleware so that the first one listed is the outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
