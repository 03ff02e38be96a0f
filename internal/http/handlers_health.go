package httpx

import (
	"context"
	"io"
	"net/http"
	"time"
)

const healthResponse = `{"status":"ok"}`

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const readinessTimeout = 2 * time.Second

// readyHandler reports 503 until the job log store answers a ping.
func readyHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			healthHandler(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		healthHandler(w, r)
	}
}
