// Package failurenotifier fans run failure notifications out to every configured sink.
package failurenotifier

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/target/hrm-scheduler/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a failure notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger: logger.With("component", "failure_notifier"),
		sinks:  sinks,
	}
}

// NotifyRunFailure delivers payload to every sink concurrently and waits for all of them.
// Delivery errors are logged, never returned: notification is best effort.
func (s *Service) NotifyRunFailure(ctx context.Context, payload notify.RunFailurePayload) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var g errgroup.Group
	for _, entry := range s.sinks {
		g.Go(func() error {
			if err := entry.Sink.SendRunFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"run_id", payload.RunID,
					"job_name", payload.JobName,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return s != nil && len(s.sinks) > 0
}
