package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/model"
	obserrors "github.com/target/hrm-scheduler/internal/observability/errors"
	"github.com/target/hrm-scheduler/internal/observability/metrics"
	"github.com/target/hrm-scheduler/internal/observability/notify"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/service/failurenotifier"
)

// RunRecorderOptions groups dependencies for RunRecorder.
type RunRecorderOptions struct {
	Runs     core.JobRunRepository   // Required
	Notifier *failurenotifier.Service // Optional: FAILED run notifications
	Metrics  statsd.Sink              // Optional
	Logger   *slog.Logger             // Optional
	Clock    OrgClock
	// OnTerminal runs after every terminal write, e.g. to invalidate cached stats.
	OnTerminal func(ctx context.Context)
}

// RunRecorder writes JobRun lifecycle entries and emits the matching metrics and notifications.
type RunRecorder struct {
	runs       core.JobRunRepository
	notifier   *failurenotifier.Service
	metrics    statsd.Sink
	logger     *slog.Logger
	onTerminal func(ctx context.Context)
	clock      OrgClock
}

// NewRunRecorder constructs a RunRecorder.
func NewRunRecorder(opts RunRecorderOptions) (*RunRecorder, error) {
	if opts.Runs == nil {
		return nil, errors.New("JobRunRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RunRecorder{
		runs:       opts.Runs,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "run_recorder"),
		onTerminal: opts.OnTerminal,
		clock:      opts.Clock,
	}, nil
}

// Start records a RUNNING entry.
func (r *RunRecorder) Start(ctx context.Context, req model.StartRunRequest) (*model.JobRun, error) {
	return r.runs.Start(ctx, req)
}

// Finish writes the terminal state of run for ex. result is persisted for non-failed executions;
// when nil the handler payload is used. Writes survive cancellation of ctx.
// A nil run (the start write failed) only emits metrics.
func (r *RunRecorder) Finish(ctx context.Context, run *model.JobRun, jobName string, trigger model.TriggerSource, ex Execution, result any) {
	ctx = context.WithoutCancel(ctx)
	defer r.emit(jobName, trigger, ex)

	if run == nil {
		return
	}

	if ex.Failed() {
		msg := "unknown error"
		if ex.Err != nil {
			msg = ex.Err.Error()
		}
		if _, err := r.runs.Fail(ctx, run.ID, core.RunFailure{Message: msg, Stack: ex.Stack}); err != nil {
			r.logger.ErrorContext(ctx, "failed to record run failure", "run_id", run.ID, "job", run.JobName, "error", err)
		}
		r.notify(ctx, run, ex, msg)
	} else {
		if result == nil {
			result = ex.resultPayload()
		}
		if _, err := r.runs.Complete(ctx, run.ID, result); err != nil {
			r.logger.ErrorContext(ctx, "failed to record run success", "run_id", run.ID, "job", run.JobName, "error", err)
		}
	}

	if r.onTerminal != nil {
		r.onTerminal(ctx)
	}
}

func (r *RunRecorder) notify(ctx context.Context, run *model.JobRun, ex Execution, msg string) {
	if r.notifier == nil {
		return
	}
	severity := notify.SeverityCritical
	if ex.Outcome == OutcomeTimedOut {
		severity = notify.SeverityWarning
	}
	var createdBy string
	if run.CreatedBy != nil {
		createdBy = *run.CreatedBy
	}
	r.notifier.NotifyRunFailure(ctx, notify.RunFailurePayload{
		RunID:       run.ID,
		JobName:     run.JobName,
		JobType:     run.JobType,
		TriggeredBy: string(run.TriggeredBy),
		CreatedBy:   createdBy,
		PeriodKey:   run.PeriodKey,
		Error:       msg,
		ErrorClass:  obserrors.Classify(ex.Err),
		Severity:    severity,
		OccurredAt:  r.clock.Now(),
		Metadata:    map[string]string{"outcome": string(ex.Outcome)},
	})
}

func (r *RunRecorder) emit(jobName string, trigger model.TriggerSource, ex Execution) {
	result := metrics.ResultSuccess
	switch ex.Outcome {
	case OutcomeSkipped:
		result = metrics.ResultSkipped
	case OutcomeFailed:
		result = metrics.ResultError
	case OutcomeTimedOut:
		result = metrics.ResultTimedOut
	case OutcomeSuccess:
	}
	metrics.EmitRunOutcome(r.metrics, metrics.RunMetric{
		JobName:  jobName,
		Trigger:  strings.ToLower(string(trigger)),
		Result:   result,
		Duration: ex.Duration,
		Err:      ex.Err,
	})
}
