package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// ReasonJobInProgress is reported for a group member whose guard key is already held.
const ReasonJobInProgress = "job in progress"

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Catalog    *catalog.Catalog  // Required
	Handlers   HandlerResolver   // Required
	Guard      *ConcurrencyGuard // Required: shared with the trigger pipeline
	Recorder   *RunRecorder      // Required
	Clock      OrgClock
	JobTimeout time.Duration // Optional: defaults to DefaultJobTimeout
	Logger     *slog.Logger  // Optional
}

// Orchestrator runs the members of a group job sequentially as one pipeline.
type Orchestrator struct {
	catalog  *catalog.Catalog
	handlers HandlerResolver
	guard    *ConcurrencyGuard
	recorder *RunRecorder
	clock    OrgClock
	exec     executor
	logger   *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("catalog is required")
	case opts.Handlers == nil:
		return nil, errors.New("handler resolver is required")
	case opts.Guard == nil:
		return nil, errors.New("concurrency guard is required")
	case opts.Recorder == nil:
		return nil, errors.New("run recorder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")
	return &Orchestrator{
		catalog:  opts.Catalog,
		handlers: opts.Handlers,
		guard:    opts.Guard,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		exec:     newExecutor(opts.JobTimeout, logger),
		logger:   logger,
	}, nil
}

// GroupRequest identifies a group invocation.
type GroupRequest struct {
	Group       catalog.JobName
	TriggeredBy model.TriggerSource
	CreatedBy   string
}

// JobResult is the outcome of one group member.
type JobResult struct {
	JobName    catalog.JobName `json:"jobName"`
	Status     Outcome         `json:"status"`
	Params     catalog.Params  `json:"params"`
	RunID      string          `json:"runId,omitempty"`
	DurationMs int64           `json:"durationMs"`
	Reason     string          `json:"reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    map[string]any  `json:"payload,omitempty"`
}

// GroupResult aggregates the member outcomes of a group invocation.
type GroupResult struct {
	Group      catalog.JobName `json:"group"`
	NoOp       bool            `json:"noop,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	TimedOut   int             `json:"timedOut"`
	Jobs       []JobResult     `json:"jobs"`
}

// OK reports whether no member failed or timed out.
func (g *GroupResult) OK() bool {
	return g.Failed == 0 && g.TimedOut == 0
}

func (g *GroupResult) add(j JobResult) {
	g.Total++
	switch j.Status {
	case OutcomeSuccess:
		g.Successful++
	case OutcomeSkipped:
		g.Skipped++
	case OutcomeFailed:
		g.Failed++
	case OutcomeTimedOut:
		g.TimedOut++
	}
	g.Jobs = append(g.Jobs, j)
}

// Summary renders the counts for response messages.
func (g *GroupResult) Summary() string {
	if g.NoOp {
		return fmt.Sprintf("%s skipped: %s", g.Group, g.Reason)
	}
	return fmt.Sprintf("%s finished: %d successful, %d skipped, %d failed, %d timed out",
		g.Group, g.Successful, g.Skipped, g.Failed, g.TimedOut)
}

func (o *Orchestrator) group(name catalog.JobName) (catalog.Definition, error) {
	def, ok := o.catalog.Get(name)
	if !ok || !def.IsGroup() {
		return catalog.Definition{}, apperrors.ParametersInvalid("jobName", fmt.Sprintf("%s is not a job group", name))
	}
	return def, nil
}

// Run executes every member of the group in declared order. A member failure never aborts
// the group. A calendar guard that rejects the current date turns the run into a no-op.
func (o *Orchestrator) Run(ctx context.Context, req GroupRequest) (*GroupResult, error) {
	def, err := o.group(req.Group)
	if err != nil {
		return nil, err
	}
	now := o.clock.Now()
	result := &GroupResult{Group: def.Name, Jobs: []JobResult{}}

	if ok, reason := def.Guard.Allows(now, o.clock.Loc()); !ok {
		o.logger.InfoContext(ctx, "group skipped by calendar guard", "group", def.Name, "reason", reason)
		result.NoOp = true
		result.Reason = reason
		return result, nil
	}

	o.logger.InfoContext(ctx, "group started", "group", def.Name, "members", len(def.Members), "triggered_by", req.TriggeredBy)
	for _, m := range def.Members {
		params := m.Period.Resolve(now, o.clock.Loc())
		result.add(o.runMember(ctx, m.Name, params, req))
	}
	o.logger.InfoContext(ctx, "group finished",
		"group", def.Name,
		"successful", result.Successful,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"timed_out", result.TimedOut,
	)
	return result, nil
}

func (o *Orchestrator) runMember(ctx context.Context, name catalog.JobName, params catalog.Params, req GroupRequest) JobResult {
	jr := JobResult{JobName: name, Params: params}

	key := params.GuardKey(name)
	if !o.guard.TryAcquire(key) {
		o.logger.InfoContext(ctx, "group member skipped", "job", name, "reason", ReasonJobInProgress)
		jr.Status = OutcomeSkipped
		jr.Reason = ReasonJobInProgress
		return jr
	}
	defer o.guard.Release(key)

	def, _ := o.catalog.Get(name)
	run, err := o.recorder.Start(ctx, model.StartRunRequest{
		JobName:     name.LogName(req.TriggeredBy == model.TriggeredByManual),
		JobType:     string(def.Type),
		TriggeredBy: req.TriggeredBy,
		CreatedBy:   req.CreatedBy,
		Params:      params,
		PeriodKey:   params.PeriodKey(),
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record group member start", "job", name, "error", err)
		jr.Status = OutcomeFailed
		jr.Error = fmt.Errorf("record job start: %w", err).Error()
		return jr
	}
	jr.RunID = run.ID

	var ex Execution
	if h, herr := o.handlers.Handler(name); herr != nil {
		ex = Execution{Outcome: OutcomeFailed, Err: herr}
	} else {
		ex = o.exec.execute(ctx, name, h, params)
	}
	o.recorder.Finish(ctx, run, string(name), req.TriggeredBy, ex, nil)

	jr.Status = ex.Outcome
	jr.DurationMs = ex.Duration.Milliseconds()
	if ex.Err != nil {
		jr.Error = ex.Err.Error()
	}
	if ex.Result != nil {
		jr.Reason = ex.Result.Reason
		jr.Payload = ex.Result.Payload
	}
	if ex.Failed() {
		o.logger.WarnContext(ctx, "group member failed", "job", name, "status", ex.Outcome, "error", ex.Err)
	}
	return jr
}

// Preview lists what each member of the group would do right now.
func (o *Orchestrator) Preview(ctx context.Context, name catalog.JobName) (map[string]any, error) {
	def, err := o.group(name)
	if err != nil {
		return nil, err
	}
	now := o.clock.Now()
	preview := map[string]any{"group": string(def.Name)}
	if ok, reason := def.Guard.Allows(now, o.clock.Loc()); !ok {
		preview["noop"] = true
		preview["reason"] = reason
		return preview, nil
	}

	members := make([]map[string]any, 0, len(def.Members))
	for _, m := range def.Members {
		params := m.Period.Resolve(now, o.clock.Loc())
		entry := map[string]any{"jobName": string(m.Name), "params": params}
		p, perr := o.handlers.Preview(ctx, m.Name, params)
		if perr != nil {
			entry["error"] = perr.Error()
		} else {
			entry["preview"] = p
		}
		members = append(members, entry)
	}
	preview["members"] = members
	return preview, nil
}
