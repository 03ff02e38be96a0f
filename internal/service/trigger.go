package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/observability/metrics"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
)

// DryRunMessage is the response message of every successful dry run.
const DryRunMessage = "Dry run: no changes were made"

// TriggerRequest is one invocation of the trigger pipeline.
type TriggerRequest struct {
	JobName             string `json:"jobName"`
	Date                string `json:"date,omitempty"`
	Month               int    `json:"month,omitempty"`
	Year                int    `json:"year,omitempty"`
	TargetID            string `json:"targetId,omitempty"`
	DryRun              bool   `json:"dryRun,omitempty"`
	SkipDependencyCheck bool   `json:"skipDependencyCheck,omitempty"`
	ForceRun            bool   `json:"forceRun,omitempty"`

	// CreatedBy is the actor id; set by the caller, never decoded from the body.
	CreatedBy string `json:"-"`
	// TriggeredBy defaults to MANUAL.
	TriggeredBy model.TriggerSource `json:"-"`
}

func (r TriggerRequest) params() catalog.Params {
	return catalog.Params{
		Date:     strings.TrimSpace(r.Date),
		Month:    r.Month,
		Year:     r.Year,
		TargetID: strings.TrimSpace(r.TargetID),
	}
}

// TriggerResponse is the structured answer of the trigger pipeline. It is returned for every
// outcome once parameters have been validated.
type TriggerResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorCode,omitempty"`
	JobName   catalog.JobName `json:"jobName"`
	RunID     string          `json:"runId,omitempty"`
	DryRun    bool            `json:"dryRun"`
	Details   map[string]any  `json:"details,omitempty"`
	Params    catalog.Params  `json:"params"`
}

// TriggerServiceOptions groups dependencies for TriggerService.
type TriggerServiceOptions struct {
	Catalog      *catalog.Catalog     // Required
	Handlers     HandlerResolver      // Required
	Orchestrator *Orchestrator        // Required for group jobs
	Guard        *ConcurrencyGuard    // Required
	Dependencies *DependencyValidator // Required
	Idempotency  *IdempotencyChecker  // Required
	Recorder     *RunRecorder         // Required
	Clock        OrgClock
	JobTimeout   time.Duration // Optional: defaults to DefaultJobTimeout
	Metrics      statsd.Sink   // Optional
	Logger       *slog.Logger  // Optional
}

// TriggerService is the manual and scheduled trigger pipeline:
// validate, guard, check dependencies, check idempotency, execute, record.
type TriggerService struct {
	catalog      *catalog.Catalog
	handlers     HandlerResolver
	orchestrator *Orchestrator
	guard        *ConcurrencyGuard
	deps         *DependencyValidator
	idempotency  *IdempotencyChecker
	recorder     *RunRecorder
	clock        OrgClock
	exec         executor
	metrics      statsd.Sink
	logger       *slog.Logger
}

// NewTriggerService constructs a TriggerService.
func NewTriggerService(opts TriggerServiceOptions) (*TriggerService, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("catalog is required")
	case opts.Handlers == nil:
		return nil, errors.New("handler resolver is required")
	case opts.Guard == nil:
		return nil, errors.New("concurrency guard is required")
	case opts.Dependencies == nil:
		return nil, errors.New("dependency validator is required")
	case opts.Idempotency == nil:
		return nil, errors.New("idempotency checker is required")
	case opts.Recorder == nil:
		return nil, errors.New("run recorder is required")
	}
	if opts.Orchestrator == nil && len(opts.Catalog.Groups()) > 0 {
		return nil, errors.New("orchestrator is required when the catalog has groups")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "trigger_service")
	return &TriggerService{
		catalog:      opts.Catalog,
		handlers:     opts.Handlers,
		orchestrator: opts.Orchestrator,
		guard:        opts.Guard,
		deps:         opts.Dependencies,
		idempotency:  opts.Idempotency,
		recorder:     opts.Recorder,
		clock:        opts.Clock,
		exec:         newExecutor(opts.JobTimeout, logger),
		metrics:      opts.Metrics,
		logger:       logger,
	}, nil
}

// Running returns the guard keys currently held and when each was claimed.
func (s *TriggerService) Running() []HeldKey {
	return s.guard.Running()
}

// Trigger runs the pipeline for req. Parameter errors (ParametersInvalid, FutureDateNotAllowed)
// are returned as errors and nothing is recorded. Every later outcome, including failures,
// is reported through the response with a nil error.
func (s *TriggerService) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	name, err := s.catalog.Parse(req.JobName)
	if err != nil {
		metrics.EmitTriggerRejected(s.metrics, strings.ToUpper(strings.TrimSpace(req.JobName)), err)
		return nil, err
	}
	def, _ := s.catalog.Get(name)
	params := req.params()
	if err := params.Validate(def.Params, s.clock.Now(), s.clock.Loc()); err != nil {
		metrics.EmitTriggerRejected(s.metrics, string(name), err)
		return nil, err
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = model.TriggeredByManual
	}

	resp := &TriggerResponse{JobName: name, DryRun: req.DryRun, Params: params}
	log := s.logger.With("job", name, "triggered_by", req.TriggeredBy, "period", params.PeriodKey())

	key := params.GuardKey(name)
	if !s.guard.TryAcquire(key) {
		return s.reject(ctx, resp, apperrors.JobInProgressf("job %s is already running for this period", name)), nil
	}
	defer s.guard.Release(key)

	if !req.SkipDependencyCheck {
		if err := s.deps.Validate(ctx, name, params); err != nil {
			return s.reject(ctx, resp, err), nil
		}
	} else {
		log.WarnContext(ctx, "dependency check skipped by request", "created_by", req.CreatedBy)
	}

	if !req.DryRun && !req.ForceRun {
		if err := s.idempotency.AssertNotAlreadyProcessed(ctx, name, params); err != nil {
			return s.reject(ctx, resp, err), nil
		}
	}

	if req.DryRun {
		return s.dryRun(ctx, def, params, resp), nil
	}

	run, err := s.recorder.Start(ctx, model.StartRunRequest{
		JobName:     name.LogName(req.TriggeredBy == model.TriggeredByManual),
		JobType:     string(def.Type),
		TriggeredBy: req.TriggeredBy,
		CreatedBy:   req.CreatedBy,
		Params:      params,
		PeriodKey:   params.PeriodKey(),
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to record job start", "error", err)
		return s.reject(ctx, resp, fmt.Errorf("record job start: %w", err)), nil
	}
	resp.RunID = run.ID
	log.InfoContext(ctx, "job started", "run_id", run.ID, "force", req.ForceRun, "created_by", req.CreatedBy)

	// Detached from caller cancellation; the job timeout still applies.
	execCtx := context.WithoutCancel(ctx)
	if def.IsGroup() {
		s.runGroup(execCtx, run, req, resp)
	} else {
		s.runJob(execCtx, run, name, params, req.TriggeredBy, resp)
	}
	log.InfoContext(ctx, "job finished", "run_id", run.ID, "success", resp.Success)
	return resp, nil
}

func (s *TriggerService) runJob(
	ctx context.Context,
	run *model.JobRun,
	name catalog.JobName,
	params catalog.Params,
	trigger model.TriggerSource,
	resp *TriggerResponse,
) {
	var ex Execution
	if h, err := s.handlers.Handler(name); err != nil {
		ex = Execution{Outcome: OutcomeFailed, Err: err}
	} else {
		ex = s.exec.execute(ctx, name, h, params)
	}
	s.recorder.Finish(ctx, run, string(name), trigger, ex, nil)

	if ex.Failed() {
		resp.Success = false
		resp.Message = ex.Err.Error()
		resp.ErrorCode = string(apperrors.GetCode(ex.Err))
		return
	}
	resp.Success = true
	resp.Details = extractDetails(ex.resultPayload())
	resp.Details["durationMs"] = ex.Duration.Milliseconds()
	if ex.Outcome == OutcomeSkipped {
		resp.Message = fmt.Sprintf("Job %s skipped: %s", name, fallbackReason(ex.Result))
		return
	}
	resp.Message = fmt.Sprintf("Job %s completed successfully", name)
}

func (s *TriggerService) runGroup(ctx context.Context, run *model.JobRun, req TriggerRequest, resp *TriggerResponse) {
	name := resp.JobName
	start := time.Now()
	gr, err := s.orchestrator.Run(ctx, GroupRequest{
		Group:       name,
		TriggeredBy: req.TriggeredBy,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		ex := Execution{Outcome: OutcomeFailed, Err: err, Duration: time.Since(start)}
		s.recorder.Finish(ctx, run, string(name), req.TriggeredBy, ex, nil)
		resp.Message = err.Error()
		resp.ErrorCode = string(apperrors.GetCode(err))
		return
	}

	outcome := OutcomeSuccess
	if gr.NoOp {
		outcome = OutcomeSkipped
	}
	s.recorder.Finish(ctx, run, string(name), req.TriggeredBy, Execution{Outcome: outcome, Duration: time.Since(start)}, gr)

	resp.Success = gr.OK()
	resp.Message = gr.Summary()
	resp.Details = map[string]any{
		"total":      gr.Total,
		"successful": gr.Successful,
		"skipped":    gr.Skipped,
		"failed":     gr.Failed,
		"timedOut":   gr.TimedOut,
		"jobs":       gr.Jobs,
	}
	if gr.NoOp {
		resp.Details["noop"] = true
		resp.Details["reason"] = gr.Reason
	}
}

func (s *TriggerService) dryRun(ctx context.Context, def catalog.Definition, params catalog.Params, resp *TriggerResponse) *TriggerResponse {
	var (
		preview map[string]any
		err     error
	)
	if def.IsGroup() {
		preview, err = s.orchestrator.Preview(ctx, def.Name)
	} else {
		preview, err = s.handlers.Preview(ctx, def.Name, params)
	}
	if err != nil {
		return s.reject(ctx, resp, err)
	}
	resp.Success = true
	resp.Message = DryRunMessage
	resp.Details = preview
	return resp
}

// reject fills resp with a pipeline failure that happened before execution.
func (s *TriggerService) reject(ctx context.Context, resp *TriggerResponse, err error) *TriggerResponse {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	level := slog.LevelInfo
	if code == apperrors.ErrCodeInternal {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "trigger rejected", "job", resp.JobName, "code", code, "error", err)
	metrics.EmitTriggerRejected(s.metrics, string(resp.JobName), err)

	resp.Success = false
	resp.Message = err.Error()
	resp.ErrorCode = string(code)
	return resp
}

func fallbackReason(res *core.HandlerResult) string {
	if res == nil || strings.TrimSpace(res.Reason) == "" {
		return "precondition not met"
	}
	return res.Reason
}

var countExpressions = []struct {
	key  string
	expr string
}{
	{"recordsProcessed", "recordsProcessed || processed || count"},
	{"skipped", "skipped"},
	{"failed", "failed || errors"},
}

// extractDetails copies payload and adds the normalised record counts.
func extractDetails(payload map[string]any) map[string]any {
	details := make(map[string]any, len(payload)+len(countExpressions))
	maps.Copy(details, payload)

	doc := normalizeJSON(payload)
	for _, c := range countExpressions {
		details[c.key] = int64(0)
		v, err := jmespath.Search(c.expr, doc)
		if err != nil {
			continue
		}
		if n, ok := asCount(v); ok {
			details[c.key] = n
		}
	}
	return details
}

// normalizeJSON converts handler payloads into the generic shapes JMESPath understands.
func normalizeJSON(v map[string]any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func asCount(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < 0 {
			return 0, false
		}
		return int64(n), true
	case []any:
		return int64(len(n)), true
	}
	return 0, false
}
