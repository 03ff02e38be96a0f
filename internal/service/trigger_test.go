package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/testutil"
)

// seedConfigActivation records the nightly activation for 2025-01-09 IST.
func seedConfigActivation(t *testing.T, e *engine) {
	t.Helper()
	seedSuccess(e.repo, "CONFIG_ACTIVATION", "", time.Date(2025, 1, 9, 0, 0, 5, 0, kolkata(t)))
}

func attendanceRequest() TriggerRequest {
	return TriggerRequest{JobName: "DAILY_ATTENDANCE_ENTRY", Date: "2025-01-09", CreatedBy: "admin-1"}
}

func TestTrigger_ExampleAttendanceEntry(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	ctx := context.Background()

	resp, err := e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "Job DAILY_ATTENDANCE_ENTRY completed successfully", resp.Message)
	assert.Equal(t, catalog.DailyAttendanceEntry, resp.JobName)
	assert.Empty(t, resp.ErrorCode)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, int64(1), resp.Details["recordsProcessed"])
	assert.Equal(t, int64(0), resp.Details["skipped"])
	assert.Equal(t, int64(0), resp.Details["failed"])
	assert.Contains(t, resp.Details, "durationMs")

	run, err := e.repo.GetByID(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "MANUAL_DAILY_ATTENDANCE_ENTRY", run.JobName)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, model.TriggeredByManual, run.TriggeredBy)
	assert.Equal(t, "2025-01-09", run.PeriodKey)
	assert.JSONEq(t, `{"date":"2025-01-09"}`, string(run.Params))
	require.NotNil(t, run.CreatedBy)
	assert.Equal(t, "admin-1", *run.CreatedBy)

	again, err := e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, apperrors.AlreadyProcessedMessage, again.Message)
	assert.Equal(t, string(apperrors.ErrCodeAlreadyProcessed), again.ErrorCode)
	assert.Len(t, e.repo.All(), 2)
	assert.Equal(t, []string{"DAILY_ATTENDANCE_ENTRY"}, e.calls.list())
}

func TestTrigger_ForceRunBypassesIdempotency(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	ctx := context.Background()

	_, err := e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)

	req := attendanceRequest()
	req.ForceRun = true
	resp, err := e.trigger.Trigger(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	var count int
	for _, r := range e.repo.All() {
		if r.JobName == "MANUAL_DAILY_ATTENDANCE_ENTRY" && r.Status == model.RunStatusSuccess {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestTrigger_FutureDateRejectedWithoutRecording(t *testing.T) {
	e := newEngine(t)

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "DAILY_ATTENDANCE_ENTRY", Date: "2025-01-11"})
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsFutureDateNotAllowed(err))
	assert.Empty(t, e.repo.All())
	assert.Empty(t, e.calls.list())
	assert.Len(t, e.metrics.CountsNamed("job.trigger_rejected"), 1)
}

func TestTrigger_ParameterErrors(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   TriggerRequest
		field string
	}{
		{name: "unknown job", req: TriggerRequest{JobName: "PAYDAY"}, field: "jobName"},
		{name: "missing job", req: TriggerRequest{}, field: "jobName"},
		{name: "missing date", req: TriggerRequest{JobName: "DAILY_ATTENDANCE_ENTRY"}, field: "date"},
		{name: "missing month", req: TriggerRequest{JobName: "LEAVE_ACCRUAL", Year: 2024}, field: "month"},
		{name: "missing year", req: TriggerRequest{JobName: "LEAVE_BALANCE_RESET"}, field: "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.trigger.Trigger(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsParametersInvalid(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
	assert.Empty(t, e.repo.All())
}

func TestTrigger_JobInProgress(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	key := catalog.Params{Date: "2025-01-09"}.GuardKey(catalog.DailyAttendanceEntry)
	require.True(t, e.guard.TryAcquire(key))

	resp, err := e.trigger.Trigger(context.Background(), attendanceRequest())
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeJobInProgress), resp.ErrorCode)
	assert.Len(t, e.repo.All(), 1)

	e.guard.Release(key)
	resp, err = e.trigger.Trigger(context.Background(), attendanceRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestTrigger_ConcurrentSameJobAndPeriod(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	blocking := core.JobHandlerFunc(func(context.Context, catalog.Params) (*core.HandlerResult, error) {
		close(entered)
		<-release
		return &core.HandlerResult{}, nil
	})
	e := newEngine(t, withHandler(catalog.DailyAttendanceEntry, blocking))
	seedConfigActivation(t, e)
	ctx := context.Background()

	first := make(chan *TriggerResponse, 1)
	go func() {
		resp, _ := e.trigger.Trigger(ctx, attendanceRequest())
		first <- resp
	}()
	<-entered
	assert.Equal(t, []string{"DAILY_ATTENDANCE_ENTRY:date=2025-01-09"}, heldKeys(e.trigger.Running()))

	second, err := e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)
	assert.Equal(t, string(apperrors.ErrCodeJobInProgress), second.ErrorCode)

	close(release)
	resp := <-first
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Empty(t, e.trigger.Running())
}

func TestTrigger_DependencyNotMetThenSatisfied(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	ctx := context.Background()
	approval := TriggerRequest{JobName: "ATTENDANCE_AUTO_APPROVAL", Date: "2025-01-09"}

	resp, err := e.trigger.Trigger(ctx, approval)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeDependencyNotMet), resp.ErrorCode)
	assert.Contains(t, resp.Message, "DAILY_ATTENDANCE_ENTRY")
	assert.Len(t, e.repo.All(), 1)

	_, err = e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)

	resp, err = e.trigger.Trigger(ctx, approval)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
}

func TestTrigger_BackfillDoesNotCoverTheDayItRan(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	seedSuccess(e.repo, "CONFIG_ACTIVATION", "", time.Date(2025, 1, 10, 0, 0, 5, 0, kolkata(t)))
	ctx := context.Background()

	// Backfill for the 9th runs on the 10th.
	resp, err := e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)

	approval := TriggerRequest{JobName: "ATTENDANCE_AUTO_APPROVAL", Date: "2025-01-10"}
	resp, err = e.trigger.Trigger(ctx, approval)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeDependencyNotMet), resp.ErrorCode)

	today := TriggerRequest{JobName: "DAILY_ATTENDANCE_ENTRY", Date: "2025-01-10"}
	resp, err = e.trigger.Trigger(ctx, today)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	assert.Empty(t, resp.ErrorCode)

	resp, err = e.trigger.Trigger(ctx, approval)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	assert.Equal(t, []string{"DAILY_ATTENDANCE_ENTRY", "DAILY_ATTENDANCE_ENTRY", "ATTENDANCE_AUTO_APPROVAL"}, e.calls.list())
}

func TestTrigger_SkipDependencyCheck(t *testing.T) {
	e := newEngine(t)

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{
		JobName:             "ATTENDANCE_AUTO_APPROVAL",
		Date:                "2025-01-09",
		SkipDependencyCheck: true,
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"ATTENDANCE_AUTO_APPROVAL"}, e.calls.list())
}

func TestTrigger_DryRunWritesNothing(t *testing.T) {
	e := newEngine(t)
	seedConfigActivation(t, e)
	ctx := context.Background()

	req := attendanceRequest()
	req.DryRun = true
	resp, err := e.trigger.Trigger(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.True(t, resp.DryRun)
	assert.Equal(t, DryRunMessage, resp.Message)
	assert.Empty(t, resp.RunID)
	assert.Equal(t, "2025-01-09", resp.Details["period"])
	assert.Len(t, e.repo.All(), 1)
	assert.Empty(t, e.calls.list())

	resp, err = e.trigger.Trigger(ctx, attendanceRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestTrigger_DryRunStillChecksDependencies(t *testing.T) {
	e := newEngine(t)

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "ATTENDANCE_AUTO_APPROVAL", Date: "2025-01-09", DryRun: true})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeDependencyNotMet), resp.ErrorCode)
}

func TestTrigger_HandlerFailure(t *testing.T) {
	e := newEngine(t, withHandler(catalog.LeaveAccrual, stubHandler(nil, "", nil, errors.New("policy missing"))))

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "LEAVE_ACCRUAL", Month: 12, Year: 2024})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeHandlerExecutionFailed), resp.ErrorCode)
	assert.Equal(t, "job LEAVE_ACCRUAL failed: policy missing", resp.Message)

	run, err := e.repo.GetByID(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "2024-12", run.PeriodKey)

	// A failed run does not block a retry.
	resp, err = e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "LEAVE_ACCRUAL", Month: 12, Year: 2024})
	require.NoError(t, err)
	assert.Equal(t, string(apperrors.ErrCodeHandlerExecutionFailed), resp.ErrorCode)
}

func TestTrigger_HandlerTimeout(t *testing.T) {
	blocking := core.JobHandlerFunc(func(ctx context.Context, _ catalog.Params) (*core.HandlerResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newEngine(t, withTimeout(20*time.Millisecond), withHandler(catalog.ConfigActivation, blocking))

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "CONFIG_ACTIVATION"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeTimeout), resp.ErrorCode)
	assert.Equal(t, "timed_out", e.metrics.CountsNamed("job.transition")[0].Tags["result"])
}

func TestTrigger_SkippedHandler(t *testing.T) {
	e := newEngine(t, withHandler(catalog.ConfigActivation, stubHandler(nil, "", &core.HandlerResult{Skipped: true, Reason: "no pending configuration"}, nil)))

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "config_activation"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Job CONFIG_ACTIVATION skipped: no pending configuration", resp.Message)
	assert.Equal(t, true, resp.Details["noop"])

	run, err := e.repo.GetByID(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.JSONEq(t, `{"noop":true,"reason":"no pending configuration"}`, string(run.Result))
}

func TestTrigger_ManualPrefixAndSystemSource(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	resp, err := e.trigger.Trigger(ctx, TriggerRequest{JobName: "MANUAL_DOCUMENT_EXPIRY_ALERTS"})
	require.NoError(t, err)
	assert.Equal(t, catalog.DocumentExpiryAlerts, resp.JobName)

	resp, err = e.trigger.Trigger(ctx, TriggerRequest{JobName: "ASSET_WARRANTY_ALERTS", TriggeredBy: model.TriggeredBySystem, CreatedBy: "scheduler"})
	require.NoError(t, err)
	run, err := e.repo.GetByID(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "ASSET_WARRANTY_ALERTS", run.JobName)
	assert.Equal(t, model.TriggeredBySystem, run.TriggeredBy)
}

func TestTrigger_GroupStoresAggregate(t *testing.T) {
	e := newEngine(t, withHandler(catalog.SalaryStructureActivation, stubHandler(nil, "", nil, errors.New("bad structure"))))
	ctx := context.Background()

	resp, err := e.trigger.Trigger(ctx, TriggerRequest{JobName: "MIDNIGHT_JOBS", CreatedBy: "admin-1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "MIDNIGHT_JOBS finished: 3 successful, 0 skipped, 1 failed, 0 timed out", resp.Message)
	assert.Equal(t, 4, resp.Details["total"])
	assert.Equal(t, 1, resp.Details["failed"])

	runs := e.repo.All()
	require.Len(t, runs, 5)
	group := runs[0]
	assert.Equal(t, "MANUAL_MIDNIGHT_JOBS", group.JobName)
	assert.Equal(t, resp.RunID, group.ID)
	assert.Equal(t, model.RunStatusSuccess, group.Status)

	var stored GroupResult
	require.NoError(t, json.Unmarshal(group.Result, &stored))
	assert.Equal(t, 3, stored.Successful)
	assert.Equal(t, 1, stored.Failed)
	require.Len(t, stored.Jobs, 4)
	assert.Equal(t, OutcomeFailed, stored.Jobs[1].Status)
	assert.Equal(t, "MANUAL_SALARY_STRUCTURE_ACTIVATION", runs[2].JobName)
	assert.Equal(t, model.RunStatusFailed, runs[2].Status)
}

func TestTrigger_GroupCalendarNoop(t *testing.T) {
	e := newEngine(t)

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "YEARLY_JOBS"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, true, resp.Details["noop"])
	assert.Equal(t, "runs only on January 1st", resp.Details["reason"])

	runs := e.repo.All()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusSuccess, runs[0].Status)
	assert.Contains(t, string(runs[0].Result), `"noop":true`)
}

func TestTrigger_GroupDryRun(t *testing.T) {
	e := newEngine(t)

	resp, err := e.trigger.Trigger(context.Background(), TriggerRequest{JobName: "EXPIRY_ALERTS", DryRun: true})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "EXPIRY_ALERTS", resp.Details["group"])
	assert.Empty(t, e.repo.All())
	assert.Empty(t, e.calls.list())
}

type failingStartRepo struct {
	*testutil.MemoryRunRepo
}

func (failingStartRepo) Start(context.Context, model.StartRunRequest) (*model.JobRun, error) {
	return nil, errors.New("connection refused")
}

func TestTrigger_StartFailureDoesNotExecute(t *testing.T) {
	e := newEngine(t)
	repo := failingStartRepo{e.repo}
	recorder, err := NewRunRecorder(RunRecorderOptions{Runs: repo, Clock: e.clock})
	require.NoError(t, err)
	checkOpts := PeriodCheckerOptions{Catalog: catalog.Default(), Runs: repo, Clock: e.clock}
	deps, err := NewDependencyValidator(checkOpts)
	require.NoError(t, err)
	idem, err := NewIdempotencyChecker(checkOpts)
	require.NoError(t, err)
	svc, err := NewTriggerService(TriggerServiceOptions{
		Catalog:      catalog.Default(),
		Handlers:     e.registry,
		Orchestrator: e.orchestrator,
		Guard:        e.guard,
		Dependencies: deps,
		Idempotency:  idem,
		Recorder:     recorder,
		Clock:        e.clock,
	})
	require.NoError(t, err)

	resp, err := svc.Trigger(context.Background(), TriggerRequest{JobName: "CONFIG_ACTIVATION"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, string(apperrors.ErrCodeInternal), resp.ErrorCode)
	assert.Contains(t, resp.Message, "record job start")
	assert.Empty(t, e.calls.list())
	assert.Empty(t, svc.Running())
}

func TestTrigger_CallerCancellationDoesNotAbortJob(t *testing.T) {
	e := newEngine(t, withHandler(catalog.ConfigActivation, core.JobHandlerFunc(
		func(ctx context.Context, _ catalog.Params) (*core.HandlerResult, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &core.HandlerResult{}, nil
		})))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := e.trigger.Trigger(ctx, TriggerRequest{JobName: "CONFIG_ACTIVATION"})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
}

func TestNewTriggerService_RequiresOrchestratorForGroups(t *testing.T) {
	e := newEngine(t)
	_, err := NewTriggerService(TriggerServiceOptions{
		Catalog:      catalog.Default(),
		Handlers:     e.registry,
		Guard:        e.guard,
		Dependencies: &DependencyValidator{},
		Idempotency:  &IdempotencyChecker{},
		Recorder:     e.recorder,
	})
	assert.Error(t, err)
}

func TestExtractDetails(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    map[string]int64
	}{
		{
			name:    "empty payload",
			payload: nil,
			want:    map[string]int64{"recordsProcessed": 0, "skipped": 0, "failed": 0},
		},
		{
			name:    "recordsProcessed wins over aliases",
			payload: map[string]any{"recordsProcessed": 7, "processed": 3},
			want:    map[string]int64{"recordsProcessed": 7, "skipped": 0, "failed": 0},
		},
		{
			name:    "count and error list",
			payload: map[string]any{"count": 5, "skipped": 2, "errors": []string{"e1", "e2"}},
			want:    map[string]int64{"recordsProcessed": 5, "skipped": 2, "failed": 2},
		},
		{
			name:    "fractional values are ignored",
			payload: map[string]any{"processed": 2.5, "failed": -1},
			want:    map[string]int64{"recordsProcessed": 0, "skipped": 0, "failed": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractDetails(tt.payload)
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}

	got := extractDetails(map[string]any{"employees": []string{"E1"}})
	assert.Equal(t, []string{"E1"}, got["employees"])
}
