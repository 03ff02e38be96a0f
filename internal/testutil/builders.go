// Package testutil provides testing utilities and helpers for the job orchestration engine.
package testutil

import (
	"encoding/json"
	"time"

	"github.com/target/hrm-scheduler/internal/domain/model"
)

// RunBuilder provides a fluent interface for building JobRun records for testing.
type RunBuilder struct {
	run model.JobRun
}

// NewRun creates a RunBuilder for a scheduled run of name that is still RUNNING at TestTime.
func NewRun(name string) *RunBuilder {
	return &RunBuilder{
		run: model.JobRun{
			JobName:     name,
			Status:      model.RunStatusRunning,
			StartedAt:   TestTime(),
			TriggeredBy: model.TriggeredBySystem,
			Params:      json.RawMessage(`{}`),
		},
	}
}

// Manual marks the run as an admin trigger by actor, prefixing the name with MANUAL_.
func (b *RunBuilder) Manual(actor string) *RunBuilder {
	b.run.JobName = "MANUAL_" + b.run.JobName
	b.run.TriggeredBy = model.TriggeredByManual
	b.run.CreatedBy = StringPtr(actor)
	return b
}

// StartedAt sets the start time.
func (b *RunBuilder) StartedAt(t time.Time) *RunBuilder {
	b.run.StartedAt = t
	return b
}

// WithJobType sets the handler type recorded on the run.
func (b *RunBuilder) WithJobType(jobType string) *RunBuilder {
	b.run.JobType = jobType
	return b
}

// WithPeriodKey sets the business period the run covers.
func (b *RunBuilder) WithPeriodKey(key string) *RunBuilder {
	b.run.PeriodKey = key
	return b
}

// WithParams sets the raw trigger parameters.
func (b *RunBuilder) WithParams(params string) *RunBuilder {
	b.run.Params = json.RawMessage(params)
	return b
}

// Succeeded completes the run after d with result.
func (b *RunBuilder) Succeeded(d time.Duration, result string) *RunBuilder {
	b.finish(model.RunStatusSuccess, d)
	b.run.Result = json.RawMessage(result)
	return b
}

// Failed fails the run after d with msg.
func (b *RunBuilder) Failed(d time.Duration, msg string) *RunBuilder {
	b.finish(model.RunStatusFailed, d)
	b.run.ErrorMessage = StringPtr(msg)
	return b
}

func (b *RunBuilder) finish(status model.RunStatus, d time.Duration) {
	completed := b.run.StartedAt.Add(d)
	ms := d.Milliseconds()
	b.run.Status = status
	b.run.CompletedAt = &completed
	b.run.DurationMs = &ms
}

// Build returns a copy of the constructed run.
func (b *RunBuilder) Build() model.JobRun {
	return b.run
}

// HistoryBuilder collects runs and seeds them into a MemoryRunRepo in order.
type HistoryBuilder struct {
	runs []model.JobRun
}

// NewHistory creates an empty HistoryBuilder.
func NewHistory() *HistoryBuilder {
	return &HistoryBuilder{}
}

// Add appends built runs.
func (h *HistoryBuilder) Add(builders ...*RunBuilder) *HistoryBuilder {
	for _, b := range builders {
		h.runs = append(h.runs, b.Build())
	}
	return h
}

// AddSuccess appends a scheduled SUCCESS run of name started at t.
func (h *HistoryBuilder) AddSuccess(name string, t time.Time) *HistoryBuilder {
	return h.Add(NewRun(name).StartedAt(t).Succeeded(time.Second, `{"ok":true}`))
}

// AddFailure appends a scheduled FAILED run of name started at t.
func (h *HistoryBuilder) AddFailure(name string, t time.Time, msg string) *HistoryBuilder {
	return h.Add(NewRun(name).StartedAt(t).Failed(time.Second, msg))
}

// AddRunning appends a RUNNING run of name started at t.
func (h *HistoryBuilder) AddRunning(name string, t time.Time) *HistoryBuilder {
	return h.Add(NewRun(name).StartedAt(t))
}

// Runs returns the collected runs.
func (h *HistoryBuilder) Runs() []model.JobRun {
	return h.runs
}

// Seed inserts every collected run into repo and returns the stored records.
func (h *HistoryBuilder) Seed(repo *MemoryRunRepo) []*model.JobRun {
	out := make([]*model.JobRun, 0, len(h.runs))
	for _, r := range h.runs {
		out = append(out, repo.Seed(r))
	}
	return out
}
