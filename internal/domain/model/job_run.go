// Package model defines the persisted data types of the job orchestration engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a JobRun.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RunStatus string

const (
	// RunStatusRunning is the initial state of every run.
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusSuccess is terminal; Result is populated.
	RunStatusSuccess RunStatus = "SUCCESS"
	// RunStatusFailed is terminal; ErrorMessage is populated.
	RunStatusFailed RunStatus = "FAILED"
)

// Valid returns true if the RunStatus is valid.
func (s RunStatus) Valid() bool {
	return s == RunStatusRunning || s == RunStatusSuccess || s == RunStatusFailed
}

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// UnmarshalText accepts case-insensitive status names.
func (s *RunStatus) UnmarshalText(text []byte) error {
	v := RunStatus(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid run status: %q", string(text))
	}
	*s = v
	return nil
}

// TriggerSource records what started a run.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type TriggerSource string

const (
	TriggeredBySystem TriggerSource = "SYSTEM"
	TriggeredByManual TriggerSource = "MANUAL"
)

// Valid returns true if the TriggerSource is valid.
func (t TriggerSource) Valid() bool {
	return t == TriggeredBySystem || t == TriggeredByManual
}

// UnmarshalText accepts case-insensitive trigger sources.
func (t *TriggerSource) UnmarshalText(text []byte) error {
	v := TriggerSource(strings.ToUpper(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid trigger source: %q", string(text))
	}
	*t = v
	return nil
}

// JobRun is one persisted execution attempt of a catalog job.
type JobRun struct {
	ID           string          `json:"id"                     db:"id"`
	JobName      string          `json:"jobName"                db:"job_name"`
	JobType      string          `json:"jobType"                db:"job_type"`
	Status       RunStatus       `json:"status"                 db:"status"`
	StartedAt    time.Time       `json:"startedAt"              db:"started_at"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"  db:"completed_at"`
	DurationMs   *int64          `json:"durationMs,omitempty"   db:"duration_ms"`
	Result       json.RawMessage `json:"result,omitempty"       db:"result"`
	ErrorMessage *string         `json:"errorMessage,omitempty" db:"error_message"`
	ErrorStack   *string         `json:"errorStack,omitempty"   db:"error_stack"`
	TriggeredBy  TriggerSource   `json:"triggeredBy"            db:"triggered_by"`
	CreatedBy    *string         `json:"createdBy,omitempty"    db:"created_by"`
	Params       json.RawMessage `json:"params,omitempty"       db:"params"`
	PeriodKey    string          `json:"periodKey,omitempty"    db:"period_key"`
	CreatedAt    time.Time       `json:"createdAt"              db:"created_at"`
}

// StartRunRequest carries the fields recorded when a run begins.
type StartRunRequest struct {
	JobName     string
	JobType     string
	TriggeredBy TriggerSource
	CreatedBy   string
	Params      any
	PeriodKey   string
}

// Validate checks the request before insertion.
func (r *StartRunRequest) Validate() error {
	if strings.TrimSpace(r.JobName) == "" {
		return errors.New("job name is required")
	}
	if !r.TriggeredBy.Valid() {
		return fmt.Errorf("invalid triggered_by: %q", r.TriggeredBy)
	}
	return nil
}

// SuccessQuery asks whether any of Names succeeded for a period. A run recorded with a period
// key counts only when it equals PeriodKey; a run without one counts when it started inside
// [From, To).
type SuccessQuery struct {
	Names     []string
	From      time.Time
	To        time.Time
	PeriodKey string
}

// RunListOptions filters and paginates the run history.
type RunListOptions struct {
	JobName     string
	Status      RunStatus
	TriggeredBy TriggerSource
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
}

const (
	defaultRunPageSize = 20
	maxRunPageSize     = 200
)

// Normalize clamps pagination to sane bounds.
func (o *RunListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = defaultRunPageSize
	}
	if o.Limit > maxRunPageSize {
		o.Limit = maxRunPageSize
	}
}

// Offset returns the row offset for the current page.
func (o RunListOptions) Offset() int {
	if o.Page < 1 {
		return 0
	}
	return (o.Page - 1) * o.Limit
}

// RunPage is one page of run history.
type RunPage struct {
	Data  []*JobRun `json:"data"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// RunStatsOptions bounds the statistics query by run start time.
type RunStatsOptions struct {
	From *time.Time
	To   *time.Time
}

// JobRunStats aggregates runs per job name.
type JobRunStats struct {
	JobName       string     `json:"jobName"       db:"job_name"`
	Total         int        `json:"total"         db:"total"`
	Success       int        `json:"success"       db:"success"`
	Failed        int        `json:"failed"        db:"failed"`
	Running       int        `json:"running"       db:"running"`
	AvgDurationMs float64    `json:"avgDurationMs" db:"avg_duration_ms"`
	LastRunAt     *time.Time `json:"lastRunAt"     db:"last_run_at"`
}
