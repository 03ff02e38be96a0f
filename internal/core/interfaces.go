package core

import (
	"context"
	"time"

	"github.com/target/hrm-scheduler/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not concrete implementations.

// JobRunRepository is the Job Log Store.
type JobRunRepository interface {
	// Start inserts a RUNNING run and returns it.
	Start(ctx context.Context, req model.StartRunRequest) (*model.JobRun, error)
	// Complete moves a RUNNING run to SUCCESS with result.
	// Returns false when the run was missing or already terminal.
	Complete(ctx context.Context, id string, result any) (bool, error)
	// Fail moves a RUNNING run to FAILED.
	// Returns false when the run was missing or already terminal.
	Fail(ctx context.Context, id string, failure RunFailure) (bool, error)
	// HasSuccess reports whether a SUCCESS run matches q.
	HasSuccess(ctx context.Context, q model.SuccessQuery) (bool, error)
	GetByID(ctx context.Context, id string) (*model.JobRun, error)
	List(ctx context.Context, opts model.RunListOptions) (*model.RunPage, error)
	Stats(ctx context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error)
}

// RunReaperRepository performs retention maintenance on the Job Log Store.
// Implementations process at most batchSize rows per call and return the number affected.
type RunReaperRepository interface {
	// DeleteOlderThan removes runs started before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	// FailStaleRunning marks runs still RUNNING after maxAge as FAILED.
	FailStaleRunning(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// RunFailure carries the failure fields of a run.
type RunFailure struct {
	Message string
	Stack   string
}
