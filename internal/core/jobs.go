// Package core defines the ports of the job orchestration engine: repository interfaces,
// the job handler contract and cache access.
package core

import (
	"context"

	"github.com/target/hrm-scheduler/internal/domain/catalog"
)

// HandlerResult is what a job handler reports on normal return.
// Skipped marks a no-op due to an unmet precondition; it is not a failure.
type HandlerResult struct {
	Skipped bool
	Reason  string
	Payload map[string]any
}

// JobHandler executes the business work of one catalog job.
type JobHandler interface {
	Run(ctx context.Context, params catalog.Params) (*HandlerResult, error)
}

// JobPreviewer describes what a handler would do without mutating state.
type JobPreviewer interface {
	Preview(ctx context.Context, params catalog.Params) (map[string]any, error)
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, params catalog.Params) (*HandlerResult, error)

// Run implements JobHandler.
func (f JobHandlerFunc) Run(ctx context.Context, params catalog.Params) (*HandlerResult, error) {
	return f(ctx, params)
}
