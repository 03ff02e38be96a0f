package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// DefaultJobTimeout bounds a single handler invocation.
const DefaultJobTimeout = 5 * time.Minute

// Outcome classifies how a handler invocation ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// Execution is the classified result of one handler invocation.
type Execution struct {
	Outcome  Outcome
	Result   *core.HandlerResult
	Err      error
	Stack    string
	Duration time.Duration
}

// Failed reports whether the execution ended in failure or timeout.
func (e Execution) Failed() bool {
	return e.Outcome == OutcomeFailed || e.Outcome == OutcomeTimedOut
}

// resultPayload is what gets persisted as the JobRun result of a non-failed execution.
func (e Execution) resultPayload() map[string]any {
	out := map[string]any{}
	if e.Result != nil {
		maps.Copy(out, e.Result.Payload)
	}
	if e.Outcome == OutcomeSkipped {
		out["noop"] = true
		if e.Result != nil && e.Result.Reason != "" {
			out["reason"] = e.Result.Reason
		}
	}
	return out
}

// executor races handlers against a timeout. A handler that outlives its timeout is abandoned:
// its context is cancelled and whatever it eventually returns is discarded.
type executor struct {
	timeout time.Duration
	logger  *slog.Logger
}

func newExecutor(timeout time.Duration, logger *slog.Logger) executor {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return executor{timeout: timeout, logger: logger}
}

type handlerReply struct {
	res   *core.HandlerResult
	err   error
	stack string
}

func (e executor) execute(ctx context.Context, name catalog.JobName, h core.JobHandler, params catalog.Params) Execution {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan handlerReply, 1)
	var abandoned atomic.Bool
	go func() {
		var reply handlerReply
		defer func() {
			if p := recover(); p != nil {
				reply = handlerReply{err: fmt.Errorf("panic: %v", p), stack: string(debug.Stack())}
			}
			if abandoned.Load() {
				e.logger.Warn("discarding late result of abandoned job",
					"job", name,
					"elapsed", time.Since(start),
					"error", reply.err,
				)
			}
			done <- reply
		}()
		reply.res, reply.err = h.Run(runCtx, params)
	}()

	select {
	case reply := <-done:
		ex := e.classify(runCtx, name, reply)
		ex.Duration = time.Since(start)
		return ex
	case <-runCtx.Done():
		abandoned.Store(true)
		ex := e.classify(runCtx, name, handlerReply{err: runCtx.Err()})
		ex.Duration = time.Since(start)
		if ex.Outcome == OutcomeTimedOut {
			e.logger.WarnContext(ctx, "job timed out; handler abandoned", "job", name, "timeout", e.timeout)
		}
		return ex
	}
}

func (e executor) classify(runCtx context.Context, name catalog.JobName, reply handlerReply) Execution {
	if reply.err != nil {
		if errors.Is(reply.err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Execution{
				Outcome: OutcomeTimedOut,
				Err:     apperrors.Timeoutf("job %s exceeded timeout of %s", name, e.timeout),
			}
		}
		return Execution{
			Outcome: OutcomeFailed,
			Err:     apperrors.HandlerExecutionFailed(string(name), reply.err),
			Stack:   reply.stack,
		}
	}
	res := reply.res
	if res == nil {
		res = &core.HandlerResult{}
	}
	if res.Skipped {
		return Execution{Outcome: OutcomeSkipped, Result: res}
	}
	return Execution{Outcome: OutcomeSuccess, Result: res}
}
