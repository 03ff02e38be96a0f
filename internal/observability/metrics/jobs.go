// Package metrics emits the standard job run metrics over a statsd.Sink.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/hrm-scheduler/internal/observability/errors"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultSkipped  = "skipped"
	ResultTimedOut = "timed_out"
	ResultRejected = "rejected"
)

// RunMetric captures one job run outcome.
type RunMetric struct {
	JobName  string
	Trigger  string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitRunOutcome emits the job.transition counter and, when a duration is known, job.duration.
func EmitRunOutcome(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job":     in.JobName,
		"trigger": in.Trigger,
		"result":  in.Result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitTriggerRejected counts a trigger that stopped before running, tagged by error class.
func EmitTriggerRejected(sink statsd.Sink, jobName string, err error) {
	if sink == nil {
		return
	}
	sink.Count("job.trigger_rejected", 1, map[string]string{
		"job":         jobName,
		"error_class": obserrors.Classify(err),
	})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	maps.Copy(out, src)
	return out
}
