// Package notify defines the run failure event delivered to alerting sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// RunFailurePayload describes a job run that ended FAILED.
type RunFailurePayload struct {
	RunID       string
	JobName     string
	JobType     string
	TriggeredBy string
	CreatedBy   string
	PeriodKey   string
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination for run failure notifications.
type Sink interface {
	SendRunFailure(ctx context.Context, payload RunFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, payload RunFailurePayload) error

// SendRunFailure implements Sink.
func (f SinkFunc) SendRunFailure(ctx context.Context, payload RunFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
