// Package pagerduty raises PagerDuty Events API v2 incidents for failed job runs.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/hrm-scheduler/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes trigger events.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		routingKey: key,
		source:     fallback(cfg.Source, "hrm-scheduler"),
		component:  fallback(cfg.Component, "job-orchestrator"),
		endpoint:   fallback(cfg.Endpoint, APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendRunFailure submits a trigger event deduplicated per job and period.
func (c *Client) SendRunFailure(ctx context.Context, payload notify.RunFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.submit(ctx, body); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(time.Duration(attempt+1) * 200 * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// dedupKey groups repeated failures of the same job and period into one incident.
func dedupKey(p notify.RunFailurePayload) string {
	name := strings.TrimPrefix(p.JobName, "MANUAL_")
	return strings.Trim(name+":"+p.PeriodKey, ":")
}

func (c *Client) buildEvent(p notify.RunFailurePayload) map[string]any {
	occurredAt := p.OccurredAt.UTC()
	if p.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"run_id":       p.RunID,
		"job_name":     p.JobName,
		"job_type":     p.JobType,
		"triggered_by": p.TriggeredBy,
		"period":       p.PeriodKey,
		"error":        p.Error,
		"error_class":  p.ErrorClass,
	}
	for k, v := range p.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey(p),
		"payload": map[string]any{
			"summary":        fmt.Sprintf("Job %s failed", fallback(p.JobName, "unknown")),
			"severity":       fallback(strings.ToLower(p.Severity), notify.SeverityCritical),
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func (c *Client) submit(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pagerduty api %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain pagerduty response body: %w", err)
	}
	return nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}
