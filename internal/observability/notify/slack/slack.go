// Package slack delivers run failure notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/hrm-scheduler/internal/observability/notify"
)

// Config captures the Slack webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// RunURLPrefix, when set, links the run id to the admin run detail page.
	RunURLPrefix string
}

// Client posts failure messages to Slack.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	runURLPrefix string
	client       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
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
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     fallback(strings.TrimSpace(cfg.Username), "hrm-scheduler"),
		retryLimit:   max(cfg.RetryLimit, 0),
		runURLPrefix: strings.TrimSpace(cfg.RunURLPrefix),
		client:       hc,
	}, nil
}

// SendRunFailure posts a formatted message, retrying with linear backoff.
func (c *Client) SendRunFailure(ctx context.Context, payload notify.RunFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		if lastErr = c.post(ctx, body); lastErr == nil {
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

func (c *Client) formatMessage(p notify.RunFailurePayload) map[string]any {
	occurred := p.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Job run failed*")
	if p.JobName != "" {
		text.WriteString(" `" + p.JobName + "`")
	}
	if p.JobType != "" {
		text.WriteString(" (" + p.JobType + ")")
	}
	text.WriteByte('\n')

	fields := []struct{ label, value string }{
		{"Severity", fallback(p.Severity, notify.SeverityCritical)},
		{"Run", c.runValue(p.RunID)},
		{"Period", p.PeriodKey},
		{"Triggered by", p.TriggeredBy},
		{"Actor", p.CreatedBy},
		{"Error class", p.ErrorClass},
		{"Error", escape(p.Error)},
	}
	for _, f := range fields {
		writeField(&text, f.label, f.value)
	}
	if len(p.Metadata) > 0 {
		text.WriteString("• Metadata:\n")
		keys := make([]string, 0, len(p.Metadata))
		for k := range p.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			text.WriteString("    • " + k + ": " + escape(p.Metadata[k]) + "\n")
		}
	}
	text.WriteString("• Timestamp: " + occurred.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) runValue(runID string) string {
	id := escape(strings.TrimSpace(runID))
	if id == "" || c.runURLPrefix == "" {
		return id
	}
	u, err := url.Parse(c.runURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return id
	}
	link, err := url.JoinPath(u.String(), strings.TrimSpace(runID))
	if err != nil {
		return id
	}
	return fmt.Sprintf("<%s|%s>", link, id)
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("slack webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain slack response body: %w", err)
	}
	return nil
}

func writeField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• " + label + ": " + value + "\n")
}

func escape(v string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(v)
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
