// Package hrclient executes job bodies against the HR backend's internal jobs API.
//
// Every catalog job maps to POST {BaseURL}/{job-path}, where job-path is the lower-case,
// dash separated job name (DAILY_ATTENDANCE_ENTRY becomes daily-attendance-entry).
// Dry-run previews POST to {BaseURL}/{job-path}/preview.
package hrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
)

const maxErrorBody = 4096

// errorMessageExpr extracts a human readable message from common error envelopes.
const errorMessageExpr = "message || error.message || error || detail"

// Options configures the HR backend client.
type Options struct {
	Config config.HRBackendConfig
	Logger *slog.Logger
	// HTTPClient overrides the base transport client (tests).
	HTTPClient *http.Client
}

// Client calls the HR backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// request is the body sent to every job endpoint.
type request struct {
	Date     string `json:"date,omitempty"`
	Month    int    `json:"month,omitempty"`
	Year     int    `json:"year,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

// response is the envelope returned by job endpoints.
type response struct {
	Skipped bool           `json:"skipped"`
	Reason  string         `json:"reason"`
	Data    map[string]any `json:"data"`
}

// New builds a client. Authentication uses OAuth2 client credentials when configured,
// otherwise the static bearer token, otherwise none.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("hr backend base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid hr backend base url: %w", err)
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	hc := base
	switch {
	case cfg.UsesClientCredentials():
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		hc = cc.Client(ctx)
		hc.Timeout = base.Timeout
	case cfg.Token != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}))
		hc.Timeout = base.Timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    hc,
		logger:  logger.With("component", "hr_client"),
	}, nil
}

// JobPath returns the URL path segment for name.
func JobPath(name catalog.JobName) string {
	return strings.ToLower(strings.ReplaceAll(string(name), "_", "-"))
}

// Handlers returns one handler per non-group job in c.
func (c *Client) Handlers(cat *catalog.Catalog) map[catalog.JobName]core.JobHandler {
	out := make(map[catalog.JobName]core.JobHandler)
	for _, def := range cat.List() {
		if def.IsGroup() {
			continue
		}
		out[def.Name] = &jobHandler{client: c, name: def.Name}
	}
	return out
}

// Run executes name for params.
func (c *Client) Run(ctx context.Context, name catalog.JobName, params catalog.Params) (*core.HandlerResult, error) {
	var resp response
	if err := c.post(ctx, JobPath(name), params, &resp); err != nil {
		return nil, err
	}
	return &core.HandlerResult{Skipped: resp.Skipped, Reason: resp.Reason, Payload: resp.Data}, nil
}

// Preview asks the backend what name would do for params.
func (c *Client) Preview(ctx context.Context, name catalog.JobName, params catalog.Params) (map[string]any, error) {
	var resp response
	if err := c.post(ctx, JobPath(name)+"/preview", params, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = map[string]any{}
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, params catalog.Params, out *response) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build hr backend url: %w", err)
	}
	body, err := json.Marshal(request{Date: params.Date, Month: params.Month, Year: params.Year, TargetID: params.TargetID})
	if err != nil {
		return fmt.Errorf("encode hr backend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create hr backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hr backend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.DebugContext(ctx, "hr backend call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode hr backend response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the HR backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hr backend returned %d", e.Status)
	}
	return fmt.Sprintf("hr backend returned %d: %s", e.Status, e.Message)
}

func errorMessage(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return text
	}
	v, err := jmespath.Search(errorMessageExpr, doc)
	if err != nil {
		return text
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return text
}

type jobHandler struct {
	client *Client
	name   catalog.JobName
}

var (
	_ core.JobHandler   = (*jobHandler)(nil)
	_ core.JobPreviewer = (*jobHandler)(nil)
)

func (h *jobHandler) Run(ctx context.Context, params catalog.Params) (*core.HandlerResult, error) {
	return h.client.Run(ctx, h.name, params)
}

func (h *jobHandler) Preview(ctx context.Context, params catalog.Params) (map[string]any, error) {
	return h.client.Preview(ctx, h.name, params)
}
