package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/bootstrap"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	"github.com/target/hrm-scheduler/internal/service"
	"golang.org/x/oauth2"
)

type listJobsOptions struct {
	JSON bool
}

func runListJobs(_ *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-jobs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	opts := listJobsOptions{}
	fs.BoolVar(&opts.JSON, "json", false, "Print the catalog as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJobs(os.Stdout, catalog.Default(), opts)
}

func printJobs(w io.Writer, cat *catalog.Catalog, opts listJobsOptions) error {
	defs := cat.List()
	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "NAME\tTYPE\tPARAMS\tDEPENDS ON\tSCHEDULE"); err != nil {
		return err
	}
	for _, def := range defs {
		deps := make([]string, 0, len(def.Dependencies))
		for _, dep := range def.Dependencies {
			deps = append(deps, string(dep))
		}
		name := string(def.Name)
		if def.IsGroup() {
			name += " (group)"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\n",
			name, def.Type, def.Params, orDash(strings.Join(deps, ",")), orDash(def.Schedule)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// adminTokenEnv supplies the admin API bearer token when -token is not given.
const adminTokenEnv = "HRM_ADMIN_TOKEN"

const (
	defaultTriggerTimeout = 30 * time.Minute
	maxTriggerReplyBytes  = 1 << 20
)

type triggerOptions struct {
	Request service.TriggerRequest
	Server  string
	Token   string
	Timeout time.Duration
	Local   bool
}

func parseTriggerFlags(args []string, defaultServer string) (triggerOptions, error) {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts  triggerOptions
		actor string
	)
	req := &opts.Request
	fs.StringVar(&req.JobName, "job", "", "Job name (required)")
	fs.StringVar(&req.Date, "date", "", "Target date (YYYY-MM-DD)")
	fs.IntVar(&req.Month, "month", 0, "Target month (1-12)")
	fs.IntVar(&req.Year, "year", 0, "Target year")
	fs.StringVar(&req.TargetID, "target", "", "Restrict the job to one entity id")
	fs.BoolVar(&req.DryRun, "dry-run", false, "Preview without side effects")
	fs.BoolVar(&req.SkipDependencyCheck, "skip-deps", false, "Skip the dependency check")
	fs.BoolVar(&req.ForceRun, "force", false, "Run even if the period was already processed")
	fs.StringVar(&opts.Server, "server", defaultServer, "Scheduler admin API base URL")
	fs.StringVar(&opts.Token, "token", "", "Admin API bearer token (default $"+adminTokenEnv+")")
	fs.DurationVar(&opts.Timeout, "timeout", defaultTriggerTimeout, "Maximum time to wait for the server to finish the job")
	fs.BoolVar(&opts.Local, "local", false,
		"Run the job inside this process instead of asking the server. The server's in-process "+
			"concurrency guard is not shared, so the run can overlap one the server is executing "+
			"for the same job and period. Use only while the server is stopped")
	fs.StringVar(&actor, "actor", defaultActor(), "Actor recorded as the run creator with -local; the server takes it from the token")

	if err := fs.Parse(args); err != nil {
		return triggerOptions{}, err
	}
	req.JobName = strings.ToUpper(strings.TrimSpace(req.JobName))
	if req.JobName == "" {
		return triggerOptions{}, errors.New("--job is required")
	}
	req.CreatedBy = strings.TrimSpace(actor)
	req.TriggeredBy = model.TriggeredByManual

	if opts.Local {
		return opts, nil
	}
	if opts.Token == "" {
		opts.Token = strings.TrimSpace(os.Getenv(adminTokenEnv))
	}
	opts.Server = strings.TrimRight(strings.TrimSpace(opts.Server), "/")
	u, err := url.ParseRequestURI(opts.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return triggerOptions{}, fmt.Errorf("--server must be an http(s) URL, got %q", opts.Server)
	}
	if opts.Timeout <= 0 {
		return triggerOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runTrigger(cmdCtx *commandContext, args []string) error {
	opts, err := parseTriggerFlags(args, cmdCtx.Config.HTTP.BaseURL)
	if err != nil {
		return err
	}

	var resp *service.TriggerResponse
	if opts.Local {
		cmdCtx.Logger.Warn("running job in-process; overlapping server runs are not prevented", "job", opts.Request.JobName)
		resp, err = triggerLocal(cmdCtx, opts.Request)
	} else {
		resp, err = triggerRemote(cmdCtx.Ctx, newAdminClient(opts), opts)
	}
	if err != nil {
		return err
	}
	if printErr := printJSON(os.Stdout, resp); printErr != nil {
		return printErr
	}
	if !resp.Success {
		return fmt.Errorf("job %s did not succeed: %s", resp.JobName, orDash(resp.ErrorCode))
	}
	return nil
}

// newAdminClient authenticates admin API calls with the static bearer token, if any.
func newAdminClient(opts triggerOptions) *http.Client {
	base := &http.Client{Timeout: opts.Timeout}
	if opts.Token == "" {
		return base
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}))
	hc.Timeout = opts.Timeout
	return hc
}

// triggerReply is either a pipeline response or the API error body.
type triggerReply struct {
	service.TriggerResponse
	Error string `json:"error"`
}

// triggerRemote posts the request to the running server so it passes through the
// server's concurrency guard.
func triggerRemote(ctx context.Context, hc *http.Client, opts triggerOptions) (*service.TriggerResponse, error) {
	body, err := json.Marshal(opts.Request)
	if err != nil {
		return nil, fmt.Errorf("encode trigger request: %w", err)
	}
	endpoint, err := url.JoinPath(opts.Server, "api", "jobs", "trigger")
	if err != nil {
		return nil, fmt.Errorf("build trigger url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", opts.Request.JobName, err)
	}
	defer func() { _ = res.Body.Close() }()

	var reply triggerReply
	if err := json.NewDecoder(io.LimitReader(res.Body, maxTriggerReplyBytes)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("trigger %s: unreadable %s response: %w", opts.Request.JobName, res.Status, err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("trigger %s rejected with %s (%s): %s", opts.Request.JobName, res.Status, reply.Error, reply.Message)
	}
	return &reply.TriggerResponse, nil
}

// triggerLocal builds the services in this process. Its concurrency guard is private to
// the CLI, which is why -local is opt-in.
func triggerLocal(cmdCtx *commandContext, req service.TriggerRequest) (*service.TriggerResponse, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	// The CLI never serves HTTP, so the admin API authenticator is not needed.
	cfg := cmdCtx.Config
	cfg.Services = string(config.ServiceModeScheduler)
	services, err := bootstrap.NewServices(cmdCtx.Ctx, &bootstrap.ServiceDeps{
		Config: &cfg,
		DB:     db,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return services.Trigger.Trigger(cmdCtx.Ctx, req)
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}
