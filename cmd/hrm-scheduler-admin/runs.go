package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/hrm-scheduler/internal/bootstrap"
	"github.com/target/hrm-scheduler/internal/data"
	"github.com/target/hrm-scheduler/internal/domain/model"
	"github.com/target/hrm-scheduler/internal/service"
)

const dateLayout = "2006-01-02"

type runsOptions struct {
	List model.RunListOptions
	JSON bool
}

type statsOptions struct {
	Stats model.RunStatsOptions
	JSON  bool
}

type purgeOptions struct {
	Days int
	Yes  bool
}

// boundFlag parses either RFC3339 or a date in the org timezone. An end bound on a date
// covers the whole day.
type boundFlag struct {
	loc      *time.Location
	endOfDay bool
	value    *time.Time
}

func (b *boundFlag) String() string {
	if b == nil || b.value == nil {
		return ""
	}
	return b.value.Format(time.RFC3339)
}

func (b *boundFlag) Set(raw string) error {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		b.value = &t
		return nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, b.loc)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}
	if b.endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	b.value = &t
	return nil
}

func parseRunsFlags(args []string, loc *time.Location) (runsOptions, error) {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts        runsOptions
		status      string
		triggeredBy string
		from        = &boundFlag{loc: loc}
		to          = &boundFlag{loc: loc, endOfDay: true}
	)
	fs.StringVar(&opts.List.JobName, "job", "", "Filter by run name, e.g. MONTHLY_PAYROLL_GENERATION")
	fs.StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCESS, FAILED)")
	fs.StringVar(&triggeredBy, "triggered-by", "", "Filter by trigger source (SYSTEM, MANUAL)")
	fs.Var(from, "from", "Runs started at or after (YYYY-MM-DD or RFC3339)")
	fs.Var(to, "to", "Runs started before (YYYY-MM-DD inclusive, or RFC3339)")
	fs.IntVar(&opts.List.Page, "page", 1, "Page number")
	fs.IntVar(&opts.List.Limit, "limit", 20, "Page size")
	fs.BoolVar(&opts.JSON, "json", false, "Print the page as JSON")

	if err := fs.Parse(args); err != nil {
		return runsOptions{}, err
	}

	opts.List.JobName = strings.ToUpper(strings.TrimSpace(opts.List.JobName))
	if status != "" {
		if err := opts.List.Status.UnmarshalText([]byte(status)); err != nil {
			return runsOptions{}, err
		}
	}
	if triggeredBy != "" {
		if err := opts.List.TriggeredBy.UnmarshalText([]byte(triggeredBy)); err != nil {
			return runsOptions{}, err
		}
	}
	opts.List.From, opts.List.To = from.value, to.value
	opts.List.Normalize()
	return opts, nil
}

func parseStatsFlags(args []string, loc *time.Location) (statsOptions, error) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts statsOptions
		from = &boundFlag{loc: loc}
		to   = &boundFlag{loc: loc, endOfDay: true}
	)
	fs.Var(from, "from", "Runs started at or after (YYYY-MM-DD or RFC3339)")
	fs.Var(to, "to", "Runs started before (YYYY-MM-DD inclusive, or RFC3339)")
	fs.BoolVar(&opts.JSON, "json", false, "Print statistics as JSON")
	if err := fs.Parse(args); err != nil {
		return statsOptions{}, err
	}
	opts.Stats.From, opts.Stats.To = from.value, to.value
	return opts, nil
}

func parsePurgeFlags(args []string) (purgeOptions, error) {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := purgeOptions{}
	fs.IntVar(&opts.Days, "days", service.DefaultRetentionDays, "Delete runs started more than this many days ago")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return purgeOptions{}, err
	}
	if opts.Days < 1 {
		return purgeOptions{}, errors.New("--days must be at least 1")
	}
	return opts, nil
}

// runStore is the job log store opened for a single CLI command.
type runStore struct {
	db    *sql.DB
	repo  *data.JobRunRepo
	clock service.OrgClock
}

func openRunStore(cmdCtx *commandContext) (*runStore, error) {
	loc, err := cmdCtx.Config.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	clock := service.NewOrgClock(loc)
	return &runStore{
		db:    db,
		repo:  data.NewJobRunRepo(db, data.RepoConfig{Logger: cmdCtx.Logger, TimeProvider: clock.TimeProvider}),
		clock: clock,
	}, nil
}

func (s *runStore) Close() error {
	return s.db.Close()
}

func orgLocation(cmdCtx *commandContext) (*time.Location, error) {
	return cmdCtx.Config.Scheduler.Location()
}

func runListRuns(cmdCtx *commandContext, args []string) error {
	loc, err := orgLocation(cmdCtx)
	if err != nil {
		return err
	}
	opts, err := parseRunsFlags(args, loc)
	if err != nil {
		return err
	}

	store, err := openRunStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeStore(cmdCtx, store)

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultQueryTimeout)
	defer cancel()

	page, err := store.repo.List(ctx, opts.List)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if opts.JSON {
		return printJSON(os.Stdout, page)
	}
	return printRuns(os.Stdout, page, loc)
}

func runStats(cmdCtx *commandContext, args []string) error {
	loc, err := orgLocation(cmdCtx)
	if err != nil {
		return err
	}
	opts, err := parseStatsFlags(args, loc)
	if err != nil {
		return err
	}

	store, err := openRunStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeStore(cmdCtx, store)

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultQueryTimeout)
	defer cancel()

	stats, err := store.repo.Stats(ctx, opts.Stats)
	if err != nil {
		return fmt.Errorf("run stats: %w", err)
	}
	if opts.JSON {
		return printJSON(os.Stdout, stats)
	}
	return printStats(os.Stdout, stats, loc)
}

func runPurge(cmdCtx *commandContext, args []string) error {
	opts, err := parsePurgeFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmPurge(os.Stdin, os.Stdout, opts); confirmErr != nil {
		return confirmErr
	}

	store, err := openRunStore(cmdCtx)
	if err != nil {
		return err
	}
	defer closeStore(cmdCtx, store)

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:   store.repo,
		Config: cmdCtx.Config.Reaper,
		Clock:  store.clock,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}

	deleted, err := reaper.Purge(cmdCtx.Ctx, opts.Days)
	if err != nil {
		return fmt.Errorf("purge runs: %w", err)
	}
	return writef(os.Stdout, "Deleted %d run(s) older than %d day(s)\n", deleted, opts.Days)
}

func confirmPurge(in io.Reader, out io.Writer, opts purgeOptions) error {
	if opts.Yes {
		return nil
	}
	if err := writef(out, "Delete every job run older than %d day(s)? Type 'yes' to continue: ", opts.Days); err != nil {
		return err
	}
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read confirmation: %w", err)
	}
	if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
		return errors.New("purge aborted")
	}
	return nil
}

func closeStore(cmdCtx *commandContext, store *runStore) {
	if err := store.Close(); err != nil {
		cmdCtx.Logger.Warn("db close failed", "error", err)
	}
}

func printRuns(w io.Writer, page *model.RunPage, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "ID\tJOB\tSTATUS\tTRIGGERED BY\tSTARTED\tDURATION\tERROR"); err != nil {
		return err
	}
	for _, run := range page.Data {
		duration := "-"
		if run.DurationMs != nil {
			duration = (time.Duration(*run.DurationMs) * time.Millisecond).String()
		}
		errMsg := "-"
		if run.ErrorMessage != nil {
			errMsg = truncate(*run.ErrorMessage, 60)
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.JobName, run.Status, run.TriggeredBy,
			run.StartedAt.In(loc).Format(time.DateTime), duration, errMsg); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writef(w, "\nPage %d (limit %d), %d run(s) total\n", page.Page, page.Limit, page.Total)
}

func printStats(w io.Writer, stats []model.JobRunStats, loc *time.Location) error {
	if len(stats) == 0 {
		return writeln(w, "(no runs recorded)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "JOB\tTOTAL\tSUCCESS\tFAILED\tRUNNING\tAVG DURATION\tLAST RUN"); err != nil {
		return err
	}
	for _, s := range stats {
		last := "-"
		if s.LastRunAt != nil {
			last = s.LastRunAt.In(loc).Format(time.DateTime)
		}
		avg := (time.Duration(s.AvgDurationMs) * time.Millisecond).Round(time.Millisecond)
		if err := writef(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.JobName, s.Total, s.Success, s.Failed, s.Running, avg, last); err != nil {
			return err
		}
	}
	return tw.Flush()
}
