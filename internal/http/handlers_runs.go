package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/service"
)

// RunReader serves the job log. Implemented by *service.JobRunService.
type RunReader interface {
	List(ctx context.Context, opts model.RunListOptions) (*model.RunPage, error)
	Get(ctx context.Context, id string) (*model.JobRun, error)
	Stats(ctx context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error)
}

// RunPurger deletes old runs. Implemented by *service.ReaperService.
type RunPurger interface {
	Purge(ctx context.Context, olderThanDays int) (int64, error)
}

// RunHandlers provides HTTP handlers for run history, statistics and purge.
type RunHandlers struct {
	Runs   RunReader
	Purger RunPurger
	// Location interprets date-only query bounds. Defaults to UTC.
	Location *time.Location
	Logger   *slog.Logger
}

// List returns one page of run history.
func (h *RunHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := h.parseListOptions(r.URL.Query())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	page, err := h.Runs.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if page.Data == nil {
		page.Data = []*model.JobRun{}
	}
	WriteJSON(w, http.StatusOK, page)
}

// Get returns a single run.
func (h *RunHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeServiceError(w, r, h.Logger, apperrors.ValidationField("id", "run id is required"))
		return
	}
	run, err := h.Runs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// Stats returns per-job aggregates.
func (h *RunHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTimeQuery(q, "from", h.Location, false)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	to, err := parseTimeQuery(q, "to", h.Location, true)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	stats, err := h.Runs.Stats(r.Context(), model.RunStatsOptions{From: from, To: to})
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if stats == nil {
		stats = []model.JobRunStats{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": stats})
}

type purgeResponse struct {
	Deleted       int64 `json:"deleted"`
	OlderThanDays int   `json:"olderThanDays"`
}

// Purge deletes runs older than olderThanDays (default 30).
func (h *RunHandlers) Purge(w http.ResponseWriter, r *http.Request) {
	days, err := parseStrictIntQuery(r.URL.Query(), "olderThanDays", service.DefaultRetentionDays)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if days < 1 {
		writeServiceError(w, r, h.Logger, apperrors.ValidationField("olderThanDays", "olderThanDays must be at least 1"))
		return
	}
	deleted, err := h.Purger.Purge(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if h.Logger != nil {
		h.Logger.InfoContext(r.Context(), "job runs purged",
			"deleted", deleted,
			"older_than_days", days,
			"actor", ActorID(r.Context()),
		)
	}
	WriteJSON(w, http.StatusOK, purgeResponse{Deleted: deleted, OlderThanDays: days})
}

func (h *RunHandlers) parseListOptions(q url.Values) (model.RunListOptions, error) {
	opts := model.RunListOptions{
		JobName: strings.ToUpper(strings.TrimSpace(q.Get("jobName"))),
	}
	if v := q.Get("status"); v != "" {
		if err := opts.Status.UnmarshalText([]byte(v)); err != nil {
			return opts, apperrors.ValidationField("status", "status must be one of: RUNNING, SUCCESS, FAILED")
		}
	}
	if v := q.Get("triggeredBy"); v != "" {
		if err := opts.TriggeredBy.UnmarshalText([]byte(v)); err != nil {
			return opts, apperrors.ValidationField("triggeredBy", "triggeredBy must be one of: SYSTEM, MANUAL")
		}
	}
	var err error
	if opts.From, err = parseTimeQuery(q, "from", h.Location, false); err != nil {
		return opts, err
	}
	if opts.To, err = parseTimeQuery(q, "to", h.Location, true); err != nil {
		return opts, err
	}
	if opts.Page, err = parseStrictIntQuery(q, "page", 1); err != nil {
		return opts, err
	}
	if opts.Limit, err = parseStrictIntQuery(q, "limit", 0); err != nil {
		return opts, err
	}
	return opts, nil
}
