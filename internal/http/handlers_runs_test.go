package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestRunHandlers_List_ParsesFilters(t *testing.T) {
	runs := &fakeRuns{page: &model.RunPage{
		Data:  []*model.JobRun{{ID: "run-1", JobName: "MANUAL_LEAVE_ACCRUAL", Status: model.RunStatusSuccess}},
		Total: 41,
		Page:  3,
		Limit: 20,
	}}
	h := &RunHandlers{Runs: runs, Location: ist}

	target := "/api/jobs/runs?jobName=leave_accrual&status=success&triggeredBy=manual" +
		"&from=2025-01-01&to=2025-01-31&page=3&limit=20"
	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, target, nil))

	require.Equal(t, http.StatusOK, w.Code)
	opts := runs.listOpts
	assert.Equal(t, "LEAVE_ACCRUAL", opts.JobName)
	assert.Equal(t, model.RunStatusSuccess, opts.Status)
	assert.Equal(t, model.TriggeredByManual, opts.TriggeredBy)
	require.NotNil(t, opts.From)
	require.NotNil(t, opts.To)
	assert.True(t, opts.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, ist)))
	assert.True(t, opts.To.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, ist)), "date-only upper bound covers the whole day")
	assert.Equal(t, 3, opts.Page)
	assert.Equal(t, 20, opts.Limit)

	var got model.RunPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 41, got.Total)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "run-1", got.Data[0].ID)
}

func TestRunHandlers_List_RFC3339Bounds(t *testing.T) {
	runs := &fakeRuns{}
	h := &RunHandlers{Runs: runs}

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs/runs?from=2025-01-09T10:00:00Z", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, runs.listOpts.From)
	assert.True(t, runs.listOpts.From.Equal(time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, runs.listOpts.To)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestRunHandlers_List_InvalidFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		field string
	}{
		{name: "status", query: "status=DONE", field: "status"},
		{name: "trigger source", query: "triggeredBy=cron", field: "triggeredBy"},
		{name: "from", query: "from=yesterday", field: "from"},
		{name: "to", query: "to=2025-13-01", field: "to"},
		{name: "page", query: "page=two", field: "page"},
		{name: "limit", query: "limit=1.5", field: "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &RunHandlers{Runs: &fakeRuns{}}

			w := httptest.NewRecorder()
			h.List(w, httptest.NewRequest(http.MethodGet, "/api/jobs/runs?"+tt.query, nil))

			require.Equal(t, http.StatusBadRequest, w.Code)
			var got errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, "validation", got.Error)
			assert.Equal(t, tt.field, got.Field)
		})
	}
}

func TestRunHandlers_Get(t *testing.T) {
	started := time.Date(2025, 1, 9, 0, 0, 5, 0, ist)
	h := &RunHandlers{Runs: &fakeRuns{run: &model.JobRun{
		ID:          "run-7",
		JobName:     "CONFIG_ACTIVATION",
		Status:      model.RunStatusSuccess,
		StartedAt:   started,
		TriggeredBy: model.TriggeredBySystem,
		Result:      json.RawMessage(`{"activated":3}`),
	}}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/runs/{id}", h.Get)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/runs/run-7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got model.JobRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-7", got.ID)
	assert.JSONEq(t, `{"activated":3}`, string(got.Result))
}

func TestRunHandlers_Get_NotFound(t *testing.T) {
	h := &RunHandlers{Runs: &fakeRuns{err: apperrors.NotFoundf("job run %s not found", "missing")}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs/runs/{id}", h.Get)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/runs/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "job run missing not found")
}

func TestRunHandlers_Stats(t *testing.T) {
	last := time.Date(2025, 1, 9, 0, 0, 5, 0, time.UTC)
	runs := &fakeRuns{stats: []model.JobRunStats{{
		JobName:       "CONFIG_ACTIVATION",
		Total:         4,
		Success:       3,
		Failed:        1,
		AvgDurationMs: 1250,
		LastRunAt:     &last,
	}}}
	h := &RunHandlers{Runs: runs, Location: ist}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/jobs/stats?from=2025-01-01", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, runs.statsOpts.From)
	assert.Nil(t, runs.statsOpts.To)

	var got struct {
		Data []model.JobRunStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Data, 1)
	assert.Equal(t, 3, got.Data[0].Success)
	assert.InDelta(t, 1250, got.Data[0].AvgDurationMs, 0.001)
}

func TestRunHandlers_Stats_Error(t *testing.T) {
	h := &RunHandlers{Runs: &fakeRuns{err: errors.New("connection refused")}}

	w := httptest.NewRecorder()
	h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRunHandlers_Purge(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDays   int
	}{
		{name: "default window", query: "", wantStatus: http.StatusOK, wantDays: 30},
		{name: "explicit window", query: "?olderThanDays=90", wantStatus: http.StatusOK, wantDays: 90},
		{name: "zero rejected", query: "?olderThanDays=0", wantStatus: http.StatusBadRequest},
		{name: "negative rejected", query: "?olderThanDays=-5", wantStatus: http.StatusBadRequest},
		{name: "non-integer rejected", query: "?olderThanDays=month", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			purger := &fakePurger{deleted: 17}
			h := &RunHandlers{Runs: &fakeRuns{}, Purger: purger}

			w := httptest.NewRecorder()
			h.Purge(w, adminRequest(http.MethodDelete, "/api/jobs/runs"+tt.query, nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Zero(t, purger.days, "purge must not run")
				return
			}
			assert.Equal(t, tt.wantDays, purger.days)
			var got purgeResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, int64(17), got.Deleted)
			assert.Equal(t, tt.wantDays, got.OlderThanDays)
		})
	}
}

func TestRunHandlers_Purge_ServiceValidation(t *testing.T) {
	h := &RunHandlers{Purger: &fakePurger{err: apperrors.ValidationField("olderThanDays", "olderThanDays must be at most 3650")}}

	w := httptest.NewRecorder()
	h.Purge(w, adminRequest(http.MethodDelete, "/api/jobs/runs?olderThanDays=4000", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "at most 3650")
}
