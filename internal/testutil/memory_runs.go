package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
)

// MemoryRunRepo is an in-memory core.JobRunRepository and core.RunReaperRepository.
// It mirrors the Postgres semantics closely enough for service and handler tests.
type MemoryRunRepo struct {
	mu   sync.Mutex
	runs []*model.JobRun
	now  func() time.Time

	// IgnoredWrites counts terminal writes rejected because the run was already terminal.
	IgnoredWrites int
}

var (
	_ core.JobRunRepository    = (*MemoryRunRepo)(nil)
	_ core.RunReaperRepository = (*MemoryRunRepo)(nil)
)

// NewMemoryRunRepo returns an empty repo using now as its clock (time.Now when nil).
func NewMemoryRunRepo(now func() time.Time) *MemoryRunRepo {
	if now == nil {
		now = time.Now
	}
	return &MemoryRunRepo{now: now}
}

// Seed inserts a run as-is.
func (m *MemoryRunRepo) Seed(run model.JobRun) *model.JobRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = run.StartedAt
	}
	cp := run
	m.runs = append(m.runs, &cp)
	return &cp
}

// All returns copies of every stored run in insertion order.
func (m *MemoryRunRepo) All() []model.JobRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out
}

// Start implements core.JobRunRepository.
func (m *MemoryRunRepo) Start(_ context.Context, req model.StartRunRequest) (*model.JobRun, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid run")
	}
	params := json.RawMessage(`{}`)
	if req.Params != nil {
		b, err := json.Marshal(req.Params)
		if err != nil {
			return nil, err
		}
		params = b
	}
	var createdBy *string
	if req.CreatedBy != "" {
		createdBy = StringPtr(req.CreatedBy)
	}
	now := m.now()
	run := model.JobRun{
		ID:          uuid.NewString(),
		JobName:     req.JobName,
		JobType:     req.JobType,
		Status:      model.RunStatusRunning,
		StartedAt:   now,
		TriggeredBy: req.TriggeredBy,
		CreatedBy:   createdBy,
		Params:      params,
		PeriodKey:   req.PeriodKey,
		CreatedAt:   now,
	}
	return m.Seed(run), nil
}

func (m *MemoryRunRepo) finish(id string, apply func(r *model.JobRun)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID != id {
			continue
		}
		if r.Status != model.RunStatusRunning {
			m.IgnoredWrites++
			return false
		}
		now := m.now()
		d := max(now.Sub(r.StartedAt).Milliseconds(), 0)
		r.CompletedAt = &now
		r.DurationMs = &d
		apply(r)
		return true
	}
	return false
}

// Complete implements core.JobRunRepository.
func (m *MemoryRunRepo) Complete(_ context.Context, id string, result any) (bool, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return false, err
	}
	return m.finish(id, func(r *model.JobRun) {
		r.Status = model.RunStatusSuccess
		r.Result = b
	}), nil
}

// Fail implements core.JobRunRepository.
func (m *MemoryRunRepo) Fail(_ context.Context, id string, failure core.RunFailure) (bool, error) {
	return m.finish(id, func(r *model.JobRun) {
		r.Status = model.RunStatusFailed
		r.ErrorMessage = StringPtr(failure.Message)
		if failure.Stack != "" {
			r.ErrorStack = StringPtr(failure.Stack)
		}
	}), nil
}

// HasSuccess implements core.JobRunRepository.
func (m *MemoryRunRepo) HasSuccess(_ context.Context, q model.SuccessQuery) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status != model.RunStatusSuccess || !slices.Contains(q.Names, r.JobName) {
			continue
		}
		if r.PeriodKey != "" {
			if r.PeriodKey == q.PeriodKey {
				return true, nil
			}
			continue
		}
		if !r.StartedAt.Before(q.From) && r.StartedAt.Before(q.To) {
			return true, nil
		}
	}
	return false, nil
}

// GetByID implements core.JobRunRepository.
func (m *MemoryRunRepo) GetByID(_ context.Context, id string) (*model.JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, apperrors.NotFoundf("job run %s not found", id)
}

func (m *MemoryRunRepo) matches(r *model.JobRun, opts model.RunListOptions) bool {
	if name := strings.ToUpper(strings.TrimSpace(opts.JobName)); name != "" &&
		r.JobName != name && r.JobName != "MANUAL_"+name {
		return false
	}
	if opts.Status != "" && r.Status != opts.Status {
		return false
	}
	if opts.TriggeredBy != "" && r.TriggeredBy != opts.TriggeredBy {
		return false
	}
	if opts.From != nil && r.StartedAt.Before(*opts.From) {
		return false
	}
	if opts.To != nil && !r.StartedAt.Before(*opts.To) {
		return false
	}
	return true
}

// List implements core.JobRunRepository.
func (m *MemoryRunRepo) List(_ context.Context, opts model.RunListOptions) (*model.RunPage, error) {
	opts.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*model.JobRun
	for _, r := range m.runs {
		if m.matches(r, opts) {
			cp := *r
			matched = append(matched, &cp)
		}
	}
	slices.SortStableFunc(matched, func(a, b *model.JobRun) int { return b.StartedAt.Compare(a.StartedAt) })

	page := &model.RunPage{Data: []*model.JobRun{}, Total: len(matched), Page: opts.Page, Limit: opts.Limit}
	start := min(opts.Offset(), len(matched))
	end := min(start+opts.Limit, len(matched))
	page.Data = append(page.Data, matched[start:end]...)
	return page, nil
}

// Stats implements core.JobRunRepository.
func (m *MemoryRunRepo) Stats(_ context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName := map[string]*model.JobRunStats{}
	durations := map[string][]int64{}
	filter := model.RunListOptions{From: opts.From, To: opts.To}
	for _, r := range m.runs {
		if !m.matches(r, filter) {
			continue
		}
		name := strings.TrimPrefix(r.JobName, "MANUAL_")
		s, ok := byName[name]
		if !ok {
			s = &model.JobRunStats{JobName: name}
			byName[name] = s
		}
		s.Total++
		switch r.Status {
		case model.RunStatusSuccess:
			s.Success++
		case model.RunStatusFailed:
			s.Failed++
		case model.RunStatusRunning:
			s.Running++
		}
		if r.DurationMs != nil {
			durations[name] = append(durations[name], *r.DurationMs)
		}
		if s.LastRunAt == nil || r.StartedAt.After(*s.LastRunAt) {
			t := r.StartedAt
			s.LastRunAt = &t
		}
	}

	out := make([]model.JobRunStats, 0, len(byName))
	for name, s := range byName {
		if ds := durations[name]; len(ds) > 0 {
			var sum int64
			for _, d := range ds {
				sum += d
			}
			s.AvgDurationMs = float64(sum) / float64(len(ds))
		}
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b model.JobRunStats) int { return strings.Compare(a.JobName, b.JobName) })
	return out, nil
}

// DeleteOlderThan implements core.RunReaperRepository.
func (m *MemoryRunRepo) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	kept := m.runs[:0]
	for _, r := range m.runs {
		if r.StartedAt.Before(cutoff) && deleted < int64(batchSize) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.runs = kept
	return deleted, nil
}

// FailStaleRunning implements core.RunReaperRepository.
func (m *MemoryRunRepo) FailStaleRunning(_ context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for _, r := range m.runs {
		if n >= int64(batchSize) {
			break
		}
		if r.Status == model.RunStatusRunning && r.StartedAt.Before(now.Add(-maxAge)) {
			r.Status = model.RunStatusFailed
			r.CompletedAt = &now
			r.ErrorMessage = StringPtr("run abandoned: still RUNNING after the stale threshold")
			n++
		}
	}
	return n, nil
}
