package httpx

import (
	"context"
	"io"
	"log/slog"
	"sync"

	domainauth "github.com/target/hrm-scheduler/internal/domain/auth"
	"github.com/target/hrm-scheduler/internal/domain/model"
	"github.com/target/hrm-scheduler/internal/ports"
	"github.com/target/hrm-scheduler/internal/service"
)

type fakeTrigger struct {
	mu      sync.Mutex
	resp    *service.TriggerResponse
	err     error
	running []service.HeldKey
	got     []service.TriggerRequest
}

func (f *fakeTrigger) Trigger(_ context.Context, req service.TriggerRequest) (*service.TriggerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, req)
	return f.resp, f.err
}

func (f *fakeTrigger) Running() []service.HeldKey { return f.running }

func (f *fakeTrigger) last() service.TriggerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[len(f.got)-1]
}

type fakeRuns struct {
	page      *model.RunPage
	run       *model.JobRun
	stats     []model.JobRunStats
	err       error
	listOpts  model.RunListOptions
	statsOpts model.RunStatsOptions
}

func (f *fakeRuns) List(_ context.Context, opts model.RunListOptions) (*model.RunPage, error) {
	f.listOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.page == nil {
		return &model.RunPage{Page: 1, Limit: 20}, nil
	}
	return f.page, nil
}

func (f *fakeRuns) Get(_ context.Context, _ string) (*model.JobRun, error) {
	return f.run, f.err
}

func (f *fakeRuns) Stats(_ context.Context, opts model.RunStatsOptions) ([]model.JobRunStats, error) {
	f.statsOpts = opts
	return f.stats, f.err
}

type fakePurger struct {
	deleted int64
	err     error
	days    int
}

func (f *fakePurger) Purge(_ context.Context, olderThanDays int) (int64, error) {
	f.days = olderThanDays
	return f.deleted, f.err
}

// tokenVerifier authenticates fixed tokens as fixed identities.
func tokenVerifier(tokens map[string]domainauth.Identity) ports.TokenVerifier {
	return ports.TokenVerifierFunc(func(_ context.Context, raw string) (domainauth.Identity, error) {
		id, ok := tokens[raw]
		if !ok {
			return domainauth.Identity{}, ports.ErrUnauthenticated
		}
		return id, nil
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
