package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/data"
	"github.com/target/hrm-scheduler/internal/domain/model"
	"github.com/target/hrm-scheduler/internal/service"
	"github.com/target/hrm-scheduler/internal/testutil"
)

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database connection is required")
}

func TestRunner_RunsInitialCleanup(t *testing.T) {
	tp := data.NewFixedTimeProvider(testutil.TestTime())
	repo := testutil.NewMemoryRunRepo(tp.Now)
	repo.Seed(model.JobRun{
		JobName:     "LEAVE_ACCRUAL",
		Status:      model.RunStatusSuccess,
		StartedAt:   testutil.TestTime().AddDate(0, 0, -40),
		TriggeredBy: model.TriggeredBySystem,
	})

	deleted := make(chan struct{}, 1)
	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Config: config.ReaperConfig{
			Interval:       100 * time.Millisecond,
			StaleRunMaxAge: 2 * time.Hour,
			Retention:      30 * 24 * time.Hour,
			BatchSize:      100,
		},
		Clock:     service.OrgClock{TimeProvider: tp},
		OnDeleted: func(context.Context) { deleted <- struct{}{} },
	})
	require.NoError(t, err)
	require.NotNil(t, r.Service())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-deleted:
	case <-time.After(10 * time.Second):
		t.Fatal("initial cleanup did not run")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, repo.All())
}
