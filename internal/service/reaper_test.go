package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/hrm-scheduler/config"
	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/mocks"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/testutil"
)

// mockReaperRepo is a simple mock implementation for testing.
type mockReaperRepo struct {
	mu sync.Mutex

	failStaleCalled int
	failStaleCount  int64
	failStaleError  error
	failStaleMaxAge time.Duration

	deleteCalled  int
	deleteCount   int64
	deleteError   error
	deleteCutoffs []time.Time
	deleteBatch   int
}

func (m *mockReaperRepo) FailStaleRunning(_ context.Context, maxAge time.Duration, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStaleCalled++
	m.failStaleMaxAge = maxAge
	if m.failStaleError != nil {
		return 0, m.failStaleError
	}
	// Return count on first call, then 0 to simulate batch exhaustion
	if m.failStaleCalled == 1 {
		return m.failStaleCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) DeleteOlderThan(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalled++
	m.deleteCutoffs = append(m.deleteCutoffs, cutoff)
	m.deleteBatch = batchSize
	if m.deleteError != nil {
		return 0, m.deleteError
	}
	if m.deleteCalled == 1 {
		return m.deleteCount, nil
	}
	return 0, nil
}

func (m *mockReaperRepo) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failStaleCalled, m.deleteCalled
}

func testReaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       5 * time.Minute,
		StaleRunMaxAge: 2 * time.Hour,
		Retention:      30 * 24 * time.Hour,
		BatchSize:      1000,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &mockReaperRepo{},
			Config: testReaperConfig(),
			Logger: slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: testReaperConfig()})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "RunReaperRepository is required")
	})
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("runs all cleanup operations successfully", func(t *testing.T) {
		clock, _ := testClock(t)
		repo := &mockReaperRepo{failStaleCount: 5, deleteCount: 10}
		rec := statsd.NewRecorder()
		deleted := 0
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Config:    testReaperConfig(),
			Clock:     clock,
			Metrics:   rec,
			OnDeleted: func(context.Context) { deleted++ },
		})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))

		// Each operation is called twice: once returning count, once returning 0
		assert.Equal(t, 2, repo.failStaleCalled)
		assert.Equal(t, 2, repo.deleteCalled)
		assert.Equal(t, 2*time.Hour, repo.failStaleMaxAge)
		assert.Equal(t, 1000, repo.deleteBatch)
		assert.True(t, repo.deleteCutoffs[0].Equal(testutil.TestTime().Add(-30*24*time.Hour)))
		assert.Equal(t, 1, deleted)

		cleanup := rec.CountsNamed("reaper.cleanup")
		require.Len(t, cleanup, 1)
		assert.Equal(t, "success", cleanup[0].Tags["result"])
		processed := rec.CountsNamed("reaper.runs_processed")
		require.Len(t, processed, 2)
		assert.Len(t, rec.Gauges(), 1)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleError: errors.New("fail error"), deleteCount: 10}
		rec := statsd.NewRecorder()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())

		// Should return error but still call all cleanup methods
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale running jobs")
		assert.Equal(t, 1, repo.failStaleCalled)
		assert.Equal(t, 2, repo.deleteCalled)
		assert.Equal(t, "error", rec.CountsNamed("reaper.cleanup")[0].Tags["result"])
		assert.Empty(t, rec.Gauges())
	})

	t.Run("nothing to do reports noop", func(t *testing.T) {
		repo := &mockReaperRepo{}
		rec := statsd.NewRecorder()
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Metrics: rec})
		require.NoError(t, err)

		require.NoError(t, svc.runCleanup(context.Background()))
		assert.Equal(t, "noop", rec.CountsNamed("reaper.cleanup")[0].Tags["result"])
	})

	t.Run("cancelled context is reported as cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleError: context.Canceled, deleteError: context.Canceled}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig()})
		require.NoError(t, err)

		err = svc.runCleanup(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &mockReaperRepo{}
		cfg := testReaperConfig()
		cfg.Interval = 100 * time.Millisecond
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		// Wait a bit to ensure at least one cleanup runs
		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(1 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		stale, _ := repo.calls()
		assert.GreaterOrEqual(t, stale, 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &mockReaperRepo{failStaleError: errors.New("test error")}
		cfg := testReaperConfig()
		cfg.Interval = 50 * time.Millisecond
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)

		// Should return context deadline exceeded, not the cleanup error
		require.ErrorIs(t, err, context.DeadlineExceeded)
		stale, _ := repo.calls()
		assert.GreaterOrEqual(t, stale, 2)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{Repo: &mockReaperRepo{}, Config: config.ReaperConfig{}})
		require.NoError(t, err)
		assert.Error(t, svc.Run(context.Background()))
	})
}

func TestReaperService_Purge(t *testing.T) {
	clock, tp := testClock(t)
	repo := testutil.NewMemoryRunRepo(tp.Now)
	now := testutil.TestTime()
	seedSuccess(repo, "LEAVE_ACCRUAL", "2024-10", now.AddDate(0, 0, -45))
	seedSuccess(repo, "LEAVE_ACCRUAL", "2024-11", now.AddDate(0, 0, -31))
	seedSuccess(repo, "LEAVE_ACCRUAL", "2024-12", now.AddDate(0, 0, -10))
	rec := statsd.NewRecorder()
	invalidated := 0
	svc, err := NewReaperService(ReaperServiceOptions{
		Repo:      repo,
		Config:    testReaperConfig(),
		Clock:     clock,
		Metrics:   rec,
		OnDeleted: func(context.Context) { invalidated++ },
	})
	require.NoError(t, err)
	ctx := context.Background()

	deleted, err := svc.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	require.Len(t, repo.All(), 1)
	assert.Equal(t, "2024-12", repo.All()[0].PeriodKey)
	assert.Equal(t, 1, invalidated)

	deleted, err = svc.Purge(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = svc.Purge(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, 2, invalidated)

	ops := rec.CountsNamed("reaper.cleanup_operation")
	require.Len(t, ops, 3)
	assert.Equal(t, "purge", ops[0].Tags["operation"])
	assert.Equal(t, "noop", ops[2].Tags["result"])

	_, err = svc.Purge(ctx, 4000)
	assert.True(t, apperrors.IsValidation(err))
}

func TestReaperService_FailsStaleRunsInMemory(t *testing.T) {
	clock, tp := testClock(t)
	repo := testutil.NewMemoryRunRepo(tp.Now)
	testutil.NewHistory().
		AddRunning("LEAVE_ACCRUAL", testutil.TestTime().Add(-3*time.Hour)).
		AddRunning("CONFIG_ACTIVATION", testutil.TestTime().Add(-time.Minute)).
		Seed(repo)
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: testReaperConfig(), Clock: clock})
	require.NoError(t, err)

	count, err := svc.failStaleRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	runs := repo.All()
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, model.RunStatusRunning, runs[1].Status)
}

func TestReaperService_PurgeWithMockRepo(t *testing.T) {
	t.Run("drains batches and invalidates once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockRunReaperRepository(ctrl)
		clock, _ := testClock(t)
		cutoff := testutil.TestTime().AddDate(0, 0, -10)
		gomock.InOrder(
			repo.EXPECT().DeleteOlderThan(gomock.Any(), cutoff, 1000).Return(int64(1000), nil),
			repo.EXPECT().DeleteOlderThan(gomock.Any(), cutoff, 1000).Return(int64(42), nil),
			repo.EXPECT().DeleteOlderThan(gomock.Any(), cutoff, 1000).Return(int64(0), nil),
		)
		invalidated := 0
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Config:    testReaperConfig(),
			Clock:     clock,
			OnDeleted: func(context.Context) { invalidated++ },
		})
		require.NoError(t, err)

		deleted, err := svc.Purge(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1042), deleted)
		assert.Equal(t, 1, invalidated)
	})

	t.Run("repository error keeps partial count", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockRunReaperRepository(ctrl)
		clock, _ := testClock(t)
		gomock.InOrder(
			repo.EXPECT().DeleteOlderThan(gomock.Any(), gomock.Any(), 1000).Return(int64(7), nil),
			repo.EXPECT().DeleteOlderThan(gomock.Any(), gomock.Any(), 1000).Return(int64(0), errors.New("db down")),
		)
		invalidated := 0
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:      repo,
			Config:    testReaperConfig(),
			Clock:     clock,
			OnDeleted: func(context.Context) { invalidated++ },
		})
		require.NoError(t, err)

		deleted, err := svc.Purge(context.Background(), 0)
		require.EqualError(t, err, "db down")
		assert.Equal(t, int64(7), deleted)
		assert.Equal(t, 1, invalidated)
	})
}
