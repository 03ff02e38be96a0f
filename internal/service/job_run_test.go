package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/hrm-scheduler/internal/domain/model"
	apperrors "github.com/target/hrm-scheduler/internal/errors"
	"github.com/target/hrm-scheduler/internal/mocks"
	"github.com/target/hrm-scheduler/internal/testutil"
)

func TestNewJobRunService_RequiresRepo(t *testing.T) {
	_, err := NewJobRunService(JobRunServiceOptions{})
	assert.Error(t, err)
}

func TestJobRunService_ListAndGet(t *testing.T) {
	repo := testutil.NewMemoryRunRepo(nil)
	now := testutil.TestTime()
	for i := range 3 {
		seedSuccess(repo, "LEAVE_ACCRUAL", "", now.Add(-time.Duration(i)*time.Hour))
	}
	failed := repo.Seed(testutil.NewRun("LEAVE_ACCRUAL").Manual("alice").StartedAt(now.Add(-5*time.Hour)).Failed(time.Second, "boom").Build())

	svc, err := NewJobRunService(JobRunServiceOptions{Runs: repo})
	require.NoError(t, err)
	ctx := context.Background()

	page, err := svc.List(ctx, model.RunListOptions{JobName: "leave_accrual", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Data, 2)
	assert.True(t, page.Data[0].StartedAt.Equal(now))

	page, err = svc.List(ctx, model.RunListOptions{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, failed.ID, page.Data[0].ID)

	got, err := svc.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, "MANUAL_LEAVE_ACCRUAL", got.JobName)

	_, err = svc.Get(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobRunService_StatsWithoutCache(t *testing.T) {
	repo := testutil.NewMemoryRunRepo(nil)
	now := testutil.TestTime()
	seedSuccess(repo, "LEAVE_ACCRUAL", "", now)
	seedSuccess(repo, "MANUAL_LEAVE_ACCRUAL", "", now.Add(-time.Hour))
	testutil.NewHistory().AddFailure("CONFIG_ACTIVATION", now, "boom").Seed(repo)

	svc, err := NewJobRunService(JobRunServiceOptions{Runs: repo})
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background(), model.RunStatsOptions{})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "CONFIG_ACTIVATION", stats[0].JobName)
	assert.Equal(t, 1, stats[0].Failed)
	assert.Equal(t, "LEAVE_ACCRUAL", stats[1].JobName)
	assert.Equal(t, 2, stats[1].Success)
}

func TestJobRunService_StatsCache(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := model.RunStatsOptions{From: &from}
	key := "job_runs:stats:v3:1735689600:-"
	cached := []model.JobRunStats{{JobName: "LEAVE_ACCRUAL", Total: 9, Success: 9}}
	cachedRaw, err := json.Marshal(cached)
	require.NoError(t, err)

	t.Run("hit skips the repository", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		runs := mocks.NewMockJobRunRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)
		svc, err := NewJobRunService(JobRunServiceOptions{Runs: runs, Cache: cache})
		require.NoError(t, err)

		cache.EXPECT().Get(gomock.Any(), statsVersionKey).Return([]byte("3"), nil)
		cache.EXPECT().Get(gomock.Any(), key).Return(cachedRaw, nil)

		got, err := svc.Stats(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
	})

	t.Run("miss queries and stores", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		runs := mocks.NewMockJobRunRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)
		svc, err := NewJobRunService(JobRunServiceOptions{Runs: runs, Cache: cache, CacheTTL: 30 * time.Second})
		require.NoError(t, err)

		gomock.InOrder(
			cache.EXPECT().Get(gomock.Any(), statsVersionKey).Return([]byte("3"), nil),
			cache.EXPECT().Get(gomock.Any(), key).Return(nil, nil),
			runs.EXPECT().Stats(gomock.Any(), opts).Return(cached, nil),
			cache.EXPECT().Set(gomock.Any(), key, cachedRaw, 30*time.Second).Return(nil),
		)

		got, err := svc.Stats(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
	})

	t.Run("cache outage degrades to repository", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		runs := mocks.NewMockJobRunRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)
		svc, err := NewJobRunService(JobRunServiceOptions{Runs: runs, Cache: cache})
		require.NoError(t, err)

		cache.EXPECT().Get(gomock.Any(), statsVersionKey).Return(nil, errors.New("redis down"))
		runs.EXPECT().Stats(gomock.Any(), opts).Return(cached, nil)

		got, err := svc.Stats(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, cached, got)
	})

	t.Run("repository error is returned", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		runs := mocks.NewMockJobRunRepository(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)
		svc, err := NewJobRunService(JobRunServiceOptions{Runs: runs, Cache: cache})
		require.NoError(t, err)

		cache.EXPECT().Get(gomock.Any(), statsVersionKey).Return(nil, nil)
		cache.EXPECT().Get(gomock.Any(), "job_runs:stats:v0:1735689600:-").Return(nil, nil)
		runs.EXPECT().Stats(gomock.Any(), opts).Return(nil, errors.New("query failed"))

		_, err = svc.Stats(context.Background(), opts)
		assert.EqualError(t, err, "query failed")
	})
}

func TestJobRunService_InvalidateStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	cache := mocks.NewMockCacheRepository(ctrl)
	svc, err := NewJobRunService(JobRunServiceOptions{Runs: testutil.NewMemoryRunRepo(nil), Cache: cache})
	require.NoError(t, err)

	cache.EXPECT().Incr(gomock.Any(), statsVersionKey).Return(int64(4), nil)
	svc.InvalidateStats(context.Background())

	cache.EXPECT().Incr(gomock.Any(), statsVersionKey).Return(int64(0), errors.New("redis down"))
	svc.InvalidateStats(context.Background())

	var nilSvc *JobRunService
	assert.NotPanics(t, func() { nilSvc.InvalidateStats(context.Background()) })
}
