// Package mocks provides gomock implementations of the core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	runs := mocks.NewMockJobRunRepository(ctrl)
//	runs.EXPECT().HasSuccess(gomock.Any(), gomock.Any()).Return(true, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_run_repository_mock.go github.com/target/hrm-scheduler/internal/core JobRunRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=run_reaper_repository_mock.go github.com/target/hrm-scheduler/internal/core RunReaperRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/hrm-scheduler/internal/core CacheRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_handler_mock.go github.com/target/hrm-scheduler/internal/core JobHandler
