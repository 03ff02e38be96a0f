package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/target/hrm-scheduler/internal/core"
	"github.com/target/hrm-scheduler/internal/data"
	"github.com/target/hrm-scheduler/internal/domain/catalog"
	"github.com/target/hrm-scheduler/internal/domain/model"
	"github.com/target/hrm-scheduler/internal/observability/statsd"
	"github.com/target/hrm-scheduler/internal/testutil"
)

// kolkata is the organisation timezone used across service tests.
func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

// testClock returns a fixed clock at 2025-01-10 15:30 IST.
func testClock(t *testing.T) (OrgClock, *data.FixedTimeProvider) {
	t.Helper()
	tp := data.NewFixedTimeProvider(testutil.TestTime())
	return OrgClock{Location: kolkata(t), TimeProvider: tp}, tp
}

func seedSuccess(repo *testutil.MemoryRunRepo, name, periodKey string, startedAt time.Time) {
	repo.Seed(model.JobRun{
		JobName:     name,
		Status:      model.RunStatusSuccess,
		StartedAt:   startedAt,
		TriggeredBy: model.TriggeredBySystem,
		PeriodKey:   periodKey,
	})
}

// callLog records handler invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// stubHandler returns a handler that logs its call and answers with res and err.
func stubHandler(log *callLog, name catalog.JobName, res *core.HandlerResult, err error) core.JobHandler {
	return core.JobHandlerFunc(func(context.Context, catalog.Params) (*core.HandlerResult, error) {
		if log != nil {
			log.add(string(name))
		}
		return res, err
	})
}

type engineConfig struct {
	catalog  *catalog.Catalog
	timeout  time.Duration
	handlers map[catalog.JobName]core.JobHandler
}

type engineOption func(*engineConfig)

func withCatalog(c *catalog.Catalog) engineOption {
	return func(cfg *engineConfig) { cfg.catalog = c }
}

func withTimeout(d time.Duration) engineOption {
	return func(cfg *engineConfig) { cfg.timeout = d }
}

func withHandler(name catalog.JobName, h core.JobHandler) engineOption {
	return func(cfg *engineConfig) { cfg.handlers[name] = h }
}

// engine wires the full trigger stack over an in-memory job log.
type engine struct {
	repo         *testutil.MemoryRunRepo
	tp           *data.FixedTimeProvider
	clock        OrgClock
	guard        *ConcurrencyGuard
	metrics      *statsd.Recorder
	registry     *HandlerRegistry
	recorder     *RunRecorder
	orchestrator *Orchestrator
	trigger      *TriggerService
	calls        *callLog
}

// newEngine builds the stack. Every catalog job without an explicit handler gets a
// succeeding stub that reports {"processed": 1}.
func newEngine(t *testing.T, opts ...engineOption) *engine {
	t.Helper()
	cfg := &engineConfig{catalog: catalog.Default(), handlers: map[catalog.JobName]core.JobHandler{}}
	for _, o := range opts {
		o(cfg)
	}

	e := &engine{guard: NewConcurrencyGuard(), metrics: statsd.NewRecorder(), calls: &callLog{}}
	e.clock, e.tp = testClock(t)
	e.repo = testutil.NewMemoryRunRepo(e.tp.Now)

	handlers := make(map[catalog.JobName]core.JobHandler)
	for _, def := range cfg.catalog.List() {
		if def.IsGroup() {
			continue
		}
		if h, ok := cfg.handlers[def.Name]; ok {
			handlers[def.Name] = h
			continue
		}
		handlers[def.Name] = stubHandler(e.calls, def.Name, &core.HandlerResult{Payload: map[string]any{"processed": 1}}, nil)
	}

	var err error
	e.registry, err = NewHandlerRegistry(HandlerRegistryOptions{Catalog: cfg.catalog, Handlers: handlers})
	require.NoError(t, err)
	e.recorder, err = NewRunRecorder(RunRecorderOptions{Runs: e.repo, Metrics: e.metrics, Clock: e.clock})
	require.NoError(t, err)
	e.orchestrator, err = NewOrchestrator(OrchestratorOptions{
		Catalog:    cfg.catalog,
		Handlers:   e.registry,
		Guard:      e.guard,
		Recorder:   e.recorder,
		Clock:      e.clock,
		JobTimeout: cfg.timeout,
	})
	require.NoError(t, err)

	checkOpts := PeriodCheckerOptions{Catalog: cfg.catalog, Runs: e.repo, Clock: e.clock}
	deps, err := NewDependencyValidator(checkOpts)
	require.NoError(t, err)
	idem, err := NewIdempotencyChecker(checkOpts)
	require.NoError(t, err)

	e.trigger, err = NewTriggerService(TriggerServiceOptions{
		Catalog:      cfg.catalog,
		Handlers:     e.registry,
		Orchestrator: e.orchestrator,
		Guard:        e.guard,
		Dependencies: deps,
		Idempotency:  idem,
		Recorder:     e.recorder,
		Clock:        e.clock,
		JobTimeout:   cfg.timeout,
		Metrics:      e.metrics,
	})
	require.NoError(t, err)
	return e
}

func heldKeys(held []HeldKey) []string {
	keys := make([]string, 0, len(held))
	for _, h := range held {
		keys = append(keys, h.Key)
	}
	return keys
}
