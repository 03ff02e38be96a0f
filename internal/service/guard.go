package service

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// ConcurrencyGuard is the in-process set of job invocation keys currently executing.
// Scheduled and manual triggers share one guard so the same job and period never overlap.
type ConcurrencyGuard struct {
	mu      sync.Mutex
	running map[string]time.Time
}

// NewConcurrencyGuard returns an empty guard.
func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{running: make(map[string]time.Time)}
}

// TryAcquire atomically claims key. It returns false when key is already held.
func (g *ConcurrencyGuard) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.running[key]; held {
		return false
	}
	g.running[key] = time.Now()
	return true
}

// Release frees key. Releasing a key that is not held is a no-op.
func (g *ConcurrencyGuard) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, key)
}

// HeldKey is a claimed invocation key and when it was acquired.
type HeldKey struct {
	Key   string    `json:"key"`
	Since time.Time `json:"since"`
}

// Running returns the held keys sorted by key.
func (g *ConcurrencyGuard) Running() []HeldKey {
	g.mu.Lock()
	defer g.mu.Unlock()
	held := make([]HeldKey, 0, len(g.running))
	for k, since := range g.running {
		held = append(held, HeldKey{Key: k, Since: since})
	}
	slices.SortFunc(held, func(a, b HeldKey) int { return strings.Compare(a.Key, b.Key) })
	return held
}
