package data

import (
	"sync"
	"time"
)

// TimeProvider supplies the current time so repositories and services can be tested deterministically.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// FixedTimeProvider returns a settable time. It is safe for concurrent use.
type FixedTimeProvider struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedTimeProvider creates a new FixedTimeProvider at t.
func NewFixedTimeProvider(t time.Time) *FixedTimeProvider {
	return &FixedTimeProvider{t: t}
}

// Now returns the fixed time.
func (f *FixedTimeProvider) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// SetTime updates the fixed time.
func (f *FixedTimeProvider) SetTime(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// AddTime advances the fixed time by d.
func (f *FixedTimeProvider) AddTime(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}
