package statsd

import (
	"maps"
	"sync"
	"time"
)

// Sample is one recorded metric.
type Sample struct {
	Name     string
	Value    float64
	Duration time.Duration
	Tags     map[string]string
}

// Recorder is an in-memory Sink for tests and local debugging.
type Recorder struct {
	mu      sync.Mutex
	counts  []Sample
	gauges  []Sample
	timings []Sample
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Count implements Sink.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, Sample{Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

// Gauge implements Sink.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges = append(r.gauges, Sample{Name: name, Value: value, Tags: maps.Clone(tags)})
}

// Timing implements Sink.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings = append(r.timings, Sample{Name: name, Duration: value, Tags: maps.Clone(tags)})
}

// Counts returns recorded counters.
func (r *Recorder) Counts() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.counts...)
}

// Gauges returns recorded gauges.
func (r *Recorder) Gauges() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.gauges...)
}

// Timings returns recorded timings.
func (r *Recorder) Timings() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.timings...)
}

// CountsNamed returns the counters recorded under name.
func (r *Recorder) CountsNamed(name string) []Sample {
	var out []Sample
	for _, s := range r.Counts() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
