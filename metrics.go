package transitions

import (
	"sync"
	"time"
)

// MetricsRecorder receives trigger timing and outcome signals. Recording
// happens synchronously at the end of each invocation, so implementations
// should be cheap or hand off internally.
type MetricsRecorder interface {
	RecordDuration(name string, duration time.Duration)
	RecordError(name string)
	RecordSuccess(name string)
}

// InMemoryMetricsRecorder aggregates per-trigger counters. Useful in tests
// and for lightweight diagnostics.
type InMemoryMetricsRecorder struct {
	mu        sync.Mutex
	successes map[string]int64
	errors    map[string]int64
	durations map[string]time.Duration
}

// NewInMemoryMetricsRecorder constructs an empty recorder.
func NewInMemoryMetricsRecorder() *InMemoryMetricsRecorder {
	return &InMemoryMetricsRecorder{
		successes: make(map[string]int64),
		errors:    make(map[string]int64),
		durations: make(map[string]time.Duration),
	}
}

func (r *InMemoryMetricsRecorder) RecordDuration(name string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[name] += duration
}

func (r *InMemoryMetricsRecorder) RecordError(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[name]++
}

func (r *InMemoryMetricsRecorder) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes[name]++
}

// Successes returns the success count recorded for name.
func (r *InMemoryMetricsRecorder) Successes(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes[name]
}

// Errors returns the error count recorded for name.
func (r *InMemoryMetricsRecorder) Errors(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors[name]
}

// TotalDuration returns the accumulated duration recorded for name.
func (r *InMemoryMetricsRecorder) TotalDuration(name string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durations[name]
}
