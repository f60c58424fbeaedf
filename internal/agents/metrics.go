package agents

import (
	"sync"
	"time"

	"mealgen/internal/domain"
)

// Recorder receives the same events as the registry; infra's Prometheus
// exporter implements it.
type Recorder interface {
	ObserveAttempt(agent string)
	ObserveOperation(agent string, d time.Duration, err error)
}

type agentCounters struct {
	mu sync.Mutex
	m  domain.AgentMetrics
}

// MetricsRegistry accumulates process-lifetime metrics per agent type. It is
// shared by every batch.
type MetricsRegistry struct {
	mu       sync.RWMutex
	agents   map[domain.AgentName]*agentCounters
	recorder Recorder
	now      func() time.Time
}

func NewMetricsRegistry(recorder Recorder) *MetricsRegistry {
	r := &MetricsRegistry{
		agents:   make(map[domain.AgentName]*agentCounters, len(domain.AgentNames)),
		recorder: recorder,
		now:      time.Now,
	}
	for _, name := range domain.AgentNames {
		r.agents[name] = &agentCounters{}
	}
	return r
}

func (r *MetricsRegistry) counters(name domain.AgentName) *agentCounters {
	r.mu.RLock()
	c, ok := r.agents[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.agents[name]; !ok {
		c = &agentCounters{}
		r.agents[name] = c
	}
	return c
}

// RecordAttempt counts one call into a provider or store.
func (r *MetricsRegistry) RecordAttempt(name domain.AgentName) {
	c := r.counters(name)
	c.mu.Lock()
	c.m.AttemptCount++
	c.mu.Unlock()
	if r.recorder != nil {
		r.recorder.ObserveAttempt(string(name))
	}
}

// RecordOperation counts one finished operation. A non-nil err counts as an error.
func (r *MetricsRegistry) RecordOperation(name domain.AgentName, d time.Duration, err error) {
	at := r.now().UTC()
	c := r.counters(name)
	c.mu.Lock()
	c.m.OperationCount++
	c.m.TotalDuration += d
	c.m.AverageDuration = c.m.TotalDuration / time.Duration(c.m.OperationCount)
	c.m.LastOperationAt = &at
	if err != nil {
		c.m.ErrorCount++
		c.m.LastError = err.Error()
	}
	c.mu.Unlock()
	if r.recorder != nil {
		r.recorder.ObserveOperation(string(name), d, err)
	}
}

// RecordBatch counts one fan-out call over n items and its wall-clock duration.
func (r *MetricsRegistry) RecordBatch(name domain.AgentName, n int, d time.Duration) {
	c := r.counters(name)
	c.mu.Lock()
	c.m.BatchCount++
	c.m.BatchItems += int64(n)
	c.m.BatchDuration += d
	c.mu.Unlock()
}

// Get returns a copy of one agent's metrics.
func (r *MetricsRegistry) Get(name domain.AgentName) domain.AgentMetrics {
	c := r.counters(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.m
	if out.LastOperationAt != nil {
		at := *out.LastOperationAt
		out.LastOperationAt = &at
	}
	return out
}

// Snapshot returns a copy of every agent's metrics.
func (r *MetricsRegistry) Snapshot() map[domain.AgentName]domain.AgentMetrics {
	r.mu.RLock()
	names := make([]domain.AgentName, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.RUnlock()

	out := make(map[domain.AgentName]domain.AgentMetrics, len(names))
	for _, name := range names {
		out[name] = r.Get(name)
	}
	return out
}
