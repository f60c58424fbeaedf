package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder exports per-agent pipeline counters to Prometheus.
type PromRecorder struct {
	registry   *prometheus.Registry
	attempts   *prometheus.CounterVec
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPromRecorder registers the pipeline collectors plus the Go and process
// collectors on a private registry.
func NewPromRecorder() *PromRecorder {
	reg := prometheus.NewRegistry()
	r := &PromRecorder{
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgen",
			Subsystem: "agent",
			Name:      "attempts_total",
			Help:      "Provider or store calls made by each agent, retries included.",
		}, []string{"agent"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgen",
			Subsystem: "agent",
			Name:      "operations_total",
			Help:      "Finished agent operations by outcome.",
		}, []string{"agent", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealgen",
			Subsystem: "agent",
			Name:      "operation_duration_seconds",
			Help:      "Wall-clock time of agent operations including retries.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"agent"}),
	}
	reg.MustRegister(
		r.attempts,
		r.operations,
		r.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *PromRecorder) ObserveAttempt(agent string) {
	r.attempts.WithLabelValues(agent).Inc()
}

func (r *PromRecorder) ObserveOperation(agent string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.operations.WithLabelValues(agent, outcome).Inc()
	r.duration.WithLabelValues(agent).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *PromRecorder) Registry() *prometheus.Registry {
	return r.registry
}
