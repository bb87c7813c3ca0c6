// Package metrics instruments the orchestration/activity work-item loop
// with Prometheus counters and histograms, so an operator can alert on
// abandon-rate spikes or rising processing latency without tailing logs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the instrumentation surface backend.TaskWorker reports
// through. Nothing in backend depends on Prometheus directly: Recorder is
// an interface so a worker can be built with NoopRecorder in tests.
type Recorder interface {
	WorkItemFetched(processor string)
	WorkItemProcessed(processor string, d time.Duration)
	WorkItemFailed(processor string)
	WorkItemAbandoned(processor string)
}

// PrometheusRecorder is the shipped Recorder, registering its metrics
// against reg (pass prometheus.DefaultRegisterer to use the global
// registry; this runtime's other ambient-stack choices are also
// single-tenant per process).
type PrometheusRecorder struct {
	fetched   *prometheus.CounterVec
	processed *prometheus.HistogramVec
	failed    *prometheus.CounterVec
	abandoned *prometheus.CounterVec
}

// NewPrometheusRecorder registers and returns a PrometheusRecorder.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		fetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "durabletask",
			Subsystem: "worker",
			Name:      "work_items_fetched_total",
			Help:      "Work items dequeued from the backend, by processor.",
		}, []string{"processor"}),
		processed: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "durabletask",
			Subsystem: "worker",
			Name:      "work_item_duration_seconds",
			Help:      "Time spent processing a work item end to end, by processor.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"processor"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "durabletask",
			Subsystem: "worker",
			Name:      "work_items_failed_total",
			Help:      "Work items whose processing returned an error, by processor.",
		}, []string{"processor"}),
		abandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "durabletask",
			Subsystem: "worker",
			Name:      "work_items_abandoned_total",
			Help:      "Work items released back to the backend for retry, by processor.",
		}, []string{"processor"}),
	}
}

func (r *PrometheusRecorder) WorkItemFetched(processor string) {
	r.fetched.WithLabelValues(processor).Inc()
}

func (r *PrometheusRecorder) WorkItemProcessed(processor string, d time.Duration) {
	r.processed.WithLabelValues(processor).Observe(d.Seconds())
}

func (r *PrometheusRecorder) WorkItemFailed(processor string) {
	r.failed.WithLabelValues(processor).Inc()
}

func (r *PrometheusRecorder) WorkItemAbandoned(processor string) {
	r.abandoned.WithLabelValues(processor).Inc()
}

// NoopRecorder discards every observation; it is the default when a
// TaskWorker is built without metrics.NewPrometheusRecorder, and is handy
// in tests that don't want a global registry side effect.
type NoopRecorder struct{}

func (NoopRecorder) WorkItemFetched(string)                  {}
func (NoopRecorder) WorkItemProcessed(string, time.Duration) {}
func (NoopRecorder) WorkItemFailed(string)                   {}
func (NoopRecorder) WorkItemAbandoned(string)                {}
