// Package metrics exposes bgq's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzbill/bgq/internal/eventbus"
)

// Metrics holds every collector, registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	// TasksAdded counts persisted tasks by type.
	TasksAdded *prometheus.CounterVec
	// TasksDiscarded counts tasks deleted without delivery, by reason.
	TasksDiscarded *prometheus.CounterVec
	// QueueDepth is the inventory size after the last add or pass.
	QueueDepth prometheus.Gauge
	// Passes counts finished queue passes.
	Passes prometheus.Counter
	// PassTasks counts per-pass task dispositions.
	PassTasks *prometheus.CounterVec
	// PassDuration observes how long passes take.
	PassDuration prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration prometheus.Histogram

	StorageDuration *prometheus.HistogramVec
	StorageBytes    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TasksAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgq_tasks_added_total",
			Help: "Total number of tasks persisted.",
		}, []string{"type"}),
		TasksDiscarded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgq_tasks_discarded_total",
			Help: "Total number of tasks deleted without delivery.",
		}, []string{"reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "bgq_queue_depth",
			Help: "Number of tasks in the queue.",
		}),
		Passes: f.NewCounter(prometheus.CounterOpts{
			Name: "bgq_queue_passes_total",
			Help: "Total number of queue passes.",
		}),
		PassTasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgq_queue_pass_tasks_total",
			Help: "Tasks handled by queue passes, by disposition.",
		}, []string{"disposition"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgq_queue_pass_duration_seconds",
			Help:    "Duration of queue passes in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgq_http_requests_total",
			Help: "HTTP attempts by outcome and status code.",
		}, []string{"outcome", "code"}),
		HTTPRequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgq_http_request_duration_seconds",
			Help:    "Duration of HTTP attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		StorageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgq_storage_op_duration_seconds",
			Help:    "Duration of storage operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		StorageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgq_storage_bytes_total",
			Help: "Bytes read from or written to storage.",
		}, []string{"op"}),
	}
}

// ObserveRequest records one HTTP attempt.
func (m *Metrics) ObserveRequest(outcome string, status int, elapsed time.Duration) {
	code := "none"
	if status != 0 {
		code = strconv.Itoa(status)
	}
	m.HTTPRequests.WithLabelValues(outcome, code).Inc()
	m.HTTPRequestDuration.Observe(elapsed.Seconds())
}

// ObserveWrite records a single-key write.
func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.StorageDuration.WithLabelValues("write").Observe(elapsed.Seconds())
	m.StorageBytes.WithLabelValues("write").Add(float64(bytes))
}

// ObserveRead records a single-key read.
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.StorageDuration.WithLabelValues("read").Observe(elapsed.Seconds())
	m.StorageBytes.WithLabelValues("read").Add(float64(bytes))
}

// ObserveBatchCommit records a batch commit.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.StorageDuration.WithLabelValues("batch_commit").Observe(elapsed.Seconds())
	m.StorageBytes.WithLabelValues("batch_commit").Add(float64(bytes))
}

// Subscribe feeds queue events from bus into the collectors. Close the
// returned subscriptions to stop.
func (m *Metrics) Subscribe(bus *eventbus.Bus) []*eventbus.Subscription {
	return []*eventbus.Subscription{
		eventbus.Subscribe(bus, func(e eventbus.TaskAdded) {
			m.TasksAdded.WithLabelValues(e.Type).Inc()
			m.QueueDepth.Set(float64(e.Depth))
		}),
		eventbus.Subscribe(bus, func(e eventbus.QueueRunCompleted) {
			m.Passes.Inc()
			m.PassTasks.WithLabelValues("attempted").Add(float64(e.Attempted))
			m.PassTasks.WithLabelValues("skipped").Add(float64(e.Skipped))
			m.PassTasks.WithLabelValues("deleted").Add(float64(e.Deleted))
			m.PassDuration.Observe(e.Duration.Seconds())
			m.QueueDepth.Set(float64(e.Remaining))
		}),
		eventbus.Subscribe(bus, func(e eventbus.TaskDiscarded) {
			m.TasksDiscarded.WithLabelValues(e.Reason).Inc()
		}),
	}
}
