package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the dispatch queue.
//
// Metrics:
//   - offload_packages_submitted_total - packages accepted into the queue
//   - offload_packages_rejected_total - submissions refused because the queue was full
//   - offload_packages_finished_total{status,decision} - packages reaching a terminal state
//   - offload_stage_failures_total{stage} - per-stage package failures
//   - offload_queue_depth - packages waiting behind the one in progress
//   - offload_generation_duration_seconds{model} - generation call latency
//   - offload_package_duration_seconds - claim to terminal state
type Metrics struct {
	Submitted          prometheus.Counter
	Rejected           prometheus.Counter
	Finished           *prometheus.CounterVec
	StageFailures      *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
	GenerationDuration *prometheus.HistogramVec
	PackageDuration    prometheus.Histogram
}

// NewMetrics creates the queue metrics and registers them on reg. A nil
// reg registers on a private registry, so independent queues never clash.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	buckets := []float64{1, 5, 15, 30, 60, 120, 300, 600}
	return &Metrics{
		Submitted: f.NewCounter(prometheus.CounterOpts{
			Name: "offload_packages_submitted_total",
			Help: "Total number of work packages accepted into the queue",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Name: "offload_packages_rejected_total",
			Help: "Total number of submissions rejected because the queue was full",
		}),
		Finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_packages_finished_total",
			Help: "Total number of work packages reaching a terminal state",
		}, []string{"status", "decision"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "offload_stage_failures_total",
			Help: "Total number of package failures by pipeline stage",
		}, []string{"stage"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "offload_queue_depth",
			Help: "Number of packages waiting in the queue",
		}),
		GenerationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "offload_generation_duration_seconds",
			Help:    "Duration of generation calls in seconds",
			Buckets: buckets,
		}, []string{"model"}),
		PackageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "offload_package_duration_seconds",
			Help:    "Duration from claim to terminal state in seconds",
			Buckets: buckets,
		}),
	}
}
