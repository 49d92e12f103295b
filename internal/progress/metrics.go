package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dandantas/pijob/internal/compute"
)

const metricsPrefix = "pijob_"

var stepsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: metricsPrefix + "steps_completed_total",
		Help: "Number of job steps completed",
	},
	[]string{"job_name"},
)

var currentValue = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: metricsPrefix + "current_value",
		Help: "Most recent scaled value reported by a job",
	},
	[]string{"job_name"},
)

var droppedEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: metricsPrefix + "progress_events_dropped_total",
		Help: "Progress events discarded because a sink buffer was full",
	},
	[]string{"job_name"},
)

var runsFinished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: metricsPrefix + "runs_finished_total",
		Help: "Number of runs that reached a terminal state",
	},
	[]string{"job_name", "state"},
)

var runDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    metricsPrefix + "run_duration_seconds",
		Help:    "Wall-clock duration of finished runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	},
	[]string{"job_name", "state"},
)

// MetricsSink exports progress as Prometheus series labelled by job name.
type MetricsSink struct{}

func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

func (MetricsSink) Observe(event compute.ProgressEvent) {
	stepsCompleted.WithLabelValues(event.JobName).Inc()
	currentValue.WithLabelValues(event.JobName).Set(event.Value)
}

// RecordOutcome counts a finished run and its duration.
func (MetricsSink) RecordOutcome(out compute.Outcome) {
	runsFinished.WithLabelValues(out.JobName, string(out.State)).Inc()
	runDuration.WithLabelValues(out.JobName, string(out.State)).Observe(out.Elapsed.Seconds())
}
