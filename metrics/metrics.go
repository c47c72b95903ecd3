package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/testharbor/testharbor/types"
)

const (
	MetricsNamespace = "harbor"
)

var (
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors by kind",
	}, []string{
		"error",
	})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "executions_total",
		Help:      "Count of completed executions by status",
	}, []string{
		"status",
	})

	activeExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "active_executions",
		Help:      "Number of executions currently running",
	})

	queuedExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "queued_executions",
		Help:      "Number of executions waiting for a free slot",
	})

	executionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "execution_duration_seconds",
		Help:      "Wall-clock duration of test executions",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	artifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "artifacts_collected_total",
		Help:      "Count of artifacts moved to durable storage",
	}, []string{
		"kind",
	})

	streamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "stream_connections",
		Help:      "Number of live streaming connections",
	})
)

// RecordError increments the error counter for the given error kind.
func RecordError(kind string) {
	errorsTotal.WithLabelValues(kind).Inc()
}

// RecordExecution records a completed execution and its duration.
func RecordExecution(status types.ExecutionStatus, duration time.Duration) {
	executionsTotal.WithLabelValues(string(status)).Inc()
	executionDuration.Observe(duration.Seconds())
}

// RecordActive updates the running-execution gauge.
func RecordActive(n int) {
	activeExecutions.Set(float64(n))
}

// RecordQueued updates the queue-depth gauge.
func RecordQueued(n int) {
	queuedExecutions.Set(float64(n))
}

// RecordArtifact counts one artifact of the given kind.
func RecordArtifact(kind types.ArtifactKind) {
	artifactsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordStreamConnections updates the live-connection gauge.
func RecordStreamConnections(n int) {
	streamConnections.Set(float64(n))
}
