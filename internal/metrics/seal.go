package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SealMetrics holds metrics related to the seal workflow.
type SealMetrics struct {
	// RunsTotal tracks seal workflow runs broken down by outcome.
	// Labels: outcome (sealed, retry, rejected, failure)
	RunsTotal *prometheus.CounterVec

	// RunLatency tracks the wall-clock duration of a single workflow run,
	// broken down by outcome. A run that suspends on open transactions
	// counts as its own sample; the next delivery is a new run.
	RunLatency *prometheus.HistogramVec

	// AbortRequestsTotal tracks individual transaction abort requests
	// issued by the sweep, broken down by result.
	// Labels: result (requested, raced, failed)
	AbortRequestsTotal *prometheus.CounterVec

	// SegmentsSealed tracks the total number of segments the workflow has
	// asked the storage tier to seal. Repeated runs over the same stream
	// re-count segments that were still unsealed.
	SegmentsSealed prometheus.Counter
}

// Seal run outcome label values.
const (
	OutcomeSealed   = "sealed"
	OutcomeRetry    = "retry"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// Abort sweep result label values.
const (
	AbortRequested = "requested"
	AbortRaced     = "raced"
	AbortFailed    = "failed"
)

// DefaultSealLatencyBuckets are latency buckets for seal workflow runs.
// A run spans several metadata round trips plus one storage tier call,
// so buckets range from milliseconds to tens of seconds.
var DefaultSealLatencyBuckets = []float64{
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
	30.0,  // 30s
}

// NewSealMetrics creates and registers seal workflow metrics.
// Uses promauto for automatic registration with the default registry.
func NewSealMetrics() *SealMetrics {
	return &SealMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "seal",
				Name:      "runs_total",
				Help:      "Total number of seal workflow runs, broken down by outcome.",
			},
			[]string{"outcome"},
		),
		RunLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rivulet",
				Subsystem: "seal",
				Name:      "run_latency_seconds",
				Help:      "Seal workflow run latency in seconds, broken down by outcome.",
				Buckets:   DefaultSealLatencyBuckets,
			},
			[]string{"outcome"},
		),
		AbortRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "seal",
				Name:      "abort_requests_total",
				Help:      "Total number of transaction abort requests issued by the sweep, broken down by result.",
			},
			[]string{"result"},
		),
		SegmentsSealed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "seal",
				Name:      "segments_sealed_total",
				Help:      "Total number of segments the workflow has asked the storage tier to seal.",
			},
		),
	}
}

// NewSealMetricsWithRegistry creates seal metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewSealMetricsWithRegistry(reg prometheus.Registerer) *SealMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "seal",
			Name:      "runs_total",
			Help:      "Total number of seal workflow runs, broken down by outcome.",
		},
		[]string{"outcome"},
	)

	runLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rivulet",
			Subsystem: "seal",
			Name:      "run_latency_seconds",
			Help:      "Seal workflow run latency in seconds, broken down by outcome.",
			Buckets:   DefaultSealLatencyBuckets,
		},
		[]string{"outcome"},
	)

	abortRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "seal",
			Name:      "abort_requests_total",
			Help:      "Total number of transaction abort requests issued by the sweep, broken down by result.",
		},
		[]string{"result"},
	)

	segmentsSealed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "seal",
			Name:      "segments_sealed_total",
			Help:      "Total number of segments the workflow has asked the storage tier to seal.",
		},
	)

	reg.MustRegister(runsTotal, runLatency, abortRequestsTotal, segmentsSealed)

	return &SealMetrics{
		RunsTotal:          runsTotal,
		RunLatency:         runLatency,
		AbortRequestsTotal: abortRequestsTotal,
		SegmentsSealed:     segmentsSealed,
	}
}

// RecordRun records one workflow run with its outcome and duration.
func (m *SealMetrics) RecordRun(outcome string, durationSeconds float64) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunLatency.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordAbortRequest records one abort request issued by the sweep.
func (m *SealMetrics) RecordAbortRequest(result string) {
	m.AbortRequestsTotal.WithLabelValues(result).Inc()
}

// RecordSegmentsSealed records segments handed to the storage tier for sealing.
func (m *SealMetrics) RecordSegmentsSealed(count int) {
	m.SegmentsSealed.Add(float64(count))
}
