package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpportunitiesTotal tracks opportunities emitted per variant.
	OpportunitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_detector_opportunities_total",
			Help: "Total number of opportunities emitted by detector",
		},
		[]string{"detector"},
	)

	// FailuresTotal tracks variants whose output was dropped for a cycle.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_detector_failures_total",
			Help: "Total number of detector runs dropped due to error or panic",
		},
		[]string{"detector", "reason"},
	)

	// SkippedMarketsTotal tracks markets skipped for invalid data.
	SkippedMarketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_detector_skipped_markets_total",
			Help: "Total number of markets skipped due to missing or boundary fields",
		},
		[]string{"field"},
	)

	// RunDurationSeconds tracks per-variant latency.
	RunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_detector_run_duration_seconds",
			Help:    "Duration of a single detector run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"detector"},
	)
)
