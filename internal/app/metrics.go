package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanCyclesTotal counts scan cycles by outcome.
	ScanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_scan_cycles_total",
			Help: "Scan cycles by outcome",
		},
		[]string{"outcome"},
	)

	ScanDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polymarket_scan_duration_seconds",
			Help:    "End-to-end duration of a successful scan cycle",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	OpportunitiesRaw = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_opportunities_raw",
			Help: "Detector output of the last cycle before aggregation",
		},
	)

	OpportunitiesRanked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "polymarket_opportunities_ranked",
			Help: "Opportunities that survived aggregation and ranking in the last cycle",
		},
	)

	// DispatchTotal counts ranked opportunities by what the pipeline did with them.
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_dispatch_total",
			Help: "Ranked opportunities by dispatch outcome",
		},
		[]string{"outcome"},
	)
)
