package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GammaRequestsTotal tracks Gamma API requests by path and status.
	GammaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_feed_gamma_requests_total",
			Help: "Total number of Gamma API requests",
		},
		[]string{"path", "status"},
	)

	// GammaRequestDurationSeconds tracks Gamma API latency.
	GammaRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_feed_gamma_request_duration_seconds",
			Help:    "Duration of Gamma API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	// SnapshotDurationSeconds tracks building one scan snapshot.
	SnapshotDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_feed_snapshot_duration_seconds",
		Help:    "Duration of snapshot construction",
		Buckets: prometheus.DefBuckets,
	})

	// SnapshotErrorsTotal tracks failed snapshots.
	SnapshotErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_feed_snapshot_errors_total",
		Help: "Total number of failed snapshot builds",
	})

	// SnapshotMarkets is the market count of the latest snapshot.
	SnapshotMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_feed_snapshot_markets",
		Help: "Number of markets in the latest snapshot",
	})

	// SnapshotEvents is the multi-outcome event count of the latest snapshot.
	SnapshotEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_feed_snapshot_events",
		Help: "Number of multi-outcome events in the latest snapshot",
	})

	// StreamPricesTotal tracks streamed price updates stored.
	StreamPricesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_feed_stream_prices_total",
			Help: "Total number of streamed price updates",
		},
		[]string{"event_type"},
	)

	// StreamOverlaysTotal tracks snapshot prices replaced by fresher streamed ones.
	StreamOverlaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_feed_stream_overlays_total",
		Help: "Total number of market prices overlaid from the price stream",
	})
)
