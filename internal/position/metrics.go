package position

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PositionsOpen tracks currently open positions.
	PositionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_positions_open",
		Help: "Number of open positions",
	})

	// PositionsOpenedTotal tracks opened positions by opportunity type.
	PositionsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_positions_opened_total",
			Help: "Total number of positions opened",
		},
		[]string{"type"},
	)

	// PositionsClosedTotal tracks closed positions by exit reason.
	PositionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_positions_closed_total",
			Help: "Total number of positions closed",
		},
		[]string{"reason"},
	)

	// RealizedPnLUSD tracks P&L booked by closed positions.
	RealizedPnLUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_positions_realized_pnl_usd",
		Help: "Cumulative realized P&L of closed positions in USD",
	})

	// MonitorDurationSeconds tracks one monitor pass.
	MonitorDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_positions_monitor_duration_seconds",
		Help:    "Duration of a position monitor pass",
		Buckets: prometheus.DefBuckets,
	})
)
