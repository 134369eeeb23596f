package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RejectionsTotal tracks opportunities rejected by the risk gate.
	RejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_risk_rejections_total",
			Help: "Total number of opportunities rejected by risk checks",
		},
		[]string{"reason"},
	)

	// ApprovalsTotal tracks approved trades.
	ApprovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_risk_approvals_total",
		Help: "Total number of opportunities approved for execution",
	})

	// ExposureUSD tracks capital currently committed to open or pending positions.
	ExposureUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_exposure_usd",
		Help: "Total committed exposure in USD",
	})

	// OpenPositions tracks the number of live reservations.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_open_positions",
		Help: "Number of open or pending positions",
	})

	// RealizedPnLUSD tracks cumulative realized profit and loss.
	RealizedPnLUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_realized_pnl_usd",
		Help: "Cumulative realized P&L in USD",
	})

	// DrawdownRatio tracks the current peak-to-trough drawdown.
	DrawdownRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_drawdown_ratio",
		Help: "Current drawdown as a fraction of peak capital",
	})

	// BreakerTripped is 1 while the drawdown breaker blocks trading.
	BreakerTripped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_risk_breaker_tripped",
		Help: "Whether the drawdown circuit breaker is tripped (1 = tripped, 0 = armed)",
	})

	// BreakerTripsTotal counts breaker trips.
	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_risk_breaker_trips_total",
		Help: "Total number of drawdown circuit breaker trips",
	})
)
