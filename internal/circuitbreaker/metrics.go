package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GuardTradable is 1 while the wallet balance allows dispatch.
	GuardTradable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_balance_guard_tradable",
		Help: "Whether the balance guard allows dispatch (1=tradable, 0=halted)",
	})

	GuardBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_balance_guard_balance_usdc",
		Help: "Last checked USDC balance",
	})

	GuardHaltThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_balance_guard_halt_threshold_usdc",
		Help: "Balance below which dispatch halts",
	})

	GuardResumeThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_balance_guard_resume_threshold_usdc",
		Help: "Balance at or above which dispatch resumes",
	})

	GuardAvgStake = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_balance_guard_avg_stake_usdc",
		Help: "Rolling average stake of recent fills",
	})

	GuardStateChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_balance_guard_state_changes_total",
		Help: "Times the guard switched between tradable and halted",
	})

	GuardCheckDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polymarket_balance_guard_check_duration_seconds",
		Help:    "Time taken to check the wallet balance",
		Buckets: prometheus.DefBuckets,
	})
)
