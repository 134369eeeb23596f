package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConflictsTotal tracks opportunities dropped because another one took the opposite view.
	ConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_aggregator_conflicts_total",
		Help: "Total number of conflicting opportunity groups resolved",
	})

	// MergesTotal tracks groups of agreeing opportunities merged into one.
	MergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_aggregator_merges_total",
		Help: "Total number of agreeing opportunity groups merged",
	})
)
