package ranker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilteredTotal tracks opportunities dropped by the ranking filters.
	FilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_ranker_filtered_total",
			Help: "Total number of opportunities filtered out before ranking",
		},
		[]string{"reason"},
	)

	// RankedTotal tracks opportunities that survived filtering.
	RankedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_ranker_ranked_total",
		Help: "Total number of opportunities ranked",
	})
)
