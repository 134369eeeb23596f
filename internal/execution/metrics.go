package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal tracks individual order placement attempts.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_execution_orders_total",
			Help: "Total number of order placement attempts",
		},
		[]string{"mode", "outcome"},
	)

	// FillsTotal tracks execution attempts by final status.
	FillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_execution_fills_total",
			Help: "Total number of executions by final fill status",
		},
		[]string{"mode", "status"},
	)

	// RetriesTotal tracks transient-failure retries.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_execution_retries_total",
		Help: "Total number of order placement retries",
	})

	// ExecutionDurationSeconds tracks execution latency.
	ExecutionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_execution_duration_seconds",
			Help:    "Duration of trade execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// ExecutionErrorsTotal tracks execution failures.
	ExecutionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_execution_errors_total",
			Help: "Total number of execution errors",
		},
		[]string{"mode", "kind"},
	)

	// QueueDepth tracks jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_execution_queue_depth",
		Help: "Number of execution jobs waiting in the queue",
	})

	// QueueRejectedTotal tracks jobs rejected because the queue was full.
	QueueRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_execution_queue_rejected_total",
		Help: "Total number of execution jobs rejected due to a full queue",
	})

	// ActiveWorkers tracks workers currently executing a job.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polymarket_execution_active_workers",
		Help: "Number of workers currently executing",
	})
)
