package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumption metrics
	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_events_consumed_total",
			Help: "Total number of sensor reading events consumed",
		},
		[]string{"result"}, // result: success, error, dead_letter
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_event_processing_duration_seconds",
			Help:    "Time taken to process one sensor reading event",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Engine metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_alerts_created_total",
			Help: "Total number of alerts created by the rule engine",
		},
		[]string{"type"},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_worker_queue_size",
			Help: "Current number of deliveries waiting for a worker",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_worker_queue_capacity",
			Help: "Capacity of the delivery queue",
		},
	)

	DeadLetterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_dead_letter_total",
			Help: "Total number of messages routed to the dead-letter topic",
		},
		[]string{"reason"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
