package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total number of inbound source events by outcome",
		},
		[]string{"outcome"}, // accepted, filtered, bot, empty, malformed
	)

	TasksEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_tasks_enqueued_total",
			Help: "Total number of delivery tasks enqueued",
		},
	)

	QueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_queue_dropped_total",
			Help: "Total number of tasks dropped due to queue saturation",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of pending tasks per consumer partition",
		},
		[]string{"partition"},
	)
)

// Delivery metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of completed delivery tasks by status",
		},
		[]string{"status"}, // delivered, dead_lettered, abandoned
	)

	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_attempts_total",
			Help: "Total number of webhook delivery attempts by result",
		},
		[]string{"result"}, // ok, transient, permanent
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_seconds",
			Help:    "Duration of webhook delivery attempts",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimitWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate-limit token",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dead_lettered_total",
			Help: "Total number of tasks moved to the dead-letter store by reason",
		},
		[]string{"reason"}, // permanent, exhausted
	)
)
