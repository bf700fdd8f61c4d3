package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch pipeline metrics.
var (
	MessagesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_created_total",
			Help: "Message creation attempts during send, by result",
		},
		[]string{"result"}, // created, exists, error
	)

	MessagesEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_enqueued_total",
			Help: "Total number of messages enqueued, by queue backend",
		},
		[]string{"backend"},
	)

	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_delivery_attempts_total",
			Help: "Delivery attempts by outcome",
		},
		[]string{"outcome"}, // success, transient, error
	)

	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_processed_total",
			Help: "Queue items finished by the worker pool, by final status",
		},
		[]string{"status"}, // sent, failed, requeued, dropped
	)

	MessageProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_message_processing_duration_seconds",
			Help:    "Time spent processing one queue item including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_active_workers",
			Help: "Number of running delivery workers",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
