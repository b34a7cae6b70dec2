// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sim_notifier"

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "SIM status transitions by outcome.",
		},
		[]string{"target", "result"}, // result: "ok", "rejected", "conflict", "error"
	)

	DeliveriesFannedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_fanned_out_total",
			Help:      "Delivery records created by the event emitter.",
		},
		[]string{"event_type"},
	)

	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Webhook delivery attempts by outcome.",
		},
		[]string{"outcome"}, // "delivered", "retry", "abandoned"
	)

	DeliveryAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempt_duration_seconds",
			Help:      "Duration of outbound webhook calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	WebhooksFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_failed_total",
			Help:      "Subscriptions moved to FAILED after repeated abandonments.",
		},
	)

	DispatchQueueOverflow = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_overflow_total",
			Help:      "Delivery ids left to the poller because the dispatch queue was full.",
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Delivery ids waiting in the in-process dispatch queue.",
		},
	)

	RecoveredDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_deliveries_total",
			Help:      "Pending deliveries claimed by the recovery sweep.",
		},
	)

	SubscriptionCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_cache_lookups_total",
			Help:      "Subscription cache lookups by result.",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
