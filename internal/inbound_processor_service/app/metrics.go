package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "inbound",
			Name:      "webhooks_received_total",
			Help:      "Raw webhook payloads consumed from NATS, by subject.",
		},
		[]string{"subject"},
	)

	eventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "inbound",
			Name:      "events_processed_total",
			Help:      "Inbound events by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	unparseableWebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "inbound",
			Name:      "unparseable_webhooks_total",
			Help:      "Webhook payloads that could not be parsed, by provider.",
		},
		[]string{"provider"},
	)

	eventProcessingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "inbound",
			Name:      "event_processing_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)
