package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "dispatcher",
			Name:      "messages_sent_total",
			Help:      "Outbound send attempts by final provider and status.",
		},
		[]string{"provider", "status"},
	)

	fallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "dispatcher",
			Name:      "fallback_total",
			Help:      "Sends retried on the fallback provider, by primary provider and error kind.",
		},
		[]string{"from_provider", "error_kind"},
	)

	sendDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "dispatcher",
			Name:      "send_duration_seconds",
			Help:      "Duration of provider send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)
