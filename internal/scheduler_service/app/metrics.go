package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remindersProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "scheduler",
			Name:      "reminders_processed_total",
			Help:      "Reminder sends by job and outcome.",
		},
		[]string{"job", "status"},
	)

	reminderBatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "scheduler",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one reminder job batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	reminderBatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "whatsapp_gateway",
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Users due in the most recent batch of each job.",
		},
		[]string{"job"},
	)
)
