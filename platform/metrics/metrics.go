// Package metrics exposes Prometheus instrumentation for the follow-up engine.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the executor and scheduler report into.
type Metrics struct {
	FollowupMessagesSent   *prometheus.CounterVec
	FollowupStepsDiscarded *prometheus.CounterVec
	DeliveryFailures       prometheus.Counter
	EscalationsStarted     prometheus.Counter
	EscalationsCancelled   prometheus.Counter
	DeliveryDuration       prometheus.Histogram
}

// New creates and registers the engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		FollowupMessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_messages_sent_total",
			Help: "Total number of follow-up messages delivered, by escalation tier",
		}, []string{"tier"}),
		FollowupStepsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "followup_steps_discarded_total",
			Help: "Total number of due steps discarded without sending, by reason",
		}, []string{"reason"}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "followup_delivery_failures_total",
			Help: "Total number of steps whose delivery failed after all retries",
		}),
		EscalationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "followup_escalations_started_total",
			Help: "Total number of escalation sequences started",
		}),
		EscalationsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "followup_escalations_cancelled_total",
			Help: "Total number of escalation sequences cancelled",
		}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "followup_delivery_duration_seconds",
			Help:    "Time taken to deliver a follow-up message",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
