// Package metrics holds aquabot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_webhook_events_total",
			Help: "Webhook deliveries by resource and status",
		},
		[]string{"resource", "status"},
	)

	WebhookQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aquabot_webhook_queue_dropped_total",
			Help: "Webhook events dropped because the engine queue was full",
		},
	)

	RuleOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_rule_outcomes_total",
			Help: "Admin rule decisions by rule and outcome",
		},
		[]string{"rule", "outcome"},
	)

	ClientMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_client_messages_total",
			Help: "Client lifecycle messages by class and outcome",
		},
		[]string{"class", "outcome"},
	)

	ConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_confirmations_total",
			Help: "Record confirmation attempts by outcome",
		},
		[]string{"outcome"},
	)

	YclientsRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aquabot_yclients_request_duration_seconds",
			Help:    "Booking API call latency by operation and result",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aquabot_notifications_total",
			Help: "Outbound chat messages by channel and result",
		},
		[]string{"channel", "result"},
	)

	PendingLinksGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aquabot_pending_links",
			Help: "Pending client links seen by the last recheck run",
		},
	)
)

func init() {
	prometheus.MustRegister(
		WebhookEventsTotal,
		WebhookQueueDropped,
		RuleOutcomesTotal,
		ClientMessagesTotal,
		ConfirmationsTotal,
		YclientsRequestDuration,
		NotificationsTotal,
		PendingLinksGauge,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures one operation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }

// ObserveDuration records the elapsed seconds on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
