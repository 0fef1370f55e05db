package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_total",
			Help: "Total campaign messages attempted, by outcome",
		},
		[]string{"outcome"}, // "sent" or "failed"
	)

	CampaignsDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_campaigns_total",
			Help: "Total campaigns dispatched to completion",
		},
	)

	QuotaRefusals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_quota_refusals_total",
			Help: "Total campaign dispatches refused by the quota guard",
		},
	)

	// Webhook ingestion metrics
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events by kind and staging outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "staged", "duplicate", "rejected"
	)

	// Aggregator metrics
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_sweep_duration_seconds",
			Help:    "Duration of one aggregator sweep",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	SweepMerged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregate_rows_merged_total",
			Help: "Staged rows folded into conversation summaries",
		},
	)

	// Notification metrics
	NotificationsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_published_total",
			Help: "Agent notifications published to the realtime channel",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Agent notifications that could not be published",
		},
	)
)
