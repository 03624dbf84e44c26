package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by method (password|code|sso) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackback_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// TenantResolutions counts hostname-to-organization lookups by mode and outcome.
	TenantResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackback_tenant_resolutions_total",
			Help: "Total number of tenant resolution attempts",
		},
		[]string{"mode", "result"},
	)

	// PostsCreated counts feedback posts created per organization.
	PostsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackback_posts_created_total",
			Help: "Total number of feedback posts created",
		},
		[]string{"org"},
	)

	// VotesRecorded counts vote and unvote operations.
	VotesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackback_votes_total",
			Help: "Total number of vote operations",
		},
		[]string{"op"},
	)

	// WebhookDeliveries counts outbound webhook deliveries by result (success|failure|blocked).
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quackback_webhook_deliveries_total",
			Help: "Total number of outbound webhook delivery attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quackback_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quackback_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
