// Package metrics holds the Prometheus collectors of the portal.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "speechhelp"

var (
	// LoginsTotal counts password logins by audience and outcome.
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Password logins by audience (admin/user) and outcome.",
	}, []string{"audience", "outcome"})

	// TOTPVerificationsTotal counts second-factor checks by method and outcome.
	TOTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "totp_verifications_total",
		Help:      "Second-factor verifications by method (totp/backup_code) and outcome.",
	}, []string{"method", "outcome"})

	// SpeechCreationsTotal counts speech creation attempts by outcome.
	SpeechCreationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "speech_creations_total",
		Help:      "Speech creation attempts by outcome (created or a denial code).",
	}, []string{"outcome"})

	// WebhookEventsTotal counts Stripe webhook deliveries by event type and result.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stripe",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and result.",
	}, []string{"event_type", "result"})

	// RateLimitRejectionsTotal counts requests refused by the login limiter.
	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected by the rate limiter by scope.",
	}, []string{"scope"})

	// EntitlementCacheTotal counts entitlement snapshot lookups by result.
	EntitlementCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entitlement_cache_total",
		Help:      "Entitlement snapshot lookups by result (hit/miss).",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
