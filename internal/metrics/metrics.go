package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sbp_http_requests_total", Help: "HTTP requests by method, route and status."},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "sbp_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	// ChargesTotal counts create_charge outcomes: success, reused, upstream_error,
	// config_error, rejected.
	ChargesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sbp_charges_total", Help: "Charge creation attempts by outcome."},
		[]string{"outcome"},
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "sbp_provider_request_duration_seconds", Help: "Payment API request latency in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10}},
		[]string{"status"},
	)

	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sbp_webhooks_total", Help: "Webhook deliveries by outcome."},
		[]string{"outcome"},
	)
	// WebhooksUnverified counts deliveries accepted without an HMAC check
	// because the merchant has no secret key.
	WebhooksUnverified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sbp_webhook_unverified_total", Help: "Webhook deliveries trusted without signature verification."},
		[]string{"merchant_id"},
	)
	OrdersTransitioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sbp_orders_transitioned_total", Help: "Order status transitions applied by webhooks."},
		[]string{"status"},
	)
)

var regOnce sync.Once

func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			ChargesTotal,
			ProviderLatency,
			WebhooksTotal,
			WebhooksUnverified,
			OrdersTransitioned,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
