// Package metrics объявляет метрики Prometheus сервиса. Все метрики регистрируются
// в реестре по умолчанию и отдаются на /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal число обработанных HTTP-запросов.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "code"},
	)

	// HTTPRequestDuration длительность HTTP-запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "code"},
	)

	// WebhookEventsTotal webhook-события по исходу обработки.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	// CheckoutSessionsTotal попытки создать сессию оплаты по результату.
	CheckoutSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout session creation attempts by result.",
		},
		[]string{"result"},
	)

	// ExpiredCheckoutsTotal сессии оплаты, помеченные истёкшими.
	ExpiredCheckoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_sessions_expired_total",
			Help: "Checkout sessions moved to expired by the janitor.",
		},
	)
)
