// Package metrics declares the Prometheus collectors of the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	QuoteTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_transitions_total",
		Help: "Quote status transitions applied, by action.",
	}, []string{"action"})

	InvoicesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_created_total",
		Help: "Invoices derived from accepted quotes.",
	})

	InvoicesOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_overdue_total",
		Help: "Invoices moved to en_retard by the overdue sweep.",
	})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_clients",
		Help: "Open notification websockets on this instance.",
	})
)
