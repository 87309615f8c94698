package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the Prometheus collectors exported on /metrics. Each instance
// carries its own registry so independent servers never collide on
// registration.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestCounter  *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	SalesRecorded   prometheus.Counter
	InvoicesIssued  prometheus.Counter
	InvoicesUpdated *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gestor_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		SalesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gestor_sales_recorded_total",
				Help: "Total number of sales recorded",
			},
		),
		InvoicesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gestor_invoices_issued_total",
				Help: "Total number of invoices issued",
			},
		),
		InvoicesUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gestor_invoice_status_updates_total",
				Help: "Total number of invoice lifecycle transitions",
			},
			[]string{"status"},
		),
	}

	m.Registry.MustRegister(collectors.NewGoCollector())
	m.Registry.MustRegister(m.RequestCounter, m.RequestLatency, m.SalesRecorded, m.InvoicesIssued, m.InvoicesUpdated)
	return m
}
