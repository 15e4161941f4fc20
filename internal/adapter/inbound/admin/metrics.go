package admin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the admin API.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Subsystem: "admin",
				Name:      "requests_total",
				Help:      "Total number of admin API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpbridge",
				Subsystem: "admin",
				Name:      "request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		EventsPublished: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Subsystem: "admin",
				Name:      "events_published_total",
				Help:      "Endpoint change events published on the command bus",
			},
			[]string{"action"},
		),
	}
}
