package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the hub.
// Pass to components that need to record metrics.
type Metrics struct {
	ProvidersConnected prometheus.Gauge
	FrontendsConnected prometheus.Gauge
	FramesTotal        *prometheus.CounterVec
	ToolCallsTotal     *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ProvidersConnected: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpbridge",
				Name:      "hub_providers_connected",
				Help:      "Number of provider bridges currently connected",
			},
		),
		FrontendsConnected: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpbridge",
				Name:      "hub_frontends_connected",
				Help:      "Number of frontend clients currently connected",
			},
		),
		FramesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Name:      "hub_frames_total",
				Help:      "Total frames relayed through the hub",
			},
			[]string{"direction"}, // direction=from_provider/from_frontend
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpbridge",
				Name:      "hub_tool_calls_total",
				Help:      "Total tools/call requests routed by the hub",
			},
			[]string{"provider", "status"}, // status=routed/unknown_tool/no_provider
		),
		RefreshDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mcpbridge",
				Name:      "hub_refresh_duration_seconds",
				Help:      "Duration of provider tool list refreshes",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}
