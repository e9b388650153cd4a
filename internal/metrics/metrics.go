// Package metrics exposes the engine's Prometheus collectors. Label sets
// are bounded: platforms, event types, and alert types are closed unions,
// and API paths are recorded as route templates, never raw URLs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BetsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_bets_ingested_total",
		Help: "Bets persisted, by platform",
	}, []string{"platform"})

	AdapterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_adapter_errors_total",
		Help: "Adapter fetch and subscription errors, by platform",
	}, []string{"platform"})

	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_signals_generated_total",
		Help: "Smart-money signals published, by platform",
	}, []string{"platform"})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_alerts_created_total",
		Help: "Gaming alerts raised, by type and severity",
	}, []string{"type", "severity"})

	BusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_bus_events_total",
		Help: "Events emitted on the internal bus, by type",
	}, []string{"type"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthplane_websocket_clients",
		Help: "Connected WebSocket subscribers",
	})

	ActiveAdapters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "truthplane_active_adapters",
		Help: "Adapters with a live subscription",
	})

	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "truthplane_backtest_runs_total",
		Help: "Backtest executions, by cache outcome",
	}, []string{"cache"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "truthplane_api_request_duration_seconds",
		Help:    "REST request latency, by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware instruments every request with the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		APIRequestDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
