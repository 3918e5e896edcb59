package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MapSessionsActive     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_ops", Name: "map_sessions_active", Help: "Number of mounted map sessions"})
	MapLayersRendered     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_ops", Name: "map_layers_rendered", Help: "Layers drawn per render pass", Buckets: prometheus.ExponentialBuckets(1, 2, 10)})
	StalePassengerFetches = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_ops", Name: "stale_passenger_fetches_total", Help: "Passenger lists dropped because the selection changed"})

	MatchScansTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_ops", Name: "match_scans_total", Help: "Total number of site request match scans"})
	MatchScanLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_ops", Name: "match_scan_latency_seconds", Help: "Match scan latency seconds"})
	IndexedTrips     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_ops", Name: "indexed_trips", Help: "Open trips written to the geo index by the last reindex"})

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_ops", Name: "provider_calls_total", Help: "Calls to external providers"},
		[]string{"provider", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_ops", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_ops",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome maps an error to the provider outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
