// Package metrics exposes prometheus collectors for the trading core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VenueCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "atrbot_venue_calls_total", Help: "Exchange gateway calls by operation and outcome"},
		[]string{"op", "outcome"},
	)
	VenueLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "atrbot_venue_call_seconds", Help: "Exchange gateway call latency", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "atrbot_orders_total", Help: "Orders submitted"},
		[]string{"symbol", "type", "outcome"},
	)
	Entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "atrbot_entries_total", Help: "Entry attempts by outcome"},
		[]string{"symbol", "outcome"},
	)
	Unprotected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "atrbot_unprotected_positions", Help: "Open positions missing a bracket order"},
		[]string{"symbol"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "atrbot_open_positions", Help: "Positions currently open"},
	)
)

func init() {
	prometheus.MustRegister(VenueCalls, VenueLatency, OrdersTotal, Entries, Unprotected, OpenPositions)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
