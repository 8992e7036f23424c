// Package metrics defines the Prometheus instruments exported on /metrics.
//
// Readings:
//   - hvac_readings_total{result}: accepted, rejected, requeued
//   - hvac_sensors_tracked: sensors with detection state
//
// Incidents:
//   - hvac_incidents_total{type}
//   - hvac_sweeps_total
//
// Dispatch:
//   - hvac_deliveries_total{collaborator,result}: ok, error, breaker_open
//   - hvac_delivery_duration_seconds{collaborator}
//   - hvac_dispatch_dropped_total
//   - hvac_dispatch_queue_depth
//   - circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
//
// Alerting:
//   - hvac_status_polls_total{state}
//   - hvac_alerts_issued_total
//
// Source:
//   - hvac_source_connected: 1 while the reading source is connected
//   - hvac_source_reconnects_total
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reading results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultRequeued = "requeued"
)

// Delivery results.
const (
	DeliveryOK          = "ok"
	DeliveryError       = "error"
	DeliveryBreakerOpen = "breaker_open"
)

var (
	ReadingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_readings_total",
			Help: "Readings consumed from the source, by result",
		},
		[]string{"result"},
	)

	SensorsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hvac_sensors_tracked",
			Help: "Number of sensors with detection state",
		},
	)

	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_incidents_total",
			Help: "Incidents emitted, by type",
		},
		[]string{"type"},
	)

	SweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_sweeps_total",
			Help: "Silence sweeps performed",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_deliveries_total",
			Help: "Incident deliveries to collaborators, by result",
		},
		[]string{"collaborator", "result"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hvac_delivery_duration_seconds",
			Help:    "Collaborator delivery latency",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"collaborator"},
	)

	DispatchDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_dispatch_dropped_total",
			Help: "Incidents dropped because the dispatch queue was full",
		},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hvac_dispatch_queue_depth",
			Help: "Incidents waiting for delivery",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	StatusPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hvac_status_polls_total",
			Help: "Status polls performed, by classified state",
		},
		[]string{"state"},
	)

	AlertsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_alerts_issued_total",
			Help: "ALARM snapshots that passed de-duplication",
		},
	)

	SourceConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hvac_source_connected",
			Help: "1 while the reading source is connected",
		},
	)

	SourceReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hvac_source_reconnects_total",
			Help: "Reading source reconnect attempts",
		},
	)
)

// SetConnected records reading source connectivity.
func SetConnected(connected bool) {
	if connected {
		SourceConnected.Set(1)
		return
	}
	SourceConnected.Set(0)
}
