// Package metrics declares the Prometheus collectors of the alarm service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Subscriber set labels.
const (
	SetMetrics = "metrics"
	SetAlarms  = "alarms"
)

var (
	// Simulation
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threshold_alarm_ticks_total",
			Help: "Total number of simulation ticks applied",
		},
	)

	MetricValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threshold_alarm_metric_value",
			Help: "Current simulated value of a metric",
		},
		[]string{"metric"},
	)

	// Alarms
	AlarmStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threshold_alarm_alarm_status",
			Help: "Alarm status per metric: 0 normal, 1 warning, 2 critical",
		},
		[]string{"metric"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_transitions_total",
			Help: "Total number of alarm status transitions",
		},
		[]string{"metric", "status"},
	)

	ThresholdUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_threshold_updates_total",
			Help: "Total number of threshold update requests",
		},
		[]string{"result"}, // result: accepted, rejected
	)

	// Fan-out
	Subscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threshold_alarm_subscribers",
			Help: "Current number of subscribers per set",
		},
		[]string{"set"},
	)

	SubscriberDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_subscriber_drops_total",
			Help: "Total number of subscribers dropped after a failed delivery",
		},
		[]string{"set"},
	)

	// Exporter
	ExportedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_exported_events_total",
			Help: "Total number of alarm events written to Kafka",
		},
		[]string{"result"}, // result: success, failed
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threshold_alarm_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
