package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the console's counters on a private registry so the
// exposition endpoint never leaks process-default collectors from linked
// packages.
type Metrics struct {
	registry *prometheus.Registry

	IncidentsIngested *prometheus.CounterVec // channel: push | pull
	DecodeFailures    prometheus.Counter
	Notices           prometheus.Counter
	SuppressedAlerts  prometheus.Counter
	Evictions         prometheus.Counter
	Reconnects        prometheus.Counter
	PullFailures      prometheus.Counter

	StoreSize       prometheus.Gauge
	ConnectionState prometheus.Gauge // State enum ordinal
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		IncidentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_incidents_ingested_total",
			Help: "Incidents added to the store, by delivery channel.",
		}, []string{"channel"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_decode_failures_total",
			Help: "Frames or snapshots discarded as undecodable.",
		}),
		Notices: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_notices_total",
			Help: "Degraded informational messages surfaced.",
		}),
		SuppressedAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_suppressed_alerts_total",
			Help: "Registry updates suppressed as re-delivery of an ongoing condition.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_store_evictions_total",
			Help: "Incidents evicted by the store capacity bound.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_reconnects_total",
			Help: "Push channel reconnect attempts scheduled.",
		}),
		PullFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_pull_failures_total",
			Help: "Pull cycles skipped due to fetch or decode failure.",
		}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_store_size",
			Help: "Current incident count in the store.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_connection_state",
			Help: "Push channel state (0 connecting, 1 connected, 2 disconnected, 3 errored).",
		}),
	}

	reg.MustRegister(
		m.IncidentsIngested,
		m.DecodeFailures,
		m.Notices,
		m.SuppressedAlerts,
		m.Evictions,
		m.Reconnects,
		m.PullFailures,
		m.StoreSize,
		m.ConnectionState,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
