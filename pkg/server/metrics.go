package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's prometheus instruments. Each server owns its
// own registry so tests can run several instances in one process.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	registryFullTotal prometheus.Counter
	commandsTotal     *prometheus.CounterVec
	broadcastsTotal   prometheus.Counter
	broadcastFailures prometheus.Counter
	transferBytes     *prometheus.CounterVec
	transferFailures  prometheus.Counter
}

// NewMetrics creates and registers the server instruments
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "salond_active_sessions",
			Help: "Number of currently connected sessions",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salond_sessions_total",
			Help: "Total sessions accepted since start",
		}),
		registryFullTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salond_registry_full_total",
			Help: "Connections rejected because the registry was at capacity",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salond_commands_total",
			Help: "Protocol commands handled, by command name",
		}, []string{"command"}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salond_broadcasts_total",
			Help: "Messages fanned out to salon members",
		}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salond_broadcast_failures_total",
			Help: "Per-peer write failures during broadcast delivery",
		}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salond_transfer_bytes_total",
			Help: "File transfer payload bytes, by direction",
		}, []string{"direction"}),
		transferFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "salond_transfer_failures_total",
			Help: "File transfers aborted before the announced byte count",
		}),
	}

	registry.MustRegister(
		m.activeSessions,
		m.sessionsTotal,
		m.registryFullTotal,
		m.commandsTotal,
		m.broadcastsTotal,
		m.broadcastFailures,
		m.transferBytes,
		m.transferFailures,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this server's registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordActiveSessions sets the active session gauge
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated counts an accepted session
func (m *Metrics) RecordSessionCreated() {
	m.sessionsTotal.Inc()
}

// RecordRegistryFull counts a capacity rejection
func (m *Metrics) RecordRegistryFull() {
	m.registryFullTotal.Inc()
}

// RecordCommand counts a handled command
func (m *Metrics) RecordCommand(command string) {
	m.commandsTotal.WithLabelValues(command).Inc()
}

// RecordBroadcast counts one fan-out delivery attempt set
func (m *Metrics) RecordBroadcast() {
	m.broadcastsTotal.Inc()
}

// RecordBroadcastFailure counts a skipped peer during broadcast
func (m *Metrics) RecordBroadcastFailure() {
	m.broadcastFailures.Inc()
}

// RecordTransferBytes counts transferred payload bytes
func (m *Metrics) RecordTransferBytes(direction string, n int64) {
	m.transferBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordTransferFailure counts an aborted transfer
func (m *Metrics) RecordTransferFailure() {
	m.transferFailures.Inc()
}
