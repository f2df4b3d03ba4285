// monitor/monitor.go
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectedPlayers    prometheus.Gauge
	ActiveRooms         prometheus.Gauge
	CommandsReceived    *prometheus.CounterVec
	CommandsRejected    *prometheus.CounterVec
	RoundsResolved      *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
	CommandLatency      prometheus.Histogram
}

func NewMetrics(namespace string, reg prometheus.Registerer, startTime time.Time) *Metrics {
	m := &Metrics{
		ConnectedPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_players",
			Help:      "Number of connected players",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_received_total",
			Help:      "Total number of room commands received",
		}, []string{"command"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Room commands rejected, by error code",
		}, []string{"code"}),
		RoundsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Rounds resolved, by reason",
		}, []string{"reason"}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Final score writes that failed",
		}),
		CommandLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_latency_seconds",
			Help:      "Room command processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(
		m.ConnectedPlayers,
		m.ActiveRooms,
		m.CommandsReceived,
		m.CommandsRejected,
		m.RoundsResolved,
		m.PersistenceFailures,
		m.CommandLatency,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the server started",
		}, func() float64 { return time.Since(startTime).Seconds() }),
	)

	return m
}

// Monitor is what the room engine reports into. A nil *Monitor is valid and records nothing.
type Monitor struct {
	metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewMonitor registers on a private registry so several instances can live in one process.
func NewMonitor(namespace string) *Monitor {
	reg := prometheus.NewRegistry()
	return &Monitor{
		metrics:  NewMetrics(namespace, reg, time.Now()),
		gatherer: reg,
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) IncConnectedPlayers() {
	if m == nil {
		return
	}
	m.metrics.ConnectedPlayers.Inc()
}

func (m *Monitor) DecConnectedPlayers() {
	if m == nil {
		return
	}
	m.metrics.ConnectedPlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	if m == nil {
		return
	}
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncCommand(name string) {
	if m == nil {
		return
	}
	m.metrics.CommandsReceived.WithLabelValues(name).Inc()
}

func (m *Monitor) IncRejected(code string) {
	if m == nil {
		return
	}
	m.metrics.CommandsRejected.WithLabelValues(code).Inc()
}

func (m *Monitor) IncRoundResolved(reason string) {
	if m == nil {
		return
	}
	m.metrics.RoundsResolved.WithLabelValues(reason).Inc()
}

func (m *Monitor) IncPersistenceFailure() {
	if m == nil {
		return
	}
	m.metrics.PersistenceFailures.Inc()
}

func (m *Monitor) ObserveCommandLatency(duration time.Duration) {
	if m == nil {
		return
	}
	m.metrics.CommandLatency.Observe(duration.Seconds())
}
