package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects refresh and command outcomes for one account. A nil
// *Metrics is valid and records nothing, which keeps tests free of registry
// setup.
type Metrics struct {
	refreshTotal    prometheus.Counter
	refreshFailures prometheus.Counter
	lastRefresh     prometheus.Gauge
	connectedMowers prometheus.Gauge
	commandTotal    *prometheus.CounterVec
	commandFailures *prometheus.CounterVec
}

// NewMetrics creates the metric set for one account.
func NewMetrics(account string) *Metrics {
	labels := prometheus.Labels{"account": account}
	return &Metrics{
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zcsmower",
			Name:        "refresh_total",
			Help:        "Refresh cycles attempted.",
			ConstLabels: labels,
		}),
		refreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "zcsmower",
			Name:        "refresh_failures_total",
			Help:        "Refresh cycles that failed.",
			ConstLabels: labels,
		}),
		lastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zcsmower",
			Name:        "last_refresh_timestamp_seconds",
			Help:        "Unix time of the last successful refresh.",
			ConstLabels: labels,
		}),
		connectedMowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zcsmower",
			Name:        "connected_mowers",
			Help:        "Mowers reported connected in the current snapshot.",
			ConstLabels: labels,
		}),
		commandTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "zcsmower",
			Name:        "commands_total",
			Help:        "Remote commands dispatched.",
			ConstLabels: labels,
		}, []string{"method"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "zcsmower",
			Name:        "command_failures_total",
			Help:        "Remote commands that failed.",
			ConstLabels: labels,
		}, []string{"method"}),
	}
}

// Collectors returns everything to register with a prometheus registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.refreshTotal,
		m.refreshFailures,
		m.lastRefresh,
		m.connectedMowers,
		m.commandTotal,
		m.commandFailures,
	}
}

func (m *Metrics) recordRefreshSuccess(connected int) {
	if m == nil {
		return
	}
	m.refreshTotal.Inc()
	m.lastRefresh.Set(float64(time.Now().Unix()))
	m.connectedMowers.Set(float64(connected))
}

func (m *Metrics) recordRefreshFailure() {
	if m == nil {
		return
	}
	m.refreshTotal.Inc()
	m.refreshFailures.Inc()
}

func (m *Metrics) recordCommand(method string, ok bool) {
	if m == nil {
		return
	}
	m.commandTotal.WithLabelValues(method).Inc()
	if !ok {
		m.commandFailures.WithLabelValues(method).Inc()
	}
}
