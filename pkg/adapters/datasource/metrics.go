package datasource

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pool manager's prometheus collectors.
type Metrics struct {
	poolsCreated prometheus.Counter
	poolsActive  prometheus.Gauge
	borrows      *prometheus.CounterVec
	borrowWait   prometheus.Histogram
	discarded    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ekaya_workspace",
			Name:      "pools_created_total",
			Help:      "Connection pools created, one per distinct fingerprint activation.",
		}),
		poolsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ekaya_workspace",
			Name:      "pools_active",
			Help:      "Connection pools currently registered.",
		}),
		borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ekaya_workspace",
			Name:      "pool_borrows_total",
			Help:      "Connection borrows by result (ok, exhausted, error).",
		}, []string{"result"}),
		borrowWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ekaya_workspace",
			Name:      "pool_borrow_wait_seconds",
			Help:      "Time spent waiting for a connection.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ekaya_workspace",
			Name:      "pool_connections_discarded_total",
			Help:      "Connections closed on release because their last use failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.poolsCreated, m.poolsActive, m.borrows, m.borrowWait, m.discarded)
	}
	return m
}

func (m *Metrics) observeBorrow(result string, wait time.Duration) {
	if m == nil {
		return
	}
	m.borrows.WithLabelValues(result).Inc()
	m.borrowWait.Observe(wait.Seconds())
}

func (m *Metrics) connectionDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) poolCreated() {
	if m == nil {
		return
	}
	m.poolsCreated.Inc()
	m.poolsActive.Inc()
}

func (m *Metrics) poolRemoved() {
	if m == nil {
		return
	}
	m.poolsActive.Dec()
}
