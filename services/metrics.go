package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	finalized          prometheus.Counter
	settled            *prometheus.CounterVec
	verificationErrors prometheus.Counter
	ledgerWrites       *prometheus.CounterVec
	tickDuration       prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "finalized_total",
			Help:      "Prize pools locked in by the finalizer",
		}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "settled_total",
			Help:      "Tournaments settled by outcome",
		}, []string{"outcome"}),
		verificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "verification_errors_total",
			Help:      "Verification calls that failed and left the tournament pending",
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Ledger transaction attempts by type and result",
		}, []string{"type", "result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "settlement",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one finalize+settle tick",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.finalized, m.settled, m.verificationErrors, m.ledgerWrites, m.tickDuration)
	return m
}

func (m *Metrics) PoolFinalized() {
	if m == nil {
		return
	}
	m.finalized.Inc()
}

func (m *Metrics) Settled(outcome string) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VerificationFailed() {
	if m == nil {
		return
	}
	m.verificationErrors.Inc()
}

func (m *Metrics) LedgerWrite(txType, result string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(txType, result).Inc()
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}
