package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerDBMetrics instruments the database a ledger backend stores its
// balances and allowances in.
type LedgerDBMetrics struct {
	backend string

	operations *prometheus.CounterVec
	latencies  *prometheus.HistogramVec
}

// NewLedgerDBMetrics creates the ledger database instrumentation for the
// named backend. All backends share the same collectors, labeled by backend.
func NewLedgerDBMetrics(backend string) LedgerDBMetrics {
	return LedgerDBMetrics{
		backend: backend,
		operations: registerOnce(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_db_operations",
				Help: "Ledger database operations, partitioned by backend, operation and status.",
			},
			[]string{"backend", "operation", "status"},
		)),
		latencies: registerOnce(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_db_latencies",
				Help:    "Ledger database operation latencies in seconds, partitioned by backend and operation.",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"backend", "operation"},
		)),
	}
}

// Observe starts timing a database operation. The returned function records
// its latency and counts it as a success or failure depending on err.
func (m *LedgerDBMetrics) Observe(operation string) func(err error) {
	timer := prometheus.NewTimer(m.latencies.WithLabelValues(m.backend, operation))
	return func(err error) {
		timer.ObserveDuration()
		m.operations.WithLabelValues(m.backend, operation, outcome(err)).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
