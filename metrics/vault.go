package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics instruments vault operations.
type VaultMetrics struct {
	operations   *prometheus.CounterVec
	custodied    *prometheus.GaugeVec
	sinkFailures *prometheus.CounterVec
}

// NewDefaultVaultMetrics creates the vault metrics:
//
// 1. Counts of vault operations, partitioned by operation and outcome.
// 2. The custodied balance of each vault, in base units.
// 3. Counts of failed event deliveries, partitioned by sink.
func NewDefaultVaultMetrics(pkg string) VaultMetrics {
	metrics := VaultMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: pkg + "_operations",
				Help: "How many vault operations were attempted, partitioned by operation and outcome.",
			},
			[]string{"operation", "outcome"}, // Labels.
		),
		custodied: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: pkg + "_custodied_balance",
				Help: "Balance of the designated token held by the vault, in base units.",
			},
			[]string{"vault", "token"}, // Labels.
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: pkg + "_event_sink_failures",
				Help: "How many vault events could not be delivered, partitioned by sink.",
			},
			[]string{"sink"}, // Labels.
		),
	}
	metrics.operations = registerOnce(metrics.operations)
	metrics.custodied = registerOnce(metrics.custodied)
	metrics.sinkFailures = registerOnce(metrics.sinkFailures)
	return metrics
}

// Operations returns the counter for the given operation and outcome.
// Outcome is "success" or the name of the rejection kind.
func (m *VaultMetrics) Operations(operation string, outcome string) prometheus.Counter {
	return m.operations.WithLabelValues(operation, outcome)
}

// SetCustodied records the custodied balance of a vault.
func (m *VaultMetrics) SetCustodied(vault string, token string, balance *big.Int) {
	f, _ := new(big.Float).SetInt(balance).Float64()
	m.custodied.WithLabelValues(vault, token).Set(f)
}

// SinkFailures returns the counter of failed deliveries to the given sink.
func (m *VaultMetrics) SinkFailures(sink string) prometheus.Counter {
	return m.sinkFailures.WithLabelValues(sink)
}
