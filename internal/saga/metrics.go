package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for propagation and compensation.
// All recording methods are nil-safe so tests can run without a registry.
type Metrics struct {
	PropagationAttempts    *prometheus.CounterVec
	PropagationRetries     *prometheus.CounterVec
	PropagationExhaustions *prometheus.CounterVec
	Compensations          *prometheus.CounterVec
	OperationOutcomes      *prometheus.CounterVec
}

// NewMetrics creates and registers all saga metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		PropagationAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_propagation_attempts_total",
				Help: "Total write attempts against dependent records, including retries",
			},
			[]string{"operation"},
		),
		PropagationRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_propagation_retries_total",
				Help: "Write attempts that failed and were retried",
			},
			[]string{"operation"},
		),
		PropagationExhaustions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_propagation_exhaustions_total",
				Help: "Dependent records that failed all retry attempts",
			},
			[]string{"operation"},
		),
		Compensations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_compensations_total",
				Help: "Compensation runs by result",
			},
			[]string{"operation", "result"}, // result: succeeded, failed
		),
		OperationOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_operation_outcomes_total",
				Help: "Terminal outcomes of saga operations",
			},
			[]string{"operation", "outcome"}, // outcome: success, failure
		),
	}
}

func (m *Metrics) recordAttempt(operation string) {
	if m == nil {
		return
	}
	m.PropagationAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordRetry(operation string) {
	if m == nil {
		return
	}
	m.PropagationRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordExhaustion(operation string) {
	if m == nil {
		return
	}
	m.PropagationExhaustions.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordCompensation(operation, result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(operation, result).Inc()
}

// RecordOutcome counts a terminal success or failure for an operation.
func (m *Metrics) RecordOutcome(operation string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.OperationOutcomes.WithLabelValues(operation, outcome).Inc()
}
