package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Metrics implements entitlement.Metrics using Prometheus.
type Metrics struct {
	storageOpsDuration         *prometheus.HistogramVec
	storageOpsErrors           *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
	reconcileTotal             *prometheus.CounterVec
	duplicateEventsTotal       prometheus.Counter
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of entitlement storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "storage_operation_errors_total",
			Help:      "Total number of failed entitlement storage operations.",
		}, []string{"operation"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of storage circuit breaker state changes.",
		}, []string{"state"}),

		reconcileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "reconcile_total",
			Help:      "Total number of reconciled entitlements by provider status.",
		}, []string{"status", "premium"}),

		duplicateEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "duplicate_events_total",
			Help:      "Total number of webhook events skipped as already processed.",
		}),
	}
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordReconcile(status string, premium bool) {
	if status == "" {
		status = "none"
	}
	m.reconcileTotal.WithLabelValues(status, strconv.FormatBool(premium)).Inc()
}

func (m *Metrics) RecordDuplicateEvent() {
	m.duplicateEventsTotal.Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) entitlement.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
