package entitlement

import "time"

// Metrics defines the interface for tracking entitlement operations.
type Metrics interface {
	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)

	// RecordReconcile records a reconciled entitlement and whether it ended premium.
	RecordReconcile(status string, premium bool)

	// RecordDuplicateEvent records a webhook event that was already processed.
	RecordDuplicateEvent()
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                               {}
func (n *NoopMetrics) RecordReconcile(status string, premium bool)                                {}
func (n *NoopMetrics) RecordDuplicateEvent()                                                      {}
