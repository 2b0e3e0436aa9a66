package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Config configures a Manager.
type Config struct {
	// Metrics is used for tracking entitlement operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// CircuitBreakerConfig wraps storage in a circuit breaker when enabled
	CircuitBreakerConfig *CircuitBreakerConfig

	// Now overrides the clock (default: time.Now in UTC)
	Now func() time.Time
}

// Manager is the single entry point to entitlement state. It owns the
// de-duplication gate, the subscription resolver and the reconciler.
type Manager struct {
	storage Storage
	metrics Metrics
	logger  Logger
	now     func() time.Time
	reads   singleflight.Group
}

// NewManager creates a new entitlement manager on top of storage.
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}

	if cbc := config.CircuitBreakerConfig; cbc != nil && cbc.Enabled {
		metrics := config.Metrics
		logger := config.Logger
		cb := NewDefaultCircuitBreaker(cbc.FailureThreshold, cbc.ResetTimeout, func(state CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
			logger.Warn("storage circuit breaker state changed", Field{"state", string(state)})
		})
		storage = NewCircuitBreakerStorage(storage, cb)
	}

	return &Manager{
		storage: storage,
		metrics: config.Metrics,
		logger:  config.Logger,
		now:     config.Now,
	}, nil
}

// GetEntitlement returns the user's entitlement, creating the default
// non-premium record on first access.
func (m *Manager) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidEntitlement
	}

	ent, err := m.getEntitlement(ctx, userID)
	if err == nil {
		return ent, nil
	}
	if !errors.Is(err, ErrEntitlementNotFound) {
		return nil, err
	}

	v, err, _ := m.reads.Do(userID, func() (interface{}, error) {
		// The shared call outlives the caller that started it; other callers
		// waiting on the same user must not inherit its cancellation.
		sharedCtx := context.WithoutCancel(ctx)

		// Insert-if-absent, then re-read: a record written concurrently by a
		// webhook wins over the default.
		if err := m.timed("create_entitlement", func() error {
			return m.storage.CreateEntitlement(sharedCtx, Default(userID, m.now()))
		}); err != nil {
			return nil, fmt.Errorf("failed to create default entitlement: %w", err)
		}
		return m.getEntitlement(sharedCtx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entitlement).Clone(), nil
}

// PeekEntitlement returns the stored entitlement without creating one.
func (m *Manager) PeekEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	return m.getEntitlement(ctx, userID)
}

// SetCustomerID persists a provider customer id for the user unless one is
// already stored. It returns the id that ends up stored.
func (m *Manager) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	if userID == "" || customerID == "" {
		return "", ErrInvalidEntitlement
	}
	var stored string
	err := m.timed("set_customer_id", func() error {
		var e error
		stored, e = m.storage.SetCustomerID(ctx, userID, customerID)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("failed to set customer id: %w", err)
	}
	if stored != customerID {
		m.logger.Warn("customer id already linked, keeping stored value",
			Field{"user_id", userID},
			Field{"stored_customer_id", stored},
			Field{"new_customer_id", customerID},
		)
	}
	return stored, nil
}

// Ping checks storage health.
func (m *Manager) Ping(ctx context.Context) error {
	return m.timed("ping", func() error {
		return m.storage.Ping(ctx)
	})
}

func (m *Manager) getEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	var ent *Entitlement
	err := m.timed("get_entitlement", func() error {
		var e error
		ent, e = m.storage.GetEntitlement(ctx, userID)
		return e
	})
	if err != nil {
		return nil, err
	}
	return ent, nil
}

func (m *Manager) timed(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	if isDomainOutcome(err) {
		m.metrics.RecordStorageOperation(operation, time.Since(start), nil)
	} else {
		m.metrics.RecordStorageOperation(operation, time.Since(start), err)
	}
	return err
}
