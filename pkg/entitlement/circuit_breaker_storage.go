package entitlement

import (
	"context"
	"errors"
)

// CircuitBreakerStorage wraps a Storage implementation with circuit breaker protection.
type CircuitBreakerStorage struct {
	storage Storage
	cb      CircuitBreaker
}

// NewCircuitBreakerStorage creates a new storage wrapper with circuit breaker.
func NewCircuitBreakerStorage(storage Storage, cb CircuitBreaker) *CircuitBreakerStorage {
	return &CircuitBreakerStorage{
		storage: storage,
		cb:      cb,
	}
}

func isDomainOutcome(err error) bool {
	return errors.Is(err, ErrEntitlementNotFound) ||
		errors.Is(err, ErrEventAlreadyRecorded) ||
		errors.Is(err, ErrInvalidEntitlement) ||
		errors.Is(err, ErrInvalidEventID)
}

func (s *CircuitBreakerStorage) GetEntitlement(ctx context.Context, userID string) (*Entitlement, error) {
	var ent *Entitlement
	err := s.cb.Execute(ctx, func() error {
		var e error
		ent, e = s.storage.GetEntitlement(ctx, userID)
		return e
	})
	return ent, err
}

func (s *CircuitBreakerStorage) CreateEntitlement(ctx context.Context, ent *Entitlement) error {
	return s.cb.Execute(ctx, func() error {
		return s.storage.CreateEntitlement(ctx, ent)
	})
}

func (s *CircuitBreakerStorage) SetEntitlement(ctx context.Context, ent *Entitlement) error {
	return s.cb.Execute(ctx, func() error {
		return s.storage.SetEntitlement(ctx, ent)
	})
}

func (s *CircuitBreakerStorage) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	var stored string
	err := s.cb.Execute(ctx, func() error {
		var e error
		stored, e = s.storage.SetCustomerID(ctx, userID, customerID)
		return e
	})
	return stored, err
}

func (s *CircuitBreakerStorage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	var userID string
	err := s.cb.Execute(ctx, func() error {
		var e error
		userID, e = s.storage.FindUserBySubscription(ctx, subscriptionID)
		return e
	})
	return userID, err
}

func (s *CircuitBreakerStorage) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := s.cb.Execute(ctx, func() error {
		var e error
		seen, e = s.storage.HasProcessedEvent(ctx, eventID)
		return e
	})
	return seen, err
}

func (s *CircuitBreakerStorage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	return s.cb.Execute(ctx, func() error {
		return s.storage.RecordProcessedEvent(ctx, eventID)
	})
}

func (s *CircuitBreakerStorage) Ping(ctx context.Context) error {
	return s.cb.Execute(ctx, func() error {
		return s.storage.Ping(ctx)
	})
}
