// Package memory provides an in-memory implementation of the entitlement.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Storage implements entitlement.Storage using in-memory maps
type Storage struct {
	mu           sync.RWMutex
	entitlements map[string]*entitlement.Entitlement
	events       map[string]time.Time
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		entitlements: make(map[string]*entitlement.Entitlement),
		events:       make(map[string]time.Time),
	}
}

// GetEntitlement implements entitlement.Storage
func (s *Storage) GetEntitlement(_ context.Context, userID string) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		return nil, entitlement.ErrEntitlementNotFound
	}

	// Return a copy to prevent external mutations
	return ent.Clone(), nil
}

// CreateEntitlement implements entitlement.Storage
func (s *Storage) CreateEntitlement(_ context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entitlements[ent.UserID]; !ok {
		s.entitlements[ent.UserID] = ent.Clone()
	}
	return nil
}

// SetEntitlement implements entitlement.Storage
func (s *Storage) SetEntitlement(_ context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	entCopy := ent.Clone()
	if existing, ok := s.entitlements[ent.UserID]; ok && existing.CustomerID != "" {
		entCopy.CustomerID = existing.CustomerID
	}
	s.entitlements[ent.UserID] = entCopy
	return nil
}

// SetCustomerID implements entitlement.Storage
func (s *Storage) SetCustomerID(_ context.Context, userID, customerID string) (string, error) {
	if userID == "" {
		return "", entitlement.ErrInvalidEntitlement
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entitlements[userID]
	if !ok {
		ent = entitlement.Default(userID, time.Now().UTC())
		s.entitlements[userID] = ent
	}
	if ent.CustomerID == "" {
		ent.CustomerID = customerID
		ent.UpdatedAt = time.Now().UTC()
	}
	return ent.CustomerID, nil
}

// FindUserBySubscription implements entitlement.Storage
func (s *Storage) FindUserBySubscription(_ context.Context, subscriptionID string) (string, error) {
	if subscriptionID == "" {
		return "", entitlement.ErrEntitlementNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for userID, ent := range s.entitlements {
		if ent.SubscriptionID == subscriptionID {
			return userID, nil
		}
	}
	return "", entitlement.ErrEntitlementNotFound
}

// HasProcessedEvent implements entitlement.Storage
func (s *Storage) HasProcessedEvent(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.events[eventID]
	return ok, nil
}

// RecordProcessedEvent implements entitlement.Storage
func (s *Storage) RecordProcessedEvent(_ context.Context, eventID string) error {
	if eventID == "" {
		return entitlement.ErrInvalidEventID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; ok {
		return entitlement.ErrEventAlreadyRecorded
	}
	s.events[eventID] = time.Now().UTC()
	return nil
}

// Ping implements entitlement.Storage
func (s *Storage) Ping(_ context.Context) error {
	return nil
}

// EventCount returns the number of recorded webhook events.
func (s *Storage) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
