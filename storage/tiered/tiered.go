// Package tiered provides a Hot/Cold tiered storage adapter that orchestrates
// fast ephemeral storage (Hot) with durable persistent storage (Cold).
// Cold is the source of truth for entitlements and for the webhook event log.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory) for high-frequency reads
	Hot entitlement.Storage

	// Cold is the L2 persistence storage (e.g., Postgres, Firestore) as the source of truth
	Cold entitlement.Storage

	// AsyncHotSync enables non-blocking refresh of Hot after Cold writes.
	// If false, Hot is refreshed before the write returns.
	AsyncHotSync bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when a Hot write fails.
	// Essential for monitoring consistency drift.
	AsyncErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered storage architecture:
// - Read-Through: entitlements and subscription lookups (Hot → Cold)
// - Write-Through: entitlements and customer ids (Cold → Hot)
// - Cold-Authoritative: webhook event log, mirrored to Hot for fast duplicate checks
type Storage struct {
	hot  entitlement.Storage
	cold entitlement.Storage
	conf Config

	// Channel for async synchronization
	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncHotSync {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncHotSync {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background synchronization loop.
// Jobs run sequentially so Hot sees Cold writes in order.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil {
					s.reportError(fmt.Errorf("tiered sync failed: %w", err))
				}
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						_ = job() //nolint:errcheck // Best effort during shutdown
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) reportError(err error) {
	if s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(err)
	}
}

// syncHot runs a Hot write inline or on the async queue.
func (s *Storage) syncHot(ctx context.Context, job func(ctx context.Context) error) {
	if !s.conf.AsyncHotSync {
		if err := job(ctx); err != nil {
			s.reportError(fmt.Errorf("tiered storage: hot write failed: %w", err))
		}
		return
	}

	select {
	case s.syncQueue <- func() error {
		// Background context so the refresh completes after the request ends
		return job(context.Background())
	}:
	default:
		s.reportError(errors.New("tiered storage: sync queue full, dropping hot write"))
	}
}

// refreshHot copies the Cold record of a user into Hot.
func (s *Storage) refreshHot(ctx context.Context, userID string) {
	s.syncHot(ctx, func(ctx context.Context) error {
		ent, err := s.cold.GetEntitlement(ctx, userID)
		if err != nil {
			return err
		}
		return s.hot.SetEntitlement(ctx, ent)
	})
}

// --- Strategy: Read-Through (Hot → Cold → Populate Hot) ---

// GetEntitlement implements entitlement.Storage with read-through strategy.
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	// 1. Try Hot
	ent, err := s.hot.GetEntitlement(ctx, userID)
	if err == nil {
		return ent, nil
	}

	// 2. Try Cold (Source of Truth)
	ent, err = s.cold.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot (Read-Repair)
	_ = s.hot.SetEntitlement(ctx, ent) //nolint:errcheck // Cache fill - errors are non-critical

	return ent, nil
}

// FindUserBySubscription implements entitlement.Storage with read-through strategy.
func (s *Storage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	userID, err := s.hot.FindUserBySubscription(ctx, subscriptionID)
	if err == nil && userID != "" {
		return userID, nil
	}

	userID, err = s.cold.FindUserBySubscription(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	s.refreshHot(ctx, userID)
	return userID, nil
}

// --- Strategy: Write-Through (Cold → Hot) ---
// Hot is refreshed from Cold so it carries the values Cold kept.

// CreateEntitlement implements entitlement.Storage with write-through strategy.
func (s *Storage) CreateEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if err := s.cold.CreateEntitlement(ctx, ent); err != nil {
		return err
	}
	s.refreshHot(ctx, ent.UserID)
	return nil
}

// SetEntitlement implements entitlement.Storage with write-through strategy.
func (s *Storage) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	// 1. Write Cold (Durability)
	if err := s.cold.SetEntitlement(ctx, ent); err != nil {
		return err
	}
	// 2. Refresh Hot (Availability)
	s.refreshHot(ctx, ent.UserID)
	return nil
}

// SetCustomerID implements entitlement.Storage with write-through strategy.
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	stored, err := s.cold.SetCustomerID(ctx, userID, customerID)
	if err != nil {
		return "", err
	}
	s.refreshHot(ctx, userID)
	return stored, nil
}

// --- Strategy: Cold-Authoritative ---
// The event log needs a durable uniqueness check; Hot only short-circuits repeats.

// HasProcessedEvent implements entitlement.Storage. A Hot hit is trusted; a miss
// falls through to Cold.
func (s *Storage) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	if seen, err := s.hot.HasProcessedEvent(ctx, eventID); err == nil && seen {
		return true, nil
	}
	return s.cold.HasProcessedEvent(ctx, eventID)
}

// RecordProcessedEvent implements entitlement.Storage. Only the Cold insert
// decides whether the event is new.
func (s *Storage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	if err := s.cold.RecordProcessedEvent(ctx, eventID); err != nil {
		return err
	}
	s.syncHot(ctx, func(ctx context.Context) error {
		err := s.hot.RecordProcessedEvent(ctx, eventID)
		if errors.Is(err, entitlement.ErrEventAlreadyRecorded) {
			return nil
		}
		return err
	})
	return nil
}

// Ping implements entitlement.Storage. Cold must be reachable; a Hot failure
// is reported but does not fail the check.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.cold.Ping(ctx); err != nil {
		return err
	}
	if err := s.hot.Ping(ctx); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot ping failed: %w", err))
	}
	return nil
}

var _ entitlement.Storage = (*Storage)(nil)
