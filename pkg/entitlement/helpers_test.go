package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
	"github.com/mihaimyh/fit4seniors/storage/memory"
)

var errBoom = errors.New("boom")

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func newTestManager(t interface{ Fatalf(string, ...interface{}) }) (*entitlement.Manager, *memory.Storage) {
	storage := memory.New()
	manager, err := entitlement.NewManager(storage, entitlement.Config{
		Now: func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return manager, storage
}

// flakyStorage wraps a Storage and fails selected operations.
type flakyStorage struct {
	entitlement.Storage

	mu       sync.Mutex
	failGet  bool
	failSet  bool
	failFind bool
	failLog  bool
	sets     int
}

func (s *flakyStorage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, errBoom
	}
	return s.Storage.GetEntitlement(ctx, userID)
}

func (s *flakyStorage) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	s.mu.Lock()
	fail := s.failSet
	s.sets++
	s.mu.Unlock()
	if fail {
		return errBoom
	}
	return s.Storage.SetEntitlement(ctx, ent)
}

func (s *flakyStorage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	if s.failFind {
		return "", errBoom
	}
	return s.Storage.FindUserBySubscription(ctx, subscriptionID)
}

func (s *flakyStorage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	if s.failLog {
		return errBoom
	}
	return s.Storage.RecordProcessedEvent(ctx, eventID)
}

func (s *flakyStorage) setFailGet(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = v
}

// gatedStorage blocks CreateEntitlement until release is closed and reports
// the context state it saw once released.
type gatedStorage struct {
	entitlement.Storage

	misses  chan struct{}
	entered chan struct{}
	release chan struct{}
}

func newGatedStorage() *gatedStorage {
	return &gatedStorage{
		Storage: memory.New(),
		misses:  make(chan struct{}, 16),
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *gatedStorage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	ent, err := s.Storage.GetEntitlement(ctx, userID)
	if errors.Is(err, entitlement.ErrEntitlementNotFound) {
		s.misses <- struct{}{}
	}
	return ent, err
}

func (s *gatedStorage) CreateEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	s.entered <- struct{}{}
	<-s.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Storage.CreateEntitlement(ctx, ent)
}
