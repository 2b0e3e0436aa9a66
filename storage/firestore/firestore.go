// Package firestore provides a Firestore implementation of the entitlement.Storage interface.
// Each user is one document; processed webhook events are documents keyed by event id,
// and Create on an existing id is the de-duplication gate.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

const (
	fieldIsPremium        = "isPremium"
	fieldCustomerID       = "stripeCustomerId"
	fieldSubscriptionID   = "stripeSubscriptionId"
	fieldCurrentPeriodEnd = "currentPeriodEnd"
	fieldUpdatedAt        = "updatedAt"
	fieldCreatedAt        = "createdAt"
)

// Storage implements entitlement.Storage using Google Cloud Firestore
type Storage struct {
	client                 *firestore.Client
	entitlementsCollection string
	eventsCollection       string
}

// Config holds Firestore storage configuration
type Config struct {
	// EntitlementsCollection is the Firestore collection for user entitlements
	// Default: "entitlements"
	EntitlementsCollection string

	// EventsCollection is the Firestore collection for processed webhook events
	// Default: "stripe_event_log"
	EventsCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.EntitlementsCollection == "" {
		config.EntitlementsCollection = "entitlements"
	}
	if config.EventsCollection == "" {
		config.EventsCollection = "stripe_event_log"
	}

	return &Storage{
		client:                 client,
		entitlementsCollection: config.EntitlementsCollection,
		eventsCollection:       config.EventsCollection,
	}, nil
}

// GetEntitlement implements entitlement.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	snap, err := s.entitlementDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, entitlement.ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	if !snap.Exists() {
		return nil, entitlement.ErrEntitlementNotFound
	}
	return fromData(userID, snap.Data()), nil
}

// CreateEntitlement implements entitlement.Storage
func (s *Storage) CreateEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	_, err := s.entitlementDoc(ent.UserID).Create(ctx, toData(ent))
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

// SetEntitlement implements entitlement.Storage. A stored customer id is kept.
func (s *Storage) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	doc := s.entitlementDoc(ent.UserID)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		data := toData(ent)

		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			if stored := getString(snap.Data(), fieldCustomerID); stored != "" {
				data[fieldCustomerID] = stored
			}
		}
		return tx.Set(doc, data)
	})
	if err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}
	return nil
}

// SetCustomerID implements entitlement.Storage
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	if userID == "" || customerID == "" {
		return "", entitlement.ErrInvalidEntitlement
	}

	doc := s.entitlementDoc(userID)
	var stored string
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()

		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil && snap.Exists() {
			if existing := getString(snap.Data(), fieldCustomerID); existing != "" {
				stored = existing
				return nil
			}
			stored = customerID
			return tx.Set(doc, map[string]interface{}{
				fieldCustomerID: customerID,
				fieldUpdatedAt:  now,
			}, firestore.MergeAll)
		}

		ent := entitlement.Default(userID, now)
		ent.CustomerID = customerID
		stored = customerID
		return tx.Create(doc, toData(ent))
	})
	if err != nil {
		return "", fmt.Errorf("failed to set customer id: %w", err)
	}
	return stored, nil
}

// FindUserBySubscription implements entitlement.Storage
func (s *Storage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	snaps, err := s.client.Collection(s.entitlementsCollection).
		Where(fieldSubscriptionID, "==", subscriptionID).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return "", fmt.Errorf("failed to find subscription: %w", err)
	}
	if len(snaps) == 0 {
		return "", entitlement.ErrEntitlementNotFound
	}
	return snaps[0].Ref.ID, nil
}

// HasProcessedEvent implements entitlement.Storage
func (s *Storage) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	snap, err := s.client.Collection(s.eventsCollection).Doc(eventID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check event log: %w", err)
	}
	return snap.Exists(), nil
}

// RecordProcessedEvent implements entitlement.Storage
func (s *Storage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	_, err := s.client.Collection(s.eventsCollection).Doc(eventID).Create(ctx, map[string]interface{}{
		fieldCreatedAt: time.Now().UTC(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return entitlement.ErrEventAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Ping implements entitlement.Storage
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.eventsCollection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("%w: %v", entitlement.ErrStorageUnavailable, err)
	}
	return nil
}

// Close closes the Firestore client
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) entitlementDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.entitlementsCollection).Doc(userID)
}

func toData(ent *entitlement.Entitlement) map[string]interface{} {
	updatedAt := ent.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	data := map[string]interface{}{
		fieldIsPremium:        ent.IsPremium,
		fieldCustomerID:       ent.CustomerID,
		fieldSubscriptionID:   ent.SubscriptionID,
		fieldCurrentPeriodEnd: nil,
		fieldUpdatedAt:        updatedAt,
	}
	if ent.CurrentPeriodEnd != nil {
		data[fieldCurrentPeriodEnd] = *ent.CurrentPeriodEnd
	}
	return data
}

func fromData(userID string, data map[string]interface{}) *entitlement.Entitlement {
	ent := &entitlement.Entitlement{
		UserID:         userID,
		IsPremium:      getBool(data, fieldIsPremium),
		CustomerID:     getString(data, fieldCustomerID),
		SubscriptionID: getString(data, fieldSubscriptionID),
		UpdatedAt:      getTime(data, fieldUpdatedAt).UTC(),
	}
	if end := getTime(data, fieldCurrentPeriodEnd); !end.IsZero() {
		end = end.UTC()
		ent.CurrentPeriodEnd = &end
	}
	return ent
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if v, ok := data[key].(bool); ok {
		return v
	}
	return false
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

var _ entitlement.Storage = (*Storage)(nil)
