// Package redis provides a Redis implementation of the entitlement.Storage interface.
// Read-modify-write updates run as Lua scripts so they are atomic per user.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Storage implements entitlement.Storage using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "fit4seniors:")
	KeyPrefix string

	// EntitlementTTL is the TTL for entitlement and subscription index keys
	// (0 = no expiration). Set it when Redis is a cache in front of another store.
	EntitlementTTL time.Duration

	// EventTTL is the TTL for processed event markers (0 = no expiration)
	EventTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "fit4seniors:",
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "fit4seniors:"
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
	}
	s.loadScripts()
	return s, nil
}

// loadScripts compiles the Lua scripts for atomic updates
func (s *Storage) loadScripts() {
	// Upsert an entitlement, keeping a stored customer id, and index its subscription.
	s.scripts["set_entitlement"] = redis.NewScript(`
		local key = KEYS[1]
		local subKey = KEYS[2]
		local data = cjson.decode(ARGV[1])
		local ttl = tonumber(ARGV[2])

		local current = redis.call('GET', key)
		if current then
			local ok, existing = pcall(cjson.decode, current)
			if ok and type(existing) == 'table' and existing.stripe_customer_id
				and existing.stripe_customer_id ~= '' then
				data.stripe_customer_id = existing.stripe_customer_id
			end
		end

		local encoded = cjson.encode(data)
		if ttl > 0 then
			redis.call('SET', key, encoded, 'EX', ttl)
		else
			redis.call('SET', key, encoded)
		end

		if subKey ~= '' then
			if ttl > 0 then
				redis.call('SET', subKey, data.user_id, 'EX', ttl)
			else
				redis.call('SET', subKey, data.user_id)
			end
		end
		return encoded
	`)

	// Link a customer id unless one is stored; returns the stored id.
	s.scripts["set_customer_id"] = redis.NewScript(`
		local key = KEYS[1]
		local customerID = ARGV[1]
		local fallback = ARGV[2]
		local ttl = tonumber(ARGV[3])
		local now = ARGV[4]

		local data
		local current = redis.call('GET', key)
		if current then
			data = cjson.decode(current)
			if data.stripe_customer_id and data.stripe_customer_id ~= '' then
				return data.stripe_customer_id
			end
			data.stripe_customer_id = customerID
			data.updated_at = now
		else
			data = cjson.decode(fallback)
		end

		local encoded = cjson.encode(data)
		if ttl > 0 then
			redis.call('SET', key, encoded, 'EX', ttl)
		else
			redis.call('SET', key, encoded)
		end
		return customerID
	`)
}

// GetEntitlement implements entitlement.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	data, err := s.client.Get(ctx, s.entitlementKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entitlement.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	var ent entitlement.Entitlement
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entitlement: %w", err)
	}
	return &ent, nil
}

// CreateEntitlement implements entitlement.Storage
func (s *Storage) CreateEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}
	if err := s.client.SetNX(ctx, s.entitlementKey(ent.UserID), data, s.config.EntitlementTTL).Err(); err != nil {
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	if ent.SubscriptionID != "" {
		if err := s.client.SetNX(ctx, s.subscriptionKey(ent.SubscriptionID), ent.UserID, s.config.EntitlementTTL).Err(); err != nil {
			return fmt.Errorf("failed to index subscription: %w", err)
		}
	}
	return nil
}

// SetEntitlement implements entitlement.Storage
func (s *Storage) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %w", err)
	}

	subKey := ""
	if ent.SubscriptionID != "" {
		subKey = s.subscriptionKey(ent.SubscriptionID)
	}

	keys := []string{s.entitlementKey(ent.UserID), subKey}
	if err := s.scripts["set_entitlement"].Run(ctx, s.client, keys, string(data), ttlSeconds(s.config.EntitlementTTL)).Err(); err != nil {
		return fmt.Errorf("failed to set entitlement: %w", err)
	}
	return nil
}

// SetCustomerID implements entitlement.Storage
func (s *Storage) SetCustomerID(ctx context.Context, userID, customerID string) (string, error) {
	if userID == "" || customerID == "" {
		return "", entitlement.ErrInvalidEntitlement
	}

	now := time.Now().UTC()
	fallback := entitlement.Default(userID, now)
	fallback.CustomerID = customerID
	data, err := json.Marshal(fallback)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entitlement: %w", err)
	}

	stored, err := s.scripts["set_customer_id"].Run(ctx, s.client,
		[]string{s.entitlementKey(userID)},
		customerID, string(data), ttlSeconds(s.config.EntitlementTTL), now.Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		return "", fmt.Errorf("failed to set customer id: %w", err)
	}
	return stored, nil
}

// FindUserBySubscription implements entitlement.Storage
func (s *Storage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	userID, err := s.client.Get(ctx, s.subscriptionKey(subscriptionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", entitlement.ErrEntitlementNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find subscription: %w", err)
	}
	return userID, nil
}

// HasProcessedEvent implements entitlement.Storage
func (s *Storage) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event log: %w", err)
	}
	return n > 0, nil
}

// RecordProcessedEvent implements entitlement.Storage. SETNX is the gate:
// only the first writer of an event id succeeds.
func (s *Storage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	ok, err := s.client.SetNX(ctx, s.eventKey(eventID), time.Now().UTC().Format(time.RFC3339), s.config.EventTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if !ok {
		return entitlement.ErrEventAlreadyRecorded
	}
	return nil
}

// Close closes the Redis client connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", entitlement.ErrStorageUnavailable, err)
	}
	return nil
}

// entitlementKey generates the Redis key for an entitlement
func (s *Storage) entitlementKey(userID string) string {
	return fmt.Sprintf("%sentitlement:%s", s.config.KeyPrefix, userID)
}

// subscriptionKey generates the Redis key mapping a subscription to its user
func (s *Storage) subscriptionKey(subscriptionID string) string {
	return fmt.Sprintf("%ssub:%s", s.config.KeyPrefix, subscriptionID)
}

// eventKey generates the Redis key marking a processed webhook event
func (s *Storage) eventKey(eventID string) string {
	return fmt.Sprintf("%sevent:%s", s.config.KeyPrefix, eventID)
}

func ttlSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

var _ entitlement.Storage = (*Storage)(nil)
