// Package postgres provides a PostgreSQL implementation of the entitlement.Storage interface.
// Entitlements live in the entitlements table; the stripe_event_log primary key is the
// webhook de-duplication gate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

const uniqueViolation = "23505"

// Storage implements entitlement.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const selectEntitlement = `SELECT user_id, is_premium, COALESCE(stripe_customer_id, ''),
	COALESCE(stripe_subscription_id, ''), current_period_end, updated_at
	FROM entitlements`

// GetEntitlement implements entitlement.Storage
func (s *Storage) GetEntitlement(ctx context.Context, userID string) (*entitlement.Entitlement, error) {
	ent, err := scanEntitlement(s.pool.QueryRow(ctx, selectEntitlement+` WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entitlement.ErrEntitlementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	return ent, nil
}

// CreateEntitlement implements entitlement.Storage
func (s *Storage) CreateEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id, is_premium, stripe_customer_id, stripe_subscription_id,
				current_period_end, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
			ON CONFLICT (user_id) DO NOTHING`,
		ent.UserID, ent.IsPremium, ent.CustomerID, ent.SubscriptionID, ent.CurrentPeriodEnd, updatedAt(ent),
	)
	if err != nil {
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

// SetEntitlement implements entitlement.Storage. A stored customer id is kept.
func (s *Storage) SetEntitlement(ctx context.Context, ent *entitlement.Entitlement) error {
	if ent == nil || ent.UserID == "" {
		return entitlement.ErrInvalidEntitlement
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entitlements (user_id, is_premium, stripe_customer_id, stripe_subscription_id,
				current_period_end, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				is_premium = EXCLUDED.is_premium,
				stripe_customer_id = COALESCE(entitlements.stripe_customer_id, EXCLUDED.stripe_customer_id),
				stripe_subscription_id = EXCLUDED.stripe_subscription_id,
				current_period_end = EXCLUDED.current_period_end,
				updated_at = EXCLUDED.updated_at`,
		ent.UserID, ent.IsPremium, ent.CustomerID, ent.SubscriptionID, ent.CurrentPeriodEnd, updatedAt(ent),
	)
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

	var stored string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO entitlements (user_id, is_premium, stripe_customer_id, updated_at)
			VALUES ($1, FALSE, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				stripe_customer_id = COALESCE(entitlements.stripe_customer_id, EXCLUDED.stripe_customer_id),
				updated_at = CASE WHEN entitlements.stripe_customer_id IS NULL
					THEN EXCLUDED.updated_at ELSE entitlements.updated_at END
			RETURNING stripe_customer_id`,
		userID, customerID, time.Now().UTC(),
	).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to set customer id: %w", err)
	}
	return stored, nil
}

// FindUserBySubscription implements entitlement.Storage
func (s *Storage) FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM entitlements WHERE stripe_subscription_id = $1
			ORDER BY updated_at DESC LIMIT 1`,
		subscriptionID,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", entitlement.ErrEntitlementNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find subscription: %w", err)
	}
	return userID, nil
}

// HasProcessedEvent implements entitlement.Storage
func (s *Storage) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stripe_event_log WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event log: %w", err)
	}
	return exists, nil
}

// RecordProcessedEvent implements entitlement.Storage. The primary key on
// event_id makes concurrent inserts of the same id fail with 23505.
func (s *Storage) RecordProcessedEvent(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stripe_event_log (event_id, created_at) VALUES ($1, $2)`,
		eventID, time.Now().UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return entitlement.ErrEventAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Ping implements entitlement.Storage
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", entitlement.ErrStorageUnavailable, err)
	}
	return nil
}

func scanEntitlement(row pgx.Row) (*entitlement.Entitlement, error) {
	var ent entitlement.Entitlement
	var periodEnd *time.Time
	if err := row.Scan(
		&ent.UserID,
		&ent.IsPremium,
		&ent.CustomerID,
		&ent.SubscriptionID,
		&periodEnd,
		&ent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if periodEnd != nil {
		t := periodEnd.UTC()
		ent.CurrentPeriodEnd = &t
	}
	ent.UpdatedAt = ent.UpdatedAt.UTC()
	return &ent, nil
}

func updatedAt(ent *entitlement.Entitlement) time.Time {
	if ent.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return ent.UpdatedAt
}

var _ entitlement.Storage = (*Storage)(nil)
