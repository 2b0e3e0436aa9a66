package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mihaimyh/fit4seniors/internal/config"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
	firestorestorage "github.com/mihaimyh/fit4seniors/storage/firestore"
	"github.com/mihaimyh/fit4seniors/storage/memory"
	"github.com/mihaimyh/fit4seniors/storage/postgres"
	redisstorage "github.com/mihaimyh/fit4seniors/storage/redis"
	"github.com/mihaimyh/fit4seniors/storage/tiered"
)

// openStorage builds the configured backend. The returned func releases it.
func openStorage(ctx context.Context, cfg config.StorageConfig, logger entitlement.Logger) (entitlement.Storage, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage, state is lost on restart")
		return memory.New(), func() {}, nil

	case config.BackendPostgres:
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil

	case config.BackendRedis:
		rs, err := openRedis(cfg)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { _ = rs.Close() }, nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		fs, err := firestorestorage.New(client, firestorestorage.Config{})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil

	case config.BackendTiered:
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		rs, err := openRedis(cfg)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		ts, err := tiered.New(tiered.Config{
			Hot:          rs,
			Cold:         pg,
			AsyncHotSync: true,
			AsyncErrorHandler: func(err error) {
				logger.Warn("tiered storage hot write failed", entitlement.Field{Key: "error", Value: err})
			},
		})
		if err != nil {
			_ = rs.Close()
			pg.Close()
			return nil, nil, err
		}
		return ts, func() {
			_ = ts.Close()
			_ = rs.Close()
			pg.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func openPostgres(ctx context.Context, cfg config.StorageConfig, logger entitlement.Logger) (*postgres.Storage, error) {
	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	pgConfig := postgres.DefaultConfig()
	pgConfig.ConnectionString = cfg.DatabaseURL
	return postgres.New(ctx, pgConfig)
}

func openRedis(cfg config.StorageConfig) (*redisstorage.Storage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rs, err := redisstorage.New(client, redisstorage.DefaultConfig())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return rs, nil
}
