// Package cache keeps completed idempotency outcomes in Redis so replays can
// be answered without touching Postgres. Records are immutable once written,
// so a cached copy can never be stale; Postgres stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/safar/trade-credit/internal/config"
	"github.com/safar/trade-credit/internal/models"
)

const keyPrefix = "idempotency"

type ReplayCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReplayCache(client *redis.Client, ttl time.Duration) *ReplayCache {
	return &ReplayCache{client: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection. It returns nil, nil when
// no address is configured.
func Connect(ctx context.Context, cfg config.RedisConfig) (*ReplayCache, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewReplayCache(client, cfg.CacheTTL), nil
}

func Key(businessID, idempotencyKey uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, businessID, idempotencyKey)
}

func (c *ReplayCache) Get(ctx context.Context, businessID, idempotencyKey uuid.UUID) (*models.IdempotencyRecord, bool, error) {
	val, err := c.client.Get(ctx, Key(businessID, idempotencyKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached outcome: %w", err)
	}

	var record models.IdempotencyRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, false, fmt.Errorf("decode cached outcome: %w", err)
	}

	return &record, true, nil
}

// Set stores record unless a copy is already cached.
func (c *ReplayCache) Set(ctx context.Context, record *models.IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	key := Key(record.BusinessID, record.IdempotencyKey)
	if err := c.client.SetNX(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache outcome: %w", err)
	}

	return nil
}

func (c *ReplayCache) Close() error {
	return c.client.Close()
}
