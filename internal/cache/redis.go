package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

const defaultRedisTTL = 7 * 24 * time.Hour

// Redis is a Redis/Valkey-backed cache backend with per-entry TTL.
type Redis struct {
	client    *goredis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates a Redis cache backend from config.
func NewRedis(cfg *types.RedisCacheConfig) *Redis {
	ttl := defaultRedisTTL
	if cfg.TTL != "" {
		if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
			ttl = d
		}
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "checkrun:cache:"
	}
	return &Redis{
		client: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		keyPrefix: prefix,
		ttl:       ttl,
	}
}

// Restore implements Backend.
func (r *Redis) Restore(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Save implements Backend.
func (r *Redis) Save(ctx context.Context, key string, payload []byte) error {
	if err := r.client.Set(ctx, r.keyPrefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
