// Package redis implements the Provider interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "checkrun:"
	defaultRetentionTTL = 168 * time.Hour
	defaultRunIndexMax  = 500
	defaultEventMax     = 1000
)

// Config holds Redis/Valkey connection and store settings.
type Config struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password,omitempty"`
	DB            int    `yaml:"db,omitempty"`
	KeyPrefix     string `yaml:"keyPrefix,omitempty"`
	RetentionTTL  string `yaml:"retentionTtl,omitempty"` // default "168h" (7 days)
	RunIndexLimit int    `yaml:"runIndexLimit,omitempty"`
	EventIndexMax int64  `yaml:"eventIndexMax,omitempty"`
}

// RedisProvider implements the Provider interface backed by Redis/Valkey.
type RedisProvider struct {
	client       *goredis.Client
	prefix       string
	retentionTTL time.Duration
	runIndexMax  int
	eventMax     int64
	logger       *slog.Logger
}

// New creates a RedisProvider from config.
func New(cfg *Config) (*RedisProvider, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	retention := defaultRetentionTTL
	if cfg.RetentionTTL != "" {
		d, err := time.ParseDuration(cfg.RetentionTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid retentionTtl %q: %w", cfg.RetentionTTL, err)
		}
		retention = d
	}

	p := NewFromClient(client, cfg.KeyPrefix)
	p.retentionTTL = retention
	if cfg.RunIndexLimit > 0 {
		p.runIndexMax = cfg.RunIndexLimit
	}
	if cfg.EventIndexMax > 0 {
		p.eventMax = cfg.EventIndexMax
	}
	return p, nil
}

// NewFromClient creates a RedisProvider from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisProvider{
		client:       client,
		prefix:       prefix,
		retentionTTL: defaultRetentionTTL,
		runIndexMax:  defaultRunIndexMax,
		eventMax:     defaultEventMax,
		logger:       slog.Default(),
	}
}

// Start initializes the provider connection.
func (p *RedisProvider) Start(ctx context.Context) error {
	return p.Ping(ctx)
}

// Stop closes the provider connection.
func (p *RedisProvider) Stop(_ context.Context) error {
	return p.client.Close()
}

// Ping checks connectivity to the Redis server.
func (p *RedisProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (p *RedisProvider) Client() *goredis.Client {
	return p.client
}
