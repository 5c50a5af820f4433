package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const defaultKeyPrefix = "device-location:"

// RedisConfig holds configuration for the Redis client.
type RedisConfig struct {
	Addr      string // e.g., "localhost:6379"
	Password  string // Leave empty if no password
	DB        int
	KeyPrefix string
	TTL       time.Duration // zero keeps keys forever
}

// RedisRegistry stores device locations as plain string keys in Redis, so the
// mapping is shared by every process attached to the same instance.
type RedisRegistry struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewRedisRegistry connects to Redis and verifies the connection with a ping.
func NewRedisRegistry(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisRegistry, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	logger = logger.With().Str("component", "RedisRegistry").Logger()
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis for device locations")

	return &RedisRegistry{
		client:    rdb,
		keyPrefix: prefix,
		ttl:       cfg.TTL,
		logger:    logger,
	}, nil
}

func (r *RedisRegistry) key(deviceID string) string {
	return r.keyPrefix + deviceID
}

func (r *RedisRegistry) Lookup(ctx context.Context, deviceID string) (string, error) {
	location, err := r.client.Get(ctx, r.key(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis lookup for %s failed: %w", deviceID, err)
	}
	return location, nil
}

func (r *RedisRegistry) Record(ctx context.Context, deviceID, location string) error {
	if err := r.client.Set(ctx, r.key(deviceID), location, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis record for %s failed: %w", deviceID, err)
	}
	r.logger.Debug().Str("device_id", deviceID).Str("location", location).Msg("Location stored in Redis.")
	return nil
}

// Close closes the Redis client connection.
func (r *RedisRegistry) Close() error {
	if r.client != nil {
		r.logger.Info().Msg("Closing Redis client connection...")
		return r.client.Close()
	}
	return nil
}
