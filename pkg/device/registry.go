// Package device keeps track of where devices are installed.
//
// Devices announce their location in topology messages; readings and status
// messages sent without a location are attributed using the last announcement.
package device

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Lookup when no location is known for a device.
var ErrNotFound = errors.New("device location not found")

// LocationRegistry maps device IDs to their last announced location.
type LocationRegistry interface {
	Lookup(ctx context.Context, deviceID string) (string, error)
	Record(ctx context.Context, deviceID, location string) error
	io.Closer
}

// RegistryConfig selects and configures the registry implementation.
type RegistryConfig struct {
	Redis *RedisConfig
	// TTL is how long an announcement is remembered. Zero means forever.
	TTL time.Duration
}

// LoadRegistryConfigFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
// REDIS_KEY_PREFIX and REGISTRY_TTL. Redis is only used when REDIS_ADDR is set.
func LoadRegistryConfigFromEnv(logger zerolog.Logger) *RegistryConfig {
	cfg := &RegistryConfig{}
	if raw := os.Getenv("REGISTRY_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warn().Err(err).Str("value", raw).Msg("Invalid REGISTRY_TTL, announcements will not expire.")
		} else {
			cfg.TTL = ttl
		}
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return cfg
	}
	cfg.Redis = &RedisConfig{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		KeyPrefix: os.Getenv("REDIS_KEY_PREFIX"),
		TTL:       cfg.TTL,
	}
	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			logger.Warn().Err(err).Str("value", raw).Msg("Invalid REDIS_DB, using 0.")
		} else {
			cfg.Redis.DB = db
		}
	}
	return cfg
}

// NewRegistry builds the registry described by cfg. With Redis configured the
// result is an in-memory cache in front of Redis.
func NewRegistry(ctx context.Context, cfg *RegistryConfig, logger zerolog.Logger) (LocationRegistry, error) {
	memory := NewInMemoryRegistry(cfg.TTL, logger)
	if cfg.Redis == nil {
		return memory, nil
	}
	redisRegistry, err := NewRedisRegistry(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	return NewChainedRegistry(memory, redisRegistry, logger), nil
}
