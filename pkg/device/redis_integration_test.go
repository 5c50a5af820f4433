//go:build integration

package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/device"
	"github.com/illmade-knight/telemetry-fanout/pkg/helpers/emulators"
)

func TestRedisRegistry_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

	redisConn := emulators.SetupRedisContainer(t, ctx, emulators.GetDefaultRedisImageContainer())
	redisClient := redis.NewClient(&redis.Options{Addr: redisConn.EmulatorAddress})
	require.NoError(t, redisClient.Ping(ctx).Err(), "could not connect to redis emulator")
	defer redisClient.Close()

	cfg := &device.RedisConfig{Addr: redisConn.EmulatorAddress, KeyPrefix: "loc:", TTL: time.Minute}
	registry, err := device.NewRedisRegistry(ctx, cfg, logger)
	require.NoError(t, err)
	defer registry.Close()

	t.Run("unknown device", func(t *testing.T) {
		_, err := registry.Lookup(ctx, "REDIS-DEV-001")
		assert.ErrorIs(t, err, device.ErrNotFound)
	})

	t.Run("record is visible to other clients", func(t *testing.T) {
		require.NoError(t, registry.Record(ctx, "REDIS-DEV-001", "living-room"))

		raw, err := redisClient.Get(ctx, "loc:REDIS-DEV-001").Result()
		require.NoError(t, err)
		assert.Equal(t, "living-room", raw)

		ttl, err := redisClient.TTL(ctx, "loc:REDIS-DEV-001").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("lookup sees writes from other clients", func(t *testing.T) {
		require.NoError(t, redisClient.Set(ctx, "loc:REDIS-DEV-002", "attic", 0).Err())
		location, err := registry.Lookup(ctx, "REDIS-DEV-002")
		require.NoError(t, err)
		assert.Equal(t, "attic", location)
	})

	t.Run("chained in front of redis", func(t *testing.T) {
		chained, err := device.NewRegistry(ctx, &device.RegistryConfig{Redis: cfg}, logger)
		require.NoError(t, err)
		defer chained.Close()

		location, err := chained.Lookup(ctx, "REDIS-DEV-002")
		require.NoError(t, err)
		assert.Equal(t, "attic", location)
	})
}
