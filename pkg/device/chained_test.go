package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/telemetry-fanout/pkg/device"
)

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Lookup(ctx context.Context, deviceID string) (string, error) {
	args := m.Called(ctx, deviceID)
	return args.String(0), args.Error(1)
}

func (m *MockRegistry) Record(ctx context.Context, deviceID, location string) error {
	args := m.Called(ctx, deviceID, location)
	return args.Error(0)
}

func (m *MockRegistry) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestChainedRegistry_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips source", func(t *testing.T) {
		cache := device.NewInMemoryRegistry(0, zerolog.Nop())
		require.NoError(t, cache.Record(ctx, "dev-1", "kitchen"))
		source := new(MockRegistry)

		registry := device.NewChainedRegistry(cache, source, zerolog.Nop())
		location, err := registry.Lookup(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "kitchen", location)
		source.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	})

	t.Run("cache miss falls back and backfills", func(t *testing.T) {
		cache := device.NewInMemoryRegistry(0, zerolog.Nop())
		source := new(MockRegistry)
		source.On("Lookup", mock.Anything, "dev-1").Return("garage", nil).Once()

		registry := device.NewChainedRegistry(cache, source, zerolog.Nop())
		location, err := registry.Lookup(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "garage", location)

		location, err = registry.Lookup(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "garage", location)
		source.AssertExpectations(t)
	})

	t.Run("miss everywhere", func(t *testing.T) {
		source := new(MockRegistry)
		source.On("Lookup", mock.Anything, "dev-9").Return("", device.ErrNotFound)

		registry := device.NewChainedRegistry(device.NewInMemoryRegistry(0, zerolog.Nop()), source, zerolog.Nop())
		_, err := registry.Lookup(ctx, "dev-9")
		assert.ErrorIs(t, err, device.ErrNotFound)
	})
}

func TestChainedRegistry_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("writes both", func(t *testing.T) {
		cache := device.NewInMemoryRegistry(0, zerolog.Nop())
		source := new(MockRegistry)
		source.On("Record", mock.Anything, "dev-1", "hall").Return(nil)

		registry := device.NewChainedRegistry(cache, source, zerolog.Nop())
		require.NoError(t, registry.Record(ctx, "dev-1", "hall"))

		location, err := cache.Lookup(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, "hall", location)
		source.AssertExpectations(t)
	})

	t.Run("source failure leaves cache alone", func(t *testing.T) {
		cache := device.NewInMemoryRegistry(0, zerolog.Nop())
		source := new(MockRegistry)
		source.On("Record", mock.Anything, "dev-1", "hall").Return(errors.New("redis down"))

		registry := device.NewChainedRegistry(cache, source, zerolog.Nop())
		assert.Error(t, registry.Record(ctx, "dev-1", "hall"))

		_, err := cache.Lookup(ctx, "dev-1")
		assert.ErrorIs(t, err, device.ErrNotFound)
	})
}

func TestChainedRegistry_Close(t *testing.T) {
	source := new(MockRegistry)
	closeErr := errors.New("close failed")
	source.On("Close").Return(closeErr)

	registry := device.NewChainedRegistry(device.NewInMemoryRegistry(0, zerolog.Nop()), source, zerolog.Nop())
	assert.ErrorIs(t, registry.Close(), closeErr)
	source.AssertExpectations(t)
}
