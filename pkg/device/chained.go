package device

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ChainedRegistry answers lookups from a fast cache and falls back to a shared
// source, writing source hits back into the cache. Records go to both.
type ChainedRegistry struct {
	cache  LocationRegistry
	source LocationRegistry
	logger zerolog.Logger
}

func NewChainedRegistry(cache, source LocationRegistry, logger zerolog.Logger) *ChainedRegistry {
	return &ChainedRegistry{
		cache:  cache,
		source: source,
		logger: logger.With().Str("component", "ChainedRegistry").Logger(),
	}
}

func (c *ChainedRegistry) Lookup(ctx context.Context, deviceID string) (string, error) {
	location, err := c.cache.Lookup(ctx, deviceID)
	if err == nil {
		return location, nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.logger.Warn().Err(err).Str("device_id", deviceID).Msg("Cache lookup failed, trying source.")
	}

	location, err = c.source.Lookup(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if cacheErr := c.cache.Record(ctx, deviceID, location); cacheErr != nil {
		c.logger.Warn().Err(cacheErr).Str("device_id", deviceID).Msg("Failed to backfill cache.")
	}
	return location, nil
}

// Record writes the source first; the cache is only updated when the source
// accepted the write so the two never disagree after a failure.
func (c *ChainedRegistry) Record(ctx context.Context, deviceID, location string) error {
	if err := c.source.Record(ctx, deviceID, location); err != nil {
		return err
	}
	return c.cache.Record(ctx, deviceID, location)
}

// Close closes both registries and returns the first error.
func (c *ChainedRegistry) Close() error {
	cacheErr := c.cache.Close()
	sourceErr := c.source.Close()
	if cacheErr != nil {
		return cacheErr
	}
	return sourceErr
}
