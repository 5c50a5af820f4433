package ingestion

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultForceFlushThreshold = 5 * time.Second
	DefaultBatchCapacity       = 10
)

// Config holds the dispatcher settings.
type Config struct {
	// ForceFlushThreshold is the remaining budget below which the buffer is
	// flushed at the end of a batch. Zero or less means the default.
	ForceFlushThreshold time.Duration
	// BatchCapacity is the buffer length that triggers a durable write.
	BatchCapacity int
	// ItemTTL, when positive, stamps durable items with an expiry.
	ItemTTL time.Duration
}

// LoadConfigFromEnv reads FORCE_FLUSH_THRESHOLD_MS, DYNAMO_BATCH_SIZE and
// DYNAMO_TTL. Invalid values are logged and replaced by defaults.
func LoadConfigFromEnv(logger zerolog.Logger) *Config {
	cfg := &Config{
		ForceFlushThreshold: DefaultForceFlushThreshold,
		BatchCapacity:       DefaultBatchCapacity,
	}

	if raw := os.Getenv("FORCE_FLUSH_THRESHOLD_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			logger.Warn().Str("value", raw).Dur("default", DefaultForceFlushThreshold).Msg("Invalid FORCE_FLUSH_THRESHOLD_MS, using default.")
		} else {
			cfg.ForceFlushThreshold = time.Duration(ms) * time.Millisecond
		}
	}

	if raw := os.Getenv("DYNAMO_BATCH_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			logger.Warn().Str("value", raw).Int("default", DefaultBatchCapacity).Msg("Invalid DYNAMO_BATCH_SIZE, using default.")
		} else {
			cfg.BatchCapacity = n
		}
	}

	if raw := os.Getenv("DYNAMO_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			logger.Warn().Str("value", raw).Msg("Invalid DYNAMO_TTL, items will not expire.")
		} else {
			cfg.ItemTTL = ttl
		}
	}
	return cfg
}
