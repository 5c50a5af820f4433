package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type locationEntry struct {
	location  string
	expiresAt time.Time
}

// InMemoryRegistry is a process-local LocationRegistry. Expired entries are
// dropped lazily on lookup.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]locationEntry
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewInMemoryRegistry creates an empty registry. A zero ttl keeps entries forever.
func NewInMemoryRegistry(ttl time.Duration, logger zerolog.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		entries: make(map[string]locationEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With().Str("component", "InMemoryRegistry").Logger(),
	}
}

func (r *InMemoryRegistry) Lookup(ctx context.Context, deviceID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.RLock()
	entry, found := r.entries[deviceID]
	r.mu.RUnlock()

	if !found {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.mu.Lock()
		delete(r.entries, deviceID)
		r.mu.Unlock()
		r.logger.Debug().Str("device_id", deviceID).Msg("Location entry expired.")
		return "", ErrNotFound
	}
	return entry.location, nil
}

func (r *InMemoryRegistry) Record(ctx context.Context, deviceID, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := locationEntry{location: location}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}

	r.mu.Lock()
	r.entries[deviceID] = entry
	r.mu.Unlock()
	r.logger.Debug().Str("device_id", deviceID).Str("location", location).Msg("Location recorded.")
	return nil
}

// Len returns the number of stored entries, expired or not.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *InMemoryRegistry) Close() error {
	return nil
}
