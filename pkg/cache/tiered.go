package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultMemoryMaxEntries bounds the in-process layer when no size is given.
const DefaultMemoryMaxEntries = 512

// Tiered is a two-level cache: a bounded in-process layer over a durable
// Store. A nil Store yields a memory-only cache.
type Tiered struct {
	memory  *memoryLayer
	durable Store
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithClock sets the time source used for StoredAt/ExpiresAt and freshness
// checks.
func WithClock(now func() time.Time) Option {
	return func(t *Tiered) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tiered) {
		t.logger = logger
	}
}

// WithMemoryMaxEntries bounds the in-process layer.
func WithMemoryMaxEntries(n int) Option {
	return func(t *Tiered) {
		t.memory = newMemoryLayer(n)
	}
}

// NewTiered creates a tiered cache over durable.
func NewTiered(durable Store, opts ...Option) *Tiered {
	t := &Tiered{
		memory:  newMemoryLayer(DefaultMemoryMaxEntries),
		durable: durable,
		now:     time.Now,
		logger:  log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get decodes the fresh value stored under key into dest.
// Returns ErrCacheMiss if the key is absent, expired or corrupt. Other errors
// come from the durable store and may be treated as a miss by the caller.
func (t *Tiered) Get(ctx context.Context, key string, dest any) error {
	now := t.now()

	// L1: memory
	if entry, ok := t.memory.get(key); ok {
		if !entry.IsExpiredAt(now) {
			if err := entry.Decode(dest); err == nil {
				CacheHits.WithLabelValues("memory").Inc()
				t.logger.Debug().Str("key", key).Str("layer", "memory").Msg("Cache hit")
				return nil
			}
		}
		t.memory.delete(key)
	}

	if t.durable == nil {
		CacheMisses.Inc()
		return ErrCacheMiss
	}

	// L2: durable
	data, err := t.durable.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("durable get: %w", err)
	}

	entry, err := decodeEntry(key, data)
	if err == nil {
		err = entry.Decode(dest)
	}
	if err != nil {
		t.dropCorrupt(ctx, key, err)
		CacheMisses.Inc()
		return ErrCacheMiss
	}

	if entry.IsExpiredAt(now) {
		// Lazy expiry: the store may still hold it if its own TTL lags.
		if err := t.durable.Delete(ctx, key); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
		}
		CacheMisses.Inc()
		return ErrCacheMiss
	}

	t.memory.set(entry)
	CacheHits.WithLabelValues("durable").Inc()
	t.logger.Debug().
		Str("key", key).
		Str("layer", "durable").
		Dur("ttl", entry.TTLAt(now)).
		Msg("Cache hit")

	return nil
}

// Set stores value under key for ttl, writing the durable layer first.
// A zero ttl removes key so that a following Get misses.
func (t *Tiered) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("%w (got %v)", ErrInvalidTTL, ttl)
	}
	if ttl == 0 {
		return t.Delete(ctx, key)
	}

	entry, err := NewEntry(key, value, t.now(), ttl)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}

	if t.durable != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		if err := t.durable.Set(ctx, key, data, ttl); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("durable set: %w", err)
		}
	}

	t.memory.set(entry)
	t.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached value")

	return nil
}

// Delete removes keys from both layers.
func (t *Tiered) Delete(ctx context.Context, keys ...string) error {
	t.memory.delete(keys...)

	if t.durable == nil || len(keys) == 0 {
		return nil
	}
	if err := t.durable.Delete(ctx, keys...); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("durable delete: %w", err)
	}
	return nil
}

// Ping checks the durable layer.
func (t *Tiered) Ping(ctx context.Context) error {
	if t.durable == nil {
		return nil
	}
	return t.durable.Ping(ctx)
}

// Close closes the durable layer.
func (t *Tiered) Close() error {
	if t.durable == nil {
		return nil
	}
	return t.durable.Close()
}

// dropCorrupt logs and removes an entry that could not be decoded.
func (t *Tiered) dropCorrupt(ctx context.Context, key string, cause error) {
	CorruptEntries.Inc()
	t.logger.Warn().Err(cause).Str("key", key).Msg("Corrupt cache entry treated as miss")

	if err := t.durable.Delete(ctx, key); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		t.logger.Warn().Err(err).Str("key", key).Msg("Failed to remove corrupt cache entry")
	}
}
