package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or is expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidTTL indicates a negative TTL was passed to Set
	ErrInvalidTTL = errors.New("ttl must be >= 0")
)

// Entry is the unit stored in both cache layers. The durable layer holds it
// JSON-serialized under Key.
type Entry struct {
	// Key is the composite cache key (e.g. "series:AAPL:1D")
	Key string `json:"key"`

	// Value is the JSON-serialized payload
	Value json.RawMessage `json:"value"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"storedAt"`

	// ExpiresAt is the last instant at which the entry is fresh
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewEntry serializes value into an entry stored at now and valid for ttl.
func NewEntry(key string, value any, now time.Time, ttl time.Duration) (*Entry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: entry needs a positive ttl (got %v)", ErrInvalidTTL, ttl)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal cache value: %w", err)
	}

	return &Entry{
		Key:       key,
		Value:     data,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpiredAt returns true if the entry is no longer fresh at now.
func (e *Entry) IsExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTLAt returns the time remaining until expiration.
// Returns 0 if already expired.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Validate checks the structural invariants of an entry read back from a
// store.
func (e *Entry) Validate(key string) error {
	if e.Key != key {
		return fmt.Errorf("%w: key mismatch (stored %q, want %q)", ErrInvalidEntry, e.Key, key)
	}
	if len(e.Value) == 0 || !json.Valid(e.Value) {
		return fmt.Errorf("%w: value is not valid JSON", ErrInvalidEntry)
	}
	if !e.ExpiresAt.After(e.StoredAt) {
		return fmt.Errorf("%w: expiresAt %v not after storedAt %v", ErrInvalidEntry, e.ExpiresAt, e.StoredAt)
	}
	return nil
}

// Decode unmarshals the payload into dest.
func (e *Entry) Decode(dest any) error {
	if err := json.Unmarshal(e.Value, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// decodeEntry parses a serialized entry and checks it belongs to key.
func decodeEntry(key string, data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := entry.Validate(key); err != nil {
		return nil, err
	}
	return &entry, nil
}
