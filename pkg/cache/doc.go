// Package cache provides the two-level cache that sits in front of the
// prediction and market data backend.
//
// A Tiered cache answers two questions: "do I have a fresh value for key K"
// and "store this value under K for ttl". Reads are served from a bounded
// in-process layer first and fall back to a durable Store so that cached
// data survives a process restart.
//
// - Per-entry expiry: an entry is fresh while now <= ExpiresAt
// - Write-through: the durable layer is written before the memory layer
// - Corrupt durable entries are treated as misses, logged and removed
// - TTL policy is supplied by the caller, never fixed by the cache
// - Prometheus metrics for observability
// - Deterministic composite keys (series:AAPL:1D)
//
// # Basic Usage
//
//	store, err := cache.OpenSQLite(ctx, "stockhub-cache.db")
//	if err != nil {
//		return err
//	}
//
//	c := cache.NewTiered(store, cache.WithMemoryMaxEntries(512))
//	defer c.Close()
//
//	key := cache.Key{Resource: "series", Symbol: "AAPL", Params: []string{"1D"}}
//
//	var points []Point
//	if err := c.Get(ctx, key.String(), &points); err == cache.ErrCacheMiss {
//		// Cache miss - fetch from the backend
//	}
//
//	if err := c.Set(ctx, key.String(), points, time.Minute); err != nil {
//		return err
//	}
//
// # Durable Stores
//
//   - SQLiteStore: a local file (modernc.org/sqlite, no cgo); the default for
//     a single client process
//   - RedisStore: shared across processes on one host or network
//
// # Metrics
//
//   - stockhub_cache_hits_total{layer="memory|durable"} - Cache hits
//   - stockhub_cache_misses_total - Cache misses
//   - stockhub_cache_corrupt_entries_total - Malformed durable entries
//   - stockhub_cache_errors_total{operation} - Durable store errors
//   - stockhub_cache_memory_entries - Entries held by the memory layer
package cache
