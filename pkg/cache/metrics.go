package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockhub_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"}, // "memory", "durable"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockhub_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CorruptEntries tracks durable entries that could not be decoded
	CorruptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockhub_cache_corrupt_entries_total",
			Help: "Total number of malformed durable cache entries treated as misses",
		},
	)

	// MemoryEntries tracks the number of entries in the memory layer
	MemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockhub_cache_memory_entries",
			Help: "Current number of entries held by the in-process cache layer",
		},
	)

	// CacheErrors tracks durable store operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockhub_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
