package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryLayer is a bounded in-process map of entries with LRU eviction.
// Freshness is checked by Tiered; the layer only bounds size.
type memoryLayer struct {
	maxEntries int
	entries    *lru.Cache[string, *Entry]
}

func newMemoryLayer(maxEntries int) *memoryLayer {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryMaxEntries
	}
	entries, err := lru.New[string, *Entry](maxEntries)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &memoryLayer{
		maxEntries: maxEntries,
		entries:    entries,
	}
}

func (m *memoryLayer) get(key string) (*Entry, bool) {
	return m.entries.Get(key)
}

func (m *memoryLayer) set(entry *Entry) {
	m.entries.Add(entry.Key, entry)
	MemoryEntries.Set(float64(m.entries.Len()))
}

func (m *memoryLayer) delete(keys ...string) {
	for _, key := range keys {
		m.entries.Remove(key)
	}
	MemoryEntries.Set(float64(m.entries.Len()))
}

func (m *memoryLayer) len() int {
	return m.entries.Len()
}
