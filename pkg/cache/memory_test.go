package cache

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func testEntry(key string) *Entry {
	now := time.Now()
	return &Entry{Key: key, Value: json.RawMessage(`1`), StoredAt: now, ExpiresAt: now.Add(time.Hour)}
}

func TestMemoryLayer_EvictsLeastRecentlyUsed(t *testing.T) {
	m := newMemoryLayer(3)
	for i := 0; i < 3; i++ {
		m.set(testEntry(fmt.Sprintf("k%d", i)))
	}

	// Touch k0 so k1 becomes the oldest.
	if _, ok := m.get("k0"); !ok {
		t.Fatal("k0 missing")
	}
	m.set(testEntry("k3"))

	if m.len() != 3 {
		t.Errorf("len() = %d, want 3", m.len())
	}
	if _, ok := m.get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := m.get(k); !ok {
			t.Errorf("%s should still be present", k)
		}
	}
}

func TestMemoryLayer_OverwriteKeepsSize(t *testing.T) {
	m := newMemoryLayer(2)
	m.set(testEntry("a"))
	m.set(testEntry("a"))
	if m.len() != 1 {
		t.Errorf("len() = %d, want 1", m.len())
	}
}

func TestMemoryLayer_Delete(t *testing.T) {
	m := newMemoryLayer(0)
	if m.maxEntries != DefaultMemoryMaxEntries {
		t.Errorf("maxEntries = %d, want %d", m.maxEntries, DefaultMemoryMaxEntries)
	}
	m.set(testEntry("a"))
	m.set(testEntry("b"))
	m.delete("a", "missing")

	if _, ok := m.get("a"); ok {
		t.Error("a should be deleted")
	}
	if m.len() != 1 {
		t.Errorf("len() = %d, want 1", m.len())
	}
}

func TestMemoryLayer_GetRefreshesRecency(t *testing.T) {
	m := newMemoryLayer(2)
	m.set(testEntry("a"))
	m.set(testEntry("b"))

	// Reading a makes b the eviction candidate.
	m.get("a")
	m.set(testEntry("c"))

	if _, ok := m.get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := m.get("a"); !ok {
		t.Error("a should survive after being read")
	}
}
