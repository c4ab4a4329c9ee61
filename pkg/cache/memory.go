package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memoryTier is the in-memory hot tier: a byte-budgeted LRU built on top of
// hashicorp/golang-lru, which gives us recency ordering and O(1)
// RemoveOldest; the byte-budget bookkeeping itself (the size bound the
// library doesn't know about) is layered on top.
type memoryTier struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, []byte]
	maxBytes uint64
	curBytes uint64
}

// unboundedCapacity is large enough that golang-lru's own entry-count
// eviction never triggers before our byte-budget eviction does.
const unboundedCapacity = 1 << 20

func newMemoryTier(maxBytes uint64) *memoryTier {
	t := &memoryTier{maxBytes: maxBytes}
	c, err := lru.NewWithEvict[string, []byte](unboundedCapacity, t.onEvict)
	if err != nil {
		// Only fails for non-positive capacity, which unboundedCapacity never is.
		panic(err)
	}
	t.lru = c
	return t
}

func (t *memoryTier) onEvict(key string, value []byte) {
	t.curBytes -= entrySize(key, value)
}

func entrySize(key string, value []byte) uint64 {
	return uint64(len(key) + len(value))
}

func (t *memoryTier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Get(key)
}

func (t *memoryTier) Put(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.lru.Peek(key); ok {
		t.curBytes -= entrySize(key, old)
	}
	t.lru.Add(key, value)
	t.curBytes += entrySize(key, value)

	for t.curBytes > t.maxBytes && t.lru.Len() > 1 {
		t.lru.RemoveOldest()
	}
}

func (t *memoryTier) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Remove(key)
}

func (t *memoryTier) RemovePrefix(prefix string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range t.lru.Keys() {
		if hasPrefix(k, prefix) {
			t.lru.Remove(k)
		}
	}
}

func (t *memoryTier) Size() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curBytes
}

func (t *memoryTier) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
	t.curBytes = 0
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
