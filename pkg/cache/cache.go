package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache is the three-tier KV cache described in spec.md 4.3. Reads consult
// memory, then the mutable disk store, then the read-only protected disk
// store; writes land in memory and the mutable disk store only.
type Cache struct {
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
	mu        sync.Mutex
	memory    *memoryTier
	mutable   *diskTier
	protected *diskTier
	pinned    *protectedSet
}

// New constructs a Cache from cfg but does not open the disk tiers; call
// Open(Mutable) / Open(Protected) (or OpenAll) before using them.
func New(cfg Config, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		memory:    newMemoryTier(cfg.MaxMemoryCacheSize),
		mutable:   newDiskTier(cfg.DiskPathMutable, false),
		protected: newDiskTier(cfg.DiskPathProtected, true),
	}
	c.pinned = newProtectedSet(c.persistProtectedSet)
	return c
}

// SetClock overrides the time source; only tests call it, nothing in this
// module installs a server-time-aligned clock.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// OpenAll opens every configured disk tier and loads the persisted
// protected set.
func (c *Cache) OpenAll() error {
	if err := c.Open(Mutable); err != nil {
		return err
	}
	if err := c.Open(Protected); err != nil {
		return err
	}
	if c.mutable.enabled() {
		raw, _, _ := c.mutable.Get(protectedSetKey, c.now())
		if err := c.pinned.loadFrom(raw); err != nil {
			c.log.Warn("failed to load protected set", zap.Error(err))
		}
	}
	return nil
}

func (c *Cache) Open(tier Tier) error {
	switch tier {
	case Mutable:
		return c.mutable.Open()
	case Protected:
		return c.protected.Open()
	default:
		return nil
	}
}

func (c *Cache) Close(tier Tier) error {
	switch tier {
	case Mutable:
		return c.mutable.Close()
	case Protected:
		return c.protected.Close()
	default:
		return nil
	}
}

func (c *Cache) persistProtectedSet(exact, prefixes []string) error {
	if !c.mutable.enabled() {
		return nil
	}
	b := c.pinned.marshal()
	return c.mutable.Put(protectedSetKey, b, NoExpiry)
}

// Get reads key from memory, then the mutable disk tier, then the protected
// disk tier, promoting hits found in a lower tier back into memory.
func (c *Cache) Get(key string) ([]byte, bool) {
	now := c.now()
	if v, ok := c.memory.Get(key); ok {
		return v, true
	}
	if v, ok, err := c.mutable.Get(key, now); err == nil && ok {
		c.memory.Put(key, v)
		return v, true
	} else if err != nil && c.cfg.PropagateAllCacheErrors {
		c.log.Warn("mutable cache read error", zap.String("key", key), zap.Error(err))
	}
	if v, ok, err := c.protected.Get(key, now); err == nil && ok {
		c.memory.Put(key, v)
		return v, true
	}
	return nil, false
}

// GetDecoded is the typed overload of Get: bytes are stored as-is, decode
// runs only on a hit.
func (c *Cache) GetDecoded(key string, decode func([]byte) (interface{}, error)) (interface{}, bool, error) {
	raw, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	v, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put writes value to memory and the mutable disk tier. expiry == NoExpiry
// means the entry never expires.
func (c *Cache) Put(key string, value []byte, expiry time.Time) error {
	c.memory.Put(key, value)
	if !c.mutable.enabled() {
		return nil
	}
	if err := c.mutable.Put(key, value, expiry); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	c.maybeEvict()
	return nil
}

// PutEncoded is the typed overload of Put.
func (c *Cache) PutEncoded(key string, value interface{}, encode func(interface{}) ([]byte, error), expiry time.Time) error {
	raw, err := encode(value)
	if err != nil {
		return err
	}
	return c.Put(key, raw, expiry)
}

func (c *Cache) Remove(key string) error {
	c.memory.Remove(key)
	if !c.mutable.enabled() {
		return nil
	}
	return c.mutable.Delete(key)
}

func (c *Cache) RemoveWithPrefix(prefix string) error {
	c.memory.RemovePrefix(prefix)
	if !c.mutable.enabled() {
		return nil
	}
	return c.mutable.DeletePrefix(prefix)
}

func (c *Cache) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Protect pins keys/prefixes; fails if neither disk tier is configured, per
// spec.md 4.3.
func (c *Cache) Protect(items []ProtectedItem) bool {
	if !c.mutable.enabled() && !c.protected.enabled() {
		return false
	}
	return c.pinned.Protect(items)
}

func (c *Cache) Release(items []ProtectedItem) bool {
	return c.pinned.Release(items)
}

func (c *Cache) IsProtected(key string) bool {
	return c.pinned.IsProtected(key)
}

func (c *Cache) Size(tier Tier) uint64 {
	switch tier {
	case Memory:
		return c.memory.Size()
	case Mutable:
		return c.mutable.Size()
	case Protected:
		return c.protected.Size()
	default:
		return 0
	}
}

// Resize lowers MaxDiskStorage to newMax and runs one eviction pass,
// returning the number of bytes freed from the mutable tier.
func (c *Cache) Resize(newMax uint64) uint64 {
	before := c.mutable.Size()
	c.cfg.MaxDiskStorage = newMax
	c.maybeEvict()
	after := c.mutable.Size()
	if before > after {
		return before - after
	}
	return 0
}

func (c *Cache) Clear() error {
	c.memory.Clear()
	if err := c.mutable.Clear(); err != nil {
		return err
	}
	return nil
}

// Compact is a best-effort hint; the disk KV store's physical layout is
// managed by boltdb and hard-delete/reclaim guarantees are out of scope
// (spec.md 1 Non-goals), so Compact does nothing: the in-memory LRU tier
// and the bolt file are both left as-is.
func (c *Cache) Compact() error {
	return nil
}

func (c *Cache) maybeEvict() {
	if c.cfg.EvictionPolicy != EvictionLRU {
		return
	}
	if c.cfg.MaxDiskStorage == ^uint64(0) {
		return // unlimited disables LRU
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.mutable.expiredKeys(now) {
		if c.pinned.IsProtected(key) {
			continue
		}
		_ = c.mutable.Delete(key)
		c.memory.Remove(key)
	}

	threshold := uint64(float64(c.cfg.MaxDiskStorage) * evictionThreshold)
	for c.mutable.Size() > threshold {
		key, ok := c.mutable.oldestNonProtected(c.pinned.IsProtected)
		if !ok {
			break // every remaining entry is protected
		}
		_ = c.mutable.Delete(key)
		c.memory.Remove(key)
	}
}
