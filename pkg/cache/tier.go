// Package cache implements the three-tier versioned-catalog cache described
// in spec.md 4.3: an in-memory byte-budgeted LRU, a mutable on-disk KV store
// and an optional read-only "protected" on-disk KV store, plus a durable
// protected-key/prefix set that both disk layers honour during eviction.
package cache

import "time"

// Tier identifies one layer of the cache, used by Size and Open/Close.
type Tier int

const (
	Memory Tier = iota
	Mutable
	Protected
)

func (t Tier) String() string {
	switch t {
	case Memory:
		return "Memory"
	case Mutable:
		return "Mutable"
	case Protected:
		return "Protected"
	default:
		return "Unknown"
	}
}

// EvictionPolicy mirrors spec.md 6.
type EvictionPolicy int

const (
	EvictionNone EvictionPolicy = iota
	EvictionLRU
)

// OpenOption controls how a disk tier is opened.
type OpenOption int

const (
	OpenDefault OpenOption = iota
	OpenReadOnly
)

// evictionThreshold is the fraction of MaxDiskStorage an LRU eviction pass
// reduces the mutable tier to (spec.md 3 and 8).
const evictionThreshold = 0.85

// internalKeyPrefix marks cache keys that bypass the LRU index entirely:
// they live in the disk store but are never considered for LRU eviction.
// The protected set itself is persisted under this prefix.
const internalKeyPrefix = "internal::"

// protectedSetKey is the internal key the protected set is persisted under
// so that re-opening a cache preserves pins (spec.md 4.3).
const protectedSetKey = internalKeyPrefix + "protected::set"

// Config is the enumerated configuration surface of spec.md 6. cmd/olp-read
// fills selected fields from individual viper keys; the mapstructure tags
// are not read by it.
type Config struct {
	MaxDiskStorage          uint64        `mapstructure:"max-disk-storage"` // MaxUint64 => unlimited, disables LRU
	EvictionPolicy          EvictionPolicy `mapstructure:"eviction-policy"`
	MaxMemoryCacheSize      uint64        `mapstructure:"max-memory-cache-size"`
	DefaultCacheExpiration  time.Duration `mapstructure:"default-cache-expiration"` // 0 => no default expiry
	OpenOptions             OpenOption    `mapstructure:"open-options"`
	DiskPathMutable         string        `mapstructure:"disk-path-mutable"`
	DiskPathProtected       string        `mapstructure:"disk-path-protected"`
	PropagateAllCacheErrors bool          `mapstructure:"propagate-all-cache-errors"`
}

// NoExpiry is passed to Put to request an entry that never expires (the
// "expiry = max_time_t" sentinel of spec.md 3).
var NoExpiry = time.Time{}
