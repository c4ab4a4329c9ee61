package cache_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/pkg/cache"
)

func newTestCache(t *testing.T, cfg cache.Config) *cache.Cache {
	t.Helper()
	if cfg.DiskPathMutable == "" {
		cfg.DiskPathMutable = filepath.Join(t.TempDir(), "mutable.db")
	}
	if cfg.MaxMemoryCacheSize == 0 {
		cfg.MaxMemoryCacheSize = 1 << 20
	}
	c := cache.New(cfg, nil)
	require.NoError(t, c.OpenAll())
	t.Cleanup(func() {
		_ = c.Close(cache.Mutable)
		_ = c.Close(cache.Protected)
	})
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, cache.Config{})
	require.NoError(t, c.Put("k1", []byte("v1"), cache.NoExpiry))

	v, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))
}

func TestTTLExpiry(t *testing.T) {
	fixedNow := time.Unix(1_700_000_000, 0)
	c := newTestCache(t, cache.Config{})
	c.SetClock(func() time.Time { return fixedNow })

	require.NoError(t, c.Put("expiring", []byte("v"), fixedNow.Add(time.Second)))
	_, ok := c.Get("expiring")
	assert.True(t, ok)

	c.SetClock(func() time.Time { return fixedNow.Add(2 * time.Second) })
	_, ok = c.Get("expiring")
	assert.False(t, ok, "entry past its expiry must read as absent")
}

func TestRemoveAndPrefixRemove(t *testing.T) {
	c := newTestCache(t, cache.Config{})
	require.NoError(t, c.Put("a::1", []byte("x"), cache.NoExpiry))
	require.NoError(t, c.Put("a::2", []byte("y"), cache.NoExpiry))
	require.NoError(t, c.Put("b::1", []byte("z"), cache.NoExpiry))

	require.NoError(t, c.RemoveWithPrefix("a::"))
	assert.False(t, c.Contains("a::1"))
	assert.False(t, c.Contains("a::2"))
	assert.True(t, c.Contains("b::1"))
}

func TestProtectPreventsEviction(t *testing.T) {
	c := newTestCache(t, cache.Config{
		EvictionPolicy: cache.EvictionLRU,
		MaxDiskStorage: 2048,
	})

	require.True(t, c.Protect([]cache.ProtectedItem{{Key: "k0"}}))
	require.NoError(t, c.Put("k0", make([]byte, 900), cache.NoExpiry))

	for i := 1; i < 6; i++ {
		require.NoError(t, c.Put(keyFor(i), make([]byte, 900), cache.NoExpiry))
	}

	assert.True(t, c.Contains("k0"), "protected entry must survive eviction")
	assert.LessOrEqual(t, float64(c.Size(cache.Mutable)), float64(2048)*0.85+1024,
		"total size should converge toward the eviction threshold")
}

func TestProtectRejectsKeyAlreadyCoveredByPrefix(t *testing.T) {
	c := newTestCache(t, cache.Config{})
	require.True(t, c.Protect([]cache.ProtectedItem{{Key: "p::", IsPrefix: true}}))
	assert.False(t, c.Protect([]cache.ProtectedItem{{Key: "p::1"}}))
}

func TestReleaseOfTransitivelyPinnedKeyFails(t *testing.T) {
	c := newTestCache(t, cache.Config{})
	require.True(t, c.Protect([]cache.ProtectedItem{{Key: "p::", IsPrefix: true}}))
	assert.True(t, c.IsProtected("p::1"))

	assert.False(t, c.Release([]cache.ProtectedItem{{Key: "p::1"}}))
	assert.True(t, c.IsProtected("p::1"), "still pinned: release must target the prefix")

	assert.True(t, c.Release([]cache.ProtectedItem{{Key: "p::", IsPrefix: true}}))
	assert.False(t, c.IsProtected("p::1"))
}

func TestProtectFailsWithoutAnyDiskTier(t *testing.T) {
	c := cache.New(cache.Config{MaxMemoryCacheSize: 1024}, nil)
	assert.False(t, c.Protect([]cache.ProtectedItem{{Key: "k"}}))
}

func keyFor(i int) string {
	return "k" + string(rune('a'+i))
}
