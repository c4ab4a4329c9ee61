package versioned_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/internal/testtransport"
	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
	"github.com/heremaps/here-data-sdk-go/pkg/versioned"
)

const (
	base  = "https://metadata.example"
	hrn   = "hrn:here:data::olp-here:test-catalog"
	layer = "test-layer"
)

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(cache.Config{
		DiskPathMutable:    filepath.Join(t.TempDir(), "mutable.db"),
		MaxMemoryCacheSize: 1 << 20,
	}, nil)
	require.NoError(t, c.OpenAll())
	t.Cleanup(func() { _ = c.Close(cache.Mutable) })
	return c
}

// newClient builds a Client with injectedVersion so tests that exercise
// is_cached/remove_from_cache/protect/release don't need a scripted
// versions/latest round trip first.
func newClient(t *testing.T, fake *testtransport.Fake, injectedVersion int64) (*versioned.Client, *cache.Cache) {
	t.Helper()
	c := newCache(t)
	client := olpclient.NewClient(base, fake)
	partitions := &read.PartitionsRepository{HRN: hrn, Layer: layer, Client: client, Cache: c, Mutex: taskrunner.NewNamedMutexStorage()}
	data := &read.DataRepository{HRN: hrn, Layer: layer, Client: client, Cache: c, Partitions: partitions}
	catalog := &read.CatalogRepository{HRN: hrn, Client: client}
	sink := taskrunner.NewSink(nil, nil, nil)
	t.Cleanup(sink.Close)

	vc := versioned.NewClient(hrn, layer, catalog, partitions, data, c, sink, nil, nil, injectedVersion)
	return vc, c
}

func quadTreeJSON(root quadtree.TileKey, subs []quadtree.TileKey) string {
	type rawEntry struct {
		SubQuadKey string `json:"subQuadKey"`
		Version    int64  `json:"version"`
		DataHandle string `json:"dataHandle"`
	}
	entries := make([]rawEntry, len(subs))
	for i, tile := range subs {
		entries[i] = rawEntry{
			SubQuadKey: fmt.Sprintf("%d", tile.SubQuadKey(root)),
			Version:    1,
			DataHandle: "handle-" + tile.HereTile(),
		}
	}
	b, _ := json.Marshal(struct {
		SubQuads []rawEntry `json:"subQuads"`
	}{SubQuads: entries})
	return string(b)
}

func TestResolveVersionFetchesOnceAndLatches(t *testing.T) {
	fake := testtransport.New()
	calls := 0
	fake.Enqueue(base+"/versions/latest?startVersion=-1", func(req *olpclient.Request) (*olpclient.Response, error) {
		calls++
		return testtransport.JSON(200, `{"version":7}`)(req)
	})

	vc, _ := newClient(t, fake, -1)
	v, err := vc.ResolveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v2, err := vc.ResolveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), v2)
	assert.Equal(t, 1, calls)
}

func TestGetDataResolvesVersionThenFetches(t *testing.T) {
	fake := testtransport.New()
	fake.Enqueue(base+"/versions/latest?startVersion=-1", testtransport.JSON(200, `{"version":3}`))
	fake.SetFallback(func(req *olpclient.Request) (*olpclient.Response, error) {
		if testtransport.PathHasPrefix(req, "/layers/test-layer/data/handle-1") {
			return testtransport.JSON(200, "blob-bytes")(req)
		}
		return testtransport.JSON(404, "")(req)
	})

	vc, _ := newClient(t, fake, -1)
	body, err := vc.GetData(context.Background(), model.DataRequest{DataHandle: "handle-1", Fetch: model.OnlineIfNotFound})
	require.NoError(t, err)
	assert.Equal(t, "blob-bytes", string(body))
}

func TestIsCachedAndRemoveFromCacheRequireResolvedVersion(t *testing.T) {
	fake := testtransport.New()
	vc, _ := newClient(t, fake, -1)

	_, err := vc.IsCachedPartition("p1")
	assert.True(t, olperror.Is(err, olperror.KindPreconditionFailed))

	err = vc.RemovePartitionFromCache("p1")
	assert.True(t, olperror.Is(err, olperror.KindPreconditionFailed))

	_, err = vc.Protect(nil)
	assert.True(t, olperror.Is(err, olperror.KindPreconditionFailed))
}

func TestIsCachedPartitionTrueOnlyWhenBothRecordAndBlobCached(t *testing.T) {
	fake := testtransport.New()
	vc, c := newClient(t, fake, 5)

	ok, err := vc.IsCachedPartition("p1")
	require.NoError(t, err)
	assert.False(t, ok)

	raw, _ := json.Marshal(model.Partition{PartitionID: "p1", DataHandle: "h1", Version: 5})
	require.NoError(t, c.Put(read.PartitionKey(hrn, layer, "p1", 5), raw, cache.NoExpiry))

	ok, err = vc.IsCachedPartition("p1")
	require.NoError(t, err)
	assert.False(t, ok, "blob not yet cached")

	require.NoError(t, c.Put(read.BlobKey(hrn, layer, "h1"), []byte("blob"), cache.NoExpiry))
	ok, err = vc.IsCachedPartition("p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemovePartitionFromCacheDropsRecordAndBlob(t *testing.T) {
	fake := testtransport.New()
	vc, c := newClient(t, fake, 5)

	raw, _ := json.Marshal(model.Partition{PartitionID: "p1", DataHandle: "h1", Version: 5})
	require.NoError(t, c.Put(read.PartitionKey(hrn, layer, "p1", 5), raw, cache.NoExpiry))
	require.NoError(t, c.Put(read.BlobKey(hrn, layer, "h1"), []byte("blob"), cache.NoExpiry))

	require.NoError(t, vc.RemovePartitionFromCache("p1"))

	assert.False(t, c.Contains(read.PartitionKey(hrn, layer, "p1", 5)))
	assert.False(t, c.Contains(read.BlobKey(hrn, layer, "h1")))
}

func TestRemovePartitionFromCacheToleratesAbsence(t *testing.T) {
	fake := testtransport.New()
	vc, _ := newClient(t, fake, 5)
	assert.NoError(t, vc.RemovePartitionFromCache("never-cached"))
}

func TestRemoveTileFromCacheKeepsQuadtreeWhileSiblingBlobCached(t *testing.T) {
	fake := testtransport.New()
	vc, c := newClient(t, fake, 5)

	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	tileA := root.Child(0)
	tileB := root.Child(1)

	idx := quadtree.NewIndex(root, read.QuadTreeDepth, []quadtree.Entry{
		{Tile: tileA, DataHandle: "handle-" + tileA.HereTile()},
		{Tile: tileB, DataHandle: "handle-" + tileB.HereTile()},
	}, nil)
	qkey := read.QuadTreeKey(hrn, layer, root.HereTile(), 5, read.QuadTreeDepth)
	require.NoError(t, c.Put(qkey, idx.Serialize(), cache.NoExpiry))

	require.NoError(t, c.Put(read.BlobKey(hrn, layer, "handle-"+tileA.HereTile()), []byte("a"), cache.NoExpiry))
	require.NoError(t, c.Put(read.BlobKey(hrn, layer, "handle-"+tileB.HereTile()), []byte("b"), cache.NoExpiry))

	require.NoError(t, vc.RemoveTileFromCache(tileA))

	assert.False(t, c.Contains(read.BlobKey(hrn, layer, "handle-"+tileA.HereTile())), "removed tile's own blob must be gone")
	assert.True(t, c.Contains(qkey), "quadtree stays while sibling blob is still cached")
}

func TestRemoveTileFromCacheDropsQuadtreeWhenNoSiblingBlobCached(t *testing.T) {
	fake := testtransport.New()
	vc, c := newClient(t, fake, 5)

	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	tileA := root.Child(0)

	idx := quadtree.NewIndex(root, read.QuadTreeDepth, []quadtree.Entry{
		{Tile: tileA, DataHandle: "handle-" + tileA.HereTile()},
	}, nil)
	qkey := read.QuadTreeKey(hrn, layer, root.HereTile(), 5, read.QuadTreeDepth)
	require.NoError(t, c.Put(qkey, idx.Serialize(), cache.NoExpiry))
	require.NoError(t, c.Put(read.BlobKey(hrn, layer, "handle-"+tileA.HereTile()), []byte("a"), cache.NoExpiry))

	require.NoError(t, vc.RemoveTileFromCache(tileA))

	assert.False(t, c.Contains(qkey), "last blob gone means the quadtree itself should be evicted too")
}

func TestRemoveTileFromCacheKeepsQuadtreeWhileSiblingBlobProtected(t *testing.T) {
	fake := testtransport.New()
	vc, c := newClient(t, fake, 5)

	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	tileA := root.Child(0)
	tileB := root.Child(1)

	idx := quadtree.NewIndex(root, read.QuadTreeDepth, []quadtree.Entry{
		{Tile: tileA, DataHandle: "handle-" + tileA.HereTile()},
		{Tile: tileB, DataHandle: "handle-" + tileB.HereTile()},
	}, nil)
	qkey := read.QuadTreeKey(hrn, layer, root.HereTile(), 5, read.QuadTreeDepth)
	require.NoError(t, c.Put(qkey, idx.Serialize(), cache.NoExpiry))

	blobA := read.BlobKey(hrn, layer, "handle-"+tileA.HereTile())
	blobB := read.BlobKey(hrn, layer, "handle-"+tileB.HereTile())
	require.NoError(t, c.Put(blobA, []byte("a"), cache.NoExpiry))
	require.NoError(t, c.Put(blobB, []byte("b"), cache.NoExpiry))

	// tileB's blob is evicted from the cache body but still pinned, so it
	// remains a reason to keep the quadtree.
	require.True(t, c.Protect([]cache.ProtectedItem{{Key: blobB}}))
	require.NoError(t, c.Remove(blobB))

	require.NoError(t, vc.RemoveTileFromCache(tileA))

	assert.False(t, c.Contains(blobA), "removed tile's own blob must be gone")
	assert.True(t, c.Contains(qkey), "quadtree stays while a sibling blob is still protected")
}

func TestPrefetchTilesRegistersAndClearsCancellationContext(t *testing.T) {
	fake := testtransport.New()
	fake.Enqueue(base+"/versions/latest?startVersion=-1", testtransport.JSON(200, `{"version":1}`))

	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	tile := root.Child(0)
	fake.SetFallback(func(req *olpclient.Request) (*olpclient.Response, error) {
		switch {
		case testtransport.PathHasPrefix(req, "/layers/test-layer/versions/"):
			return testtransport.JSON(200, quadTreeJSON(root, []quadtree.TileKey{tile}))(req)
		case testtransport.PathHasPrefix(req, "/layers/test-layer/data/"):
			return testtransport.JSON(200, "blob-bytes")(req)
		}
		return testtransport.JSON(404, "")(req)
	})

	vc, _ := newClient(t, fake, -1)
	cc, result, err := vc.PrefetchTiles(context.Background(), model.PrefetchTilesRequest{
		Tiles: []quadtree.TileKey{tile}, MinLevel: 5, MaxLevel: 5,
	}, nil, taskrunner.Normal)
	require.NoError(t, err)
	require.NotNil(t, cc)
	assert.False(t, cc.IsCancelled())
	require.Len(t, result.Items, 1)
	assert.NoError(t, result.Items[0].Err)
	assert.Equal(t, 0, vc.Sink.Pending().Len(), "PendingRequests entry must be removed once the job completes")
}
