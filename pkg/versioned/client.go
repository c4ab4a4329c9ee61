// Package versioned implements the VersionedLayerClient façade of spec.md
// 4.9: one (catalog, layer)'s metadata/blob repositories and prefetch
// engine, bound to a single catalog version that is resolved lazily and
// latched atomically on first use.
package versioned

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/prefetch"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

const unresolvedVersion int64 = -1

// Client is the VersionedLayerClient façade. Most operations delegate
// straight to the read repositories or the prefetch engine after resolving
// a version; is_cached/remove_from_cache/protect/release instead require a
// version to already be resolved, per spec.md 4.9.
type Client struct {
	HRN   string
	Layer string

	Catalog    *read.CatalogRepository
	Partitions *read.PartitionsRepository
	Data       *read.DataRepository
	Cache      *cache.Cache
	Prefetch   *prefetch.Engine
	Sink       *taskrunner.Sink
	Mutex      *taskrunner.NamedMutexStorage
	Log        *zap.Logger

	version atomic.Int64
}

// NewClient wires a Client from already-constructed repositories and a
// shared cache/sink. mutex defaults to a fresh, client-private
// NamedMutexStorage if nil, matching spec.md 5's "named-mutex storage is
// per-client" rule. injectedVersion < 0 means "resolve lazily from Catalog
// on first use"; an injected value >= 0 latches immediately.
func NewClient(hrn, layer string, catalog *read.CatalogRepository, partitions *read.PartitionsRepository, data *read.DataRepository, c *cache.Cache, sink *taskrunner.Sink, mutex *taskrunner.NamedMutexStorage, log *zap.Logger, injectedVersion int64) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if mutex == nil {
		mutex = taskrunner.NewNamedMutexStorage()
	}
	cl := &Client{
		HRN:        hrn,
		Layer:      layer,
		Catalog:    catalog,
		Partitions: partitions,
		Data:       data,
		Cache:      c,
		Prefetch:   prefetch.NewEngine(partitions, data, sink, log),
		Sink:       sink,
		Mutex:      mutex,
		Log:        log,
	}
	if injectedVersion >= 0 {
		cl.version.Store(injectedVersion)
	} else {
		cl.version.Store(unresolvedVersion)
	}
	return cl
}

// ResolveVersion returns the latched version, fetching it from Catalog on
// first call. Concurrent first callers race the fetch; only the first
// successful CompareAndSwap wins the latch, and everyone reads back
// whichever value won.
func (c *Client) ResolveVersion(ctx context.Context) (int64, error) {
	if v := c.version.Load(); v != unresolvedVersion {
		return v, nil
	}
	fetched, err := c.Catalog.GetLatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	c.version.CompareAndSwap(unresolvedVersion, fetched)
	return c.version.Load(), nil
}

// resolvedVersion returns the already-latched version without fetching,
// failing with PreconditionFailed if none has resolved yet.
func (c *Client) resolvedVersion() (int64, error) {
	v := c.version.Load()
	if v == unresolvedVersion {
		return 0, olperror.PreconditionFailed("no version has been resolved yet")
	}
	return v, nil
}

// GetData implements get_data(DataRequest): resolve version, delegate to
// the data repository.
func (c *Client) GetData(ctx context.Context, req model.DataRequest) ([]byte, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return nil, err
	}
	return c.Data.GetData(ctx, req, version)
}

// GetAggregatedData implements get_aggregated_data(tile): resolve the
// tile's nearest covering quadtree entry, then fetch its blob.
func (c *Client) GetAggregatedData(ctx context.Context, tile quadtree.TileKey) ([]byte, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := c.Partitions.GetAggregatedTile(ctx, tile, version)
	if err != nil {
		return nil, err
	}
	return c.Data.GetData(ctx, model.DataRequest{DataHandle: entry.DataHandle, Fetch: model.OnlineIfNotFound}, version)
}

// GetPartitions implements get_partitions(PartitionsRequest): resolve
// version (overriding whatever req.Version carries — the façade owns
// version selection), delegate to the partitions repository.
func (c *Client) GetPartitions(ctx context.Context, req model.PartitionsRequest) ([]model.Partition, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return nil, err
	}
	req.Version = version
	return c.Partitions.GetPartitions(ctx, req)
}

// StreamLayerPartitions implements stream_layer_partitions.
func (c *Client) StreamLayerPartitions(ctx context.Context, additionalFields []string, onPartition func(model.Partition)) error {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return err
	}
	return c.Partitions.StreamPartitions(ctx, version, additionalFields, onPartition)
}

// QuadTreeIndex implements quad_tree_index(TileRequest).
func (c *Client) QuadTreeIndex(ctx context.Context, req model.TileRequest) (*quadtree.Entry, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return nil, err
	}
	if req.Aggregated {
		return c.Partitions.GetAggregatedTile(ctx, req.Tile, version)
	}
	return c.Partitions.GetTile(ctx, req.Tile, version)
}

// PrefetchTiles implements prefetch_tiles. A nil cc allocates a fresh
// CancellationContext, registered with the sink's PendingRequests for the
// duration of the job so cancel_pending_requests (or Close) reaches it.
func (c *Client) PrefetchTiles(ctx context.Context, req model.PrefetchTilesRequest, cc *olpclient.CancellationContext, priority taskrunner.Priority) (*olpclient.CancellationContext, *model.PrefetchResult, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return cc, nil, err
	}
	if cc == nil {
		cc = olpclient.NewCancellationContext()
	}
	c.Sink.Pending().Add(cc)
	defer c.Sink.Pending().Remove(cc)

	result, err := c.Prefetch.PrefetchTiles(ctx, version, req, cc, priority)
	return cc, result, err
}

// PrefetchPartitions implements prefetch_partitions; see PrefetchTiles for
// the cc/PendingRequests contract.
func (c *Client) PrefetchPartitions(ctx context.Context, req model.PrefetchPartitionsRequest, cc *olpclient.CancellationContext, priority taskrunner.Priority) (*olpclient.CancellationContext, *model.PrefetchResult, error) {
	version, err := c.ResolveVersion(ctx)
	if err != nil {
		return cc, nil, err
	}
	if cc == nil {
		cc = olpclient.NewCancellationContext()
	}
	c.Sink.Pending().Add(cc)
	defer c.Sink.Pending().Remove(cc)

	result, err := c.Prefetch.PrefetchPartitions(ctx, version, req, cc, priority)
	return cc, result, err
}

// IsCachedPartition implements is_cached for a partition ID: true only if
// both the partition record and its blob are cached.
func (c *Client) IsCachedPartition(partitionID string) (bool, error) {
	version, err := c.resolvedVersion()
	if err != nil {
		return false, err
	}
	raw, ok := c.Cache.Get(read.PartitionKey(c.HRN, c.Layer, partitionID, version))
	if !ok {
		return false, nil
	}
	var p model.Partition
	if err := json.Unmarshal(raw, &p); err != nil {
		return false, nil
	}
	return c.Cache.Contains(read.BlobKey(c.HRN, c.Layer, p.DataHandle)), nil
}

// IsCachedTile implements is_cached for a tile: true only if the covering
// quadtree is cached, the tile resolves to an entry in it, and that
// entry's blob is cached.
func (c *Client) IsCachedTile(tile quadtree.TileKey) (bool, error) {
	version, err := c.resolvedVersion()
	if err != nil {
		return false, err
	}
	root := tile.RootAt(uint32(read.QuadTreeDepth))
	raw, ok := c.Cache.Get(read.QuadTreeKey(c.HRN, c.Layer, root.HereTile(), version, read.QuadTreeDepth))
	if !ok {
		return false, nil
	}
	idx, err := quadtree.Parse(root, raw)
	if err != nil {
		return false, nil
	}
	entry, ok := idx.Find(tile, false)
	if !ok {
		return false, nil
	}
	return c.Cache.Contains(read.BlobKey(c.HRN, c.Layer, entry.DataHandle)), nil
}

// RemovePartitionFromCache implements remove_from_cache(partition_id):
// under the per-partition named mutex, drop the partition record and its
// blob. Absence of either is not an error, per spec.md 4.9.
func (c *Client) RemovePartitionFromCache(partitionID string) error {
	version, err := c.resolvedVersion()
	if err != nil {
		return err
	}

	h := c.Mutex.Lock(nil, partitionRemovalMutexName(c.HRN, c.Layer, partitionID, version))
	defer h.Unlock()
	if !h.Held() {
		return olperror.Cancelled()
	}

	key := read.PartitionKey(c.HRN, c.Layer, partitionID, version)
	var dataHandle string
	if raw, ok := c.Cache.Get(key); ok {
		var p model.Partition
		if err := json.Unmarshal(raw, &p); err == nil {
			dataHandle = p.DataHandle
		}
	}
	_ = c.Cache.Remove(key)
	if dataHandle != "" {
		_ = c.Cache.Remove(read.BlobKey(c.HRN, c.Layer, dataHandle))
	}
	return nil
}

// RemoveTileFromCache implements remove_from_cache(tile): under the
// per-quadtree named mutex, drop the tile's own blob, then drop the
// quadtree blob itself only if no other tile it lists still has its blob
// cached (spec.md 4.9).
func (c *Client) RemoveTileFromCache(tile quadtree.TileKey) error {
	version, err := c.resolvedVersion()
	if err != nil {
		return err
	}

	root := tile.RootAt(uint32(read.QuadTreeDepth))
	qkey := read.QuadTreeKey(c.HRN, c.Layer, root.HereTile(), version, read.QuadTreeDepth)

	h := c.Mutex.Lock(nil, quadtreeRemovalMutexName(c.HRN, c.Layer, root.HereTile(), version))
	defer h.Unlock()
	if !h.Held() {
		return olperror.Cancelled()
	}

	raw, ok := c.Cache.Get(qkey)
	if !ok {
		return nil
	}
	idx, err := quadtree.Parse(root, raw)
	if err != nil {
		return nil
	}

	if entry, ok := idx.Find(tile, false); ok && entry.DataHandle != "" {
		_ = c.Cache.Remove(read.BlobKey(c.HRN, c.Layer, entry.DataHandle))
	}

	anyCachedOrProtected := false
	for _, e := range idx.GetIndexData(quadtree.FieldMask{DataHandle: true}) {
		if e.DataHandle == "" {
			continue
		}
		blobKey := read.BlobKey(c.HRN, c.Layer, e.DataHandle)
		if c.Cache.Contains(blobKey) || c.Cache.IsProtected(blobKey) {
			anyCachedOrProtected = true
			break
		}
	}
	if !anyCachedOrProtected {
		_ = c.Cache.Remove(qkey)
	}
	return nil
}

// Protect implements protect(items).
func (c *Client) Protect(items []cache.ProtectedItem) (bool, error) {
	if _, err := c.resolvedVersion(); err != nil {
		return false, err
	}
	return c.Cache.Protect(items), nil
}

// Release implements release(items).
func (c *Client) Release(items []cache.ProtectedItem) (bool, error) {
	if _, err := c.resolvedVersion(); err != nil {
		return false, err
	}
	return c.Cache.Release(items), nil
}

// CancelPendingRequests implements cancel_pending_requests: cancels every
// task currently registered on the client's sink without waiting for them
// to drain.
func (c *Client) CancelPendingRequests() {
	c.Sink.Pending().CancelAll()
}

// Close is the client's destructor-equivalent: cancel_all_and_wait, then
// drain the sink, per spec.md 5.
func (c *Client) Close() {
	c.Sink.Close()
}

func partitionRemovalMutexName(hrn, layer, partitionID string, version int64) string {
	return fmt.Sprintf("%s::%s::%s::%d::remove-partition", hrn, layer, partitionID, version)
}

func quadtreeRemovalMutexName(hrn, layer, tileHere string, version int64) string {
	return fmt.Sprintf("%s::%s::%s::%d::remove-quadtree", hrn, layer, tileHere, version)
}
