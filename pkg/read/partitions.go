package read

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

// maxPartitionIDsPerBatch bounds a single metadata request, per spec.md 4.5.
const maxPartitionIDsPerBatch = 100

// quadTreeDepth is the fixed subtree depth this repository requests and
// caches quadtree blobs at; chain-loading for aggregation walks ancestors
// one quadTreeDepth step at a time.
const quadTreeDepth int8 = 4

// PartitionsRepository resolves partition metadata and quadtree indices for
// one (catalog, layer), per spec.md 4.5.
type PartitionsRepository struct {
	HRN    string
	Layer  string
	Client *olpclient.Client
	Cache  *cache.Cache
	Mutex  *taskrunner.NamedMutexStorage
}

// GetPartitions reads cached records for req.PartitionIDs, fetches the
// remainder in ≤100-ID batches, persists and returns them. Concurrent
// fetches for the same (layer, version) ID bundle are serialised by a named
// mutex so only one caller hits the network.
func (r *PartitionsRepository) GetPartitions(ctx context.Context, req model.PartitionsRequest) ([]model.Partition, error) {
	found := make(map[string]model.Partition, len(req.PartitionIDs))
	missing := r.readCached(req, found)
	if len(missing) == 0 {
		return orderPartitions(req.PartitionIDs, found), nil
	}

	h := r.Mutex.Lock(nil, r.fetchMutexName(req.Version, missing))
	defer h.Unlock()
	if !h.Held() {
		return nil, olperror.Cancelled()
	}

	// Another caller may have populated the cache while we waited.
	stillMissing := r.readCached(model.PartitionsRequest{PartitionIDs: missing, Version: req.Version}, found)

	for start := 0; start < len(stillMissing); start += maxPartitionIDsPerBatch {
		end := start + maxPartitionIDsPerBatch
		if end > len(stillMissing) {
			end = len(stillMissing)
		}
		fetched, err := r.fetchBatch(ctx, stillMissing[start:end], req)
		if err != nil {
			h.SetSharedError(asAPIError(err))
			return nil, err
		}
		for _, p := range fetched {
			found[p.PartitionID] = p
			if raw, marshalErr := json.Marshal(p); marshalErr == nil {
				_ = r.Cache.Put(partitionKey(r.HRN, r.Layer, p.PartitionID, req.Version), raw, cache.NoExpiry)
			}
		}
	}

	return orderPartitions(req.PartitionIDs, found), nil
}

func (r *PartitionsRepository) readCached(req model.PartitionsRequest, found map[string]model.Partition) []string {
	var missing []string
	for _, id := range req.PartitionIDs {
		if _, ok := found[id]; ok {
			continue
		}
		raw, ok := r.Cache.Get(partitionKey(r.HRN, r.Layer, id, req.Version))
		if !ok {
			missing = append(missing, id)
			continue
		}
		var p model.Partition
		if err := json.Unmarshal(raw, &p); err != nil {
			missing = append(missing, id)
			continue
		}
		found[id] = p
	}
	return missing
}

func (r *PartitionsRepository) fetchMutexName(version int64, ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s::%s::partitions::%d::%s", r.HRN, r.Layer, version, strings.Join(sorted, ","))
}

func (r *PartitionsRepository) fetchBatch(ctx context.Context, ids []string, req model.PartitionsRequest) ([]model.Partition, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("partition", id)
	}
	q.Set("version", strconv.FormatInt(req.Version, 10))
	for _, f := range req.AdditionalFields {
		q.Add("additionalFields", f)
	}

	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/layers/%s/partitions", r.Layer),
		Query:  q,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == 404 {
		return nil, olperror.NotFound("partitions not found")
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
	}

	var body struct {
		Partitions []model.Partition `json:"partitions"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, olperror.Wrap(olperror.KindUnknown, resp.Status, err)
	}
	return body.Partitions, nil
}

func orderPartitions(ids []string, found map[string]model.Partition) []model.Partition {
	out := make([]model.Partition, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func asAPIError(err error) *olperror.ApiError {
	if ae, ok := err.(*olperror.ApiError); ok {
		return ae
	}
	return olperror.Wrap(olperror.KindUnknown, 0, err)
}

// GetTile returns the direct entry for tile at version, per spec.md 4.5.
func (r *PartitionsRepository) GetTile(ctx context.Context, tile quadtree.TileKey, version int64) (*quadtree.Entry, error) {
	return r.getTile(ctx, tile, version, false)
}

// GetAggregatedTile is GetTile but returns the nearest covering ancestor
// entry when tile itself has none, chain-loading ancestor quadtrees if the
// aggregate lies outside the first-loaded subtree.
func (r *PartitionsRepository) GetAggregatedTile(ctx context.Context, tile quadtree.TileKey, version int64) (*quadtree.Entry, error) {
	return r.getTile(ctx, tile, version, true)
}

func (r *PartitionsRepository) getTile(ctx context.Context, tile quadtree.TileKey, version int64, aggregated bool) (*quadtree.Entry, error) {
	root := tile.RootAt(uint32(quadTreeDepth))
	for {
		idx, err := r.LoadQuadTree(ctx, root, version)
		if err != nil {
			return nil, err
		}
		if e, ok := idx.Find(tile, aggregated); ok {
			return e, nil
		}
		if !aggregated || root.Level < uint32(quadTreeDepth) {
			return nil, olperror.NotFound("tile not found in quadtree")
		}
		root = root.ChangedLevelBy(-int(quadTreeDepth))
	}
}

// LoadQuadTree fetches (or reads from cache) the depth-4 quadtree blob
// rooted at root for version, parsing it into an Index. Concurrent loads of
// the same quadtree are serialised by a named mutex.
func (r *PartitionsRepository) LoadQuadTree(ctx context.Context, root quadtree.TileKey, version int64) (*quadtree.Index, error) {
	key := quadTreeKey(r.HRN, r.Layer, root.HereTile(), version, quadTreeDepth)
	if raw, ok := r.Cache.Get(key); ok {
		idx, err := quadtree.Parse(root, raw)
		if err == nil {
			return idx, nil
		}
	}

	h := r.Mutex.Lock(nil, key)
	defer h.Unlock()
	if !h.Held() {
		return nil, olperror.Cancelled()
	}
	if raw, ok := r.Cache.Get(key); ok {
		if idx, err := quadtree.Parse(root, raw); err == nil {
			return idx, nil
		}
	}

	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/layers/%s/versions/%d/quadkeys/%s/depths/%d", r.Layer, version, root.HereTile(), quadTreeDepth),
	})
	if err != nil {
		h.SetSharedError(asAPIError(err))
		return nil, err
	}
	if resp.Status == 404 {
		apiErr := olperror.NotFound("quadtree not found")
		h.SetSharedError(apiErr)
		return nil, apiErr
	}
	if resp.Status < 200 || resp.Status >= 300 {
		apiErr := olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
		h.SetSharedError(apiErr)
		return nil, apiErr
	}

	idx, err := parseQuadTreeJSON(root, quadTreeDepth, resp.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Cache.Put(key, idx.Serialize(), cache.NoExpiry)
	return idx, nil
}
