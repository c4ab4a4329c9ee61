package prefetch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
)

// queryResult is one (item, data_handle) candidate discovered by a
// QueryJob, or a not-found placeholder when resolution failed for that
// specific item without aborting the whole job.
type queryResult struct {
	tile        quadtree.TileKey
	partitionID string
	dataHandle  string
	found       bool
}

func (q queryResult) key() string {
	if q.partitionID != "" {
		return q.partitionID
	}
	return q.tile.HereTile()
}

// runTileListQuery resolves each of tiles directly — GetAggregatedTile when
// aggregated, GetTile otherwise — one errgroup task per tile. Per spec.md
// 4.8, any single non-cancellation query failure aborts the whole tile
// prefetch; a tile with no entry at all (aggregated walk found nothing)
// becomes a not-found placeholder rather than an error, so the terminal
// result reports NotFound for that one tile instead of failing the batch.
func runTileListQuery(ctx context.Context, partitions *read.PartitionsRepository, version int64, tiles []quadtree.TileKey, aggregated bool) ([]queryResult, error) {
	results := make([]queryResult, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, tile := range tiles {
		i, tile := i, tile
		g.Go(func() error {
			var entry *quadtree.Entry
			var err error
			if aggregated {
				entry, err = partitions.GetAggregatedTile(gctx, tile, version)
			} else {
				entry, err = partitions.GetTile(gctx, tile, version)
			}
			if err != nil {
				if olperror.Is(err, olperror.KindNotFound) {
					results[i] = queryResult{tile: tile, found: false}
					return nil
				}
				return err
			}
			results[i] = queryResult{tile: tile, dataHandle: entry.DataHandle, found: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runLevelRangeQuery slices roots from anchors across [minLevel,maxLevel]
// (SliceRoots), loads each root's quadtree with one errgroup task per root,
// then keeps every descendant/ancestor entry that falls within the
// requested level band and relates to at least one anchor tile — the "by
// level" filter of spec.md 4.8. Any single non-cancellation query failure
// aborts the whole prefetch, same as the list-mode path.
func runLevelRangeQuery(ctx context.Context, partitions *read.PartitionsRepository, version int64, anchors []quadtree.TileKey, minLevel, maxLevel uint32) ([]queryResult, error) {
	roots := SliceRoots(anchors, minLevel, maxLevel)

	type loadedRoot struct {
		index *quadtree.Index
	}
	rootKeys := make([]quadtree.TileKey, 0, len(roots))
	for root := range roots {
		rootKeys = append(rootKeys, root)
	}
	loaded := make([]loadedRoot, len(rootKeys))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range rootKeys {
		i, root := i, root
		g.Go(func() error {
			idx, err := partitions.LoadQuadTree(gctx, root, version)
			if err != nil {
				return err
			}
			loaded[i] = loadedRoot{index: idx}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []queryResult
	for _, l := range loaded {
		for _, e := range l.index.GetIndexData(quadtree.AllFields) {
			if !tileInRange(e.Tile, minLevel, maxLevel) {
				continue
			}
			if !tileRelatesToAnyAnchor(e.Tile, anchors) {
				continue
			}
			results = append(results, queryResult{tile: e.Tile, dataHandle: e.DataHandle, found: true})
		}
	}
	return results, nil
}

// runPartitionQuery fetches partitionIDs in <=100-ID batches, one errgroup
// task per batch scheduled directly (not through Sink — the query
// phase is a barrier, per spec.md 4.8's "errgroup for QueryJob"). Unlike
// tile prefetch, a partition batch failure does not abort its siblings:
// only when every batch fails does the whole query fail, per spec.md 4.8's
// error policy; partial success proceeds with whatever batches succeeded.
func runPartitionQuery(ctx context.Context, partitions *read.PartitionsRepository, version int64, ids []string) ([]queryResult, error) {
	const batchSize = 100
	type batchOutcome struct {
		results []queryResult
		err     error
	}
	batches := make([][]string, 0, (len(ids)+batchSize-1)/batchSize)
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	outcomes := make([]batchOutcome, len(batches))

	var g errgroup.Group
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			fetched, err := partitions.GetPartitions(ctx, model.PartitionsRequest{PartitionIDs: batch, Version: version})
			if err != nil {
				outcomes[i] = batchOutcome{err: err}
				return nil
			}
			got := make(map[string]bool, len(fetched))
			results := make([]queryResult, 0, len(batch))
			for _, p := range fetched {
				got[p.PartitionID] = true
				results = append(results, queryResult{partitionID: p.PartitionID, dataHandle: p.DataHandle, found: true})
			}
			for _, id := range batch {
				if !got[id] {
					results = append(results, queryResult{partitionID: id, found: false})
				}
			}
			outcomes[i] = batchOutcome{results: results}
			return nil
		})
	}
	_ = g.Wait() // per-batch errors are aggregated below, never propagated as a group failure

	var results []queryResult
	failures := 0
	var lastErr error
	for _, o := range outcomes {
		if o.err != nil {
			failures++
			lastErr = o.err
			continue
		}
		results = append(results, o.results...)
	}
	if failures == len(batches) && len(batches) > 0 {
		return nil, lastErr
	}
	return results, nil
}
