package prefetch

import (
	"context"

	"go.uber.org/zap"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

// Engine runs the QueryJob/DownloadJob pipeline of spec.md 4.8 against one
// (catalog, layer)'s metadata and data repositories, scheduling downloads
// through a shared Sink.
type Engine struct {
	Partitions *read.PartitionsRepository
	Data       *read.DataRepository
	Sink       *taskrunner.Sink
	Log        *zap.Logger
}

// NewEngine builds an Engine; log defaults to a no-op logger.
func NewEngine(partitions *read.PartitionsRepository, data *read.DataRepository, sink *taskrunner.Sink, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Partitions: partitions, Data: data, Sink: sink, Log: log}
}

// PrefetchTiles runs the tile QueryJob then DownloadJob described in
// spec.md 4.8. When req.MinLevel == req.MaxLevel, each tile in req.Tiles is
// resolved directly (list mode, honouring req.DataAggregation); otherwise
// req.Tiles anchor a depth-4-aligned root slice across [MinLevel,MaxLevel]
// and every covered descendant is a download candidate (level mode).
func (e *Engine) PrefetchTiles(ctx context.Context, version int64, req model.PrefetchTilesRequest, cc *olpclient.CancellationContext, priority taskrunner.Priority) (*model.PrefetchResult, error) {
	if len(req.Tiles) == 0 {
		return nil, olperror.InvalidArgument("prefetch_tiles requires at least one tile")
	}

	var candidates []queryResult
	var err error
	if req.MinLevel == req.MaxLevel {
		candidates, err = runTileListQuery(ctx, e.Partitions, version, req.Tiles, req.DataAggregation)
	} else {
		candidates, err = runLevelRangeQuery(ctx, e.Partitions, version, req.Tiles, req.MinLevel, req.MaxLevel)
	}
	if err != nil {
		return nil, err
	}

	return runDownloadJob(ctx, e.Data, version, candidates, e.Sink, priority, cc, req.Progress), nil
}

// PrefetchPartitions runs the partition QueryJob then DownloadJob of
// spec.md 4.8: batched metadata lookup tolerating partial batch failure,
// then one download task per resolved partition. An empty result — every
// requested partition came back not-found, or every download failed — is
// itself an error, per spec.md 4.8.
func (e *Engine) PrefetchPartitions(ctx context.Context, version int64, req model.PrefetchPartitionsRequest, cc *olpclient.CancellationContext, priority taskrunner.Priority) (*model.PrefetchResult, error) {
	if len(req.PartitionIDs) == 0 {
		return nil, olperror.InvalidArgument("prefetch_partitions requires at least one partition id")
	}

	candidates, err := runPartitionQuery(ctx, e.Partitions, version, req.PartitionIDs)
	if err != nil {
		return nil, err
	}

	result := runDownloadJob(ctx, e.Data, version, candidates, e.Sink, priority, cc, req.Progress)

	successes := 0
	for _, item := range result.Items {
		if item.Err == nil {
			successes++
		}
	}
	if successes == 0 {
		return result, olperror.NotFound("no partitions were prefetched")
	}
	return result, nil
}
