package prefetch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

// runDownloadJob fetches every found candidate's blob through sink
// (DataRepository.GetData already skips the network call and promotes the
// cached entry's LRU position on a cache hit), one task per candidate at
// priority. Per spec.md 4.8, a per-item failure is reported in that item's
// ItemResult and never aborts the job; only cc being cancelled aborts
// outstanding items early. The aggregated PrefetchResult this returns once
// every task has completed stands in for the "terminal callback" spec.md
// describes, since this engine's façade is synchronous rather than
// callback-driven.
func runDownloadJob(ctx context.Context, data *read.DataRepository, version int64, candidates []queryResult, sink *taskrunner.Sink, priority taskrunner.Priority, cc *olpclient.CancellationContext, progress func(model.ProgressEvent)) *model.PrefetchResult {
	results := make([]model.ItemResult, len(candidates))
	var processed int32
	var totalBytes int64
	var wg sync.WaitGroup

	report := func(i int, res model.ItemResult, bytes int64) {
		results[i] = res
		if bytes > 0 {
			atomic.AddInt64(&totalBytes, bytes)
		}
		n := atomic.AddInt32(&processed, 1)
		if progress != nil {
			progress(model.ProgressEvent{Processed: int(n), Total: len(candidates), Bytes: atomic.LoadInt64(&totalBytes)})
		}
	}

	for i, cand := range candidates {
		i, cand := i, cand
		wg.Add(1)
		sink.AddTask(func(taskCtx context.Context) {
			defer wg.Done()

			if cc != nil && cc.IsCancelled() {
				report(i, model.ItemResult{Key: cand.key(), Err: olperror.Cancelled()}, 0)
				return
			}
			if !cand.found {
				report(i, model.ItemResult{Key: cand.key(), Err: olperror.NotFound("not found: " + cand.key())}, 0)
				return
			}

			body, err := data.GetData(taskCtx, model.DataRequest{DataHandle: cand.dataHandle, Fetch: model.OnlineIfNotFound}, version)
			if err != nil {
				report(i, model.ItemResult{Key: cand.key(), Err: err}, 0)
				return
			}
			report(i, model.ItemResult{Key: cand.key()}, int64(len(body)))
		}, priority, nil)
	}
	wg.Wait()

	return &model.PrefetchResult{
		Items:      results,
		Statistics: model.NetworkStatistics{BytesDownloaded: totalBytes},
	}
}
