package read

import (
	"context"
	"fmt"
	"time"

	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

// DataRepository fetches blob bytes by data handle, consulting Cache first
// and resolving partition_id -> data_handle through Partitions when needed,
// per spec.md 4.6.
type DataRepository struct {
	HRN        string
	Layer      string
	Client     *olpclient.Client
	Cache      *cache.Cache
	Partitions *PartitionsRepository
	DefaultTTL time.Duration // 0 means cache.NoExpiry
}

// GetData implements get_versioned_data: resolve data_handle if needed,
// consult cache, fetch on miss (unless CacheOnly), and persist the result.
func (r *DataRepository) GetData(ctx context.Context, req model.DataRequest, version int64) ([]byte, error) {
	if req.Fetch == model.CacheWithUpdate {
		return nil, olperror.InvalidArgument("CacheWithUpdate is not valid for versioned layers")
	}

	dataHandle := req.DataHandle
	if dataHandle == "" {
		if req.PartitionID == "" {
			return nil, olperror.InvalidArgument("either partition_id or data_handle must be set")
		}
		partitions, err := r.Partitions.GetPartitions(ctx, model.PartitionsRequest{
			PartitionIDs: []string{req.PartitionID},
			Version:      version,
		})
		if err != nil {
			return nil, err
		}
		if len(partitions) == 0 {
			return nil, olperror.NotFound("partition not found: " + req.PartitionID)
		}
		dataHandle = partitions[0].DataHandle
	}

	key := blobKey(r.HRN, r.Layer, dataHandle)
	if req.Fetch != model.OnlineOnly {
		if raw, ok := r.Cache.Get(key); ok {
			return raw, nil
		}
	}
	if req.Fetch == model.CacheOnly {
		return nil, olperror.NotFound("blob not cached: " + dataHandle)
	}

	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/layers/%s/data/%s", r.Layer, dataHandle),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == 404 {
		return nil, olperror.NotFound("blob not found: " + dataHandle)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
	}

	expiry := cache.NoExpiry
	if r.DefaultTTL > 0 {
		expiry = time.Now().Add(r.DefaultTTL)
	}
	_ = r.Cache.Put(key, resp.Body, expiry) // write failures never fail the happy path, spec.md 7
	return resp.Body, nil
}
