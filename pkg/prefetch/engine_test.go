package prefetch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/internal/testtransport"
	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/prefetch"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

const base = "https://metadata.example"

func newEngine(t *testing.T, fake *testtransport.Fake) *prefetch.Engine {
	t.Helper()
	c := cache.New(cache.Config{
		DiskPathMutable:    filepath.Join(t.TempDir(), "mutable.db"),
		MaxMemoryCacheSize: 1 << 20,
	}, nil)
	require.NoError(t, c.OpenAll())
	t.Cleanup(func() { _ = c.Close(cache.Mutable) })

	client := olpclient.NewClient(base, fake)
	partitions := &read.PartitionsRepository{
		HRN: "hrn:test", Layer: "test-layer", Client: client, Cache: c, Mutex: taskrunner.NewNamedMutexStorage(),
	}
	data := &read.DataRepository{HRN: "hrn:test", Layer: "test-layer", Client: client, Cache: c, Partitions: partitions}
	sink := taskrunner.NewSink(nil, nil, nil)
	t.Cleanup(sink.Close)
	return prefetch.NewEngine(partitions, data, sink, nil)
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

func partitionsJSON(ids ...string) string {
	parts := make([]model.Partition, len(ids))
	for i, id := range ids {
		parts[i] = model.Partition{PartitionID: id, DataHandle: "handle-" + id, Version: 1}
	}
	b, _ := json.Marshal(struct {
		Partitions []model.Partition `json:"partitions"`
	}{Partitions: parts})
	return string(b)
}

func TestPrefetchTilesListModeDownloadsEachTile(t *testing.T) {
	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	tile1 := root.Child(0)
	tile2 := root.Child(1)

	fake := testtransport.New()
	fake.SetFallback(func(req *olpclient.Request) (*olpclient.Response, error) {
		if req.Method == "GET" {
			switch {
			case testtransport.PathHasPrefix(req, "/layers/test-layer/versions/"):
				return testtransport.JSON(200, quadTreeJSON(root, []quadtree.TileKey{tile1, tile2}))(req)
			case testtransport.PathHasPrefix(req, "/layers/test-layer/data/"):
				return testtransport.JSON(200, "blob-bytes")(req)
			}
		}
		return testtransport.JSON(404, "")(req)
	})

	e := newEngine(t, fake)
	result, err := e.PrefetchTiles(context.Background(), 1, model.PrefetchTilesRequest{
		Tiles:    []quadtree.TileKey{tile1, tile2},
		MinLevel: 5, MaxLevel: 5,
	}, nil, taskrunner.Normal)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.NoError(t, item.Err)
	}
	assert.Equal(t, int64(len("blob-bytes")*2), result.Statistics.BytesDownloaded)
}

func TestPrefetchTilesListModeReportsNotFoundForMissingTile(t *testing.T) {
	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	present := root.Child(0)
	missing := root.Child(2)

	fake := testtransport.New()
	fake.SetFallback(func(req *olpclient.Request) (*olpclient.Response, error) {
		switch {
		case testtransport.PathHasPrefix(req, "/layers/test-layer/versions/"):
			return testtransport.JSON(200, quadTreeJSON(root, []quadtree.TileKey{present}))(req)
		case testtransport.PathHasPrefix(req, "/layers/test-layer/data/"):
			return testtransport.JSON(200, "blob-bytes")(req)
		}
		return testtransport.JSON(404, "")(req)
	})

	e := newEngine(t, fake)
	result, err := e.PrefetchTiles(context.Background(), 1, model.PrefetchTilesRequest{
		Tiles:    []quadtree.TileKey{present, missing},
		MinLevel: 5, MaxLevel: 5,
	}, nil, taskrunner.Normal)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	var gotOK, gotMissing int
	for _, item := range result.Items {
		if item.Err == nil {
			gotOK++
		} else {
			gotMissing++
		}
	}
	assert.Equal(t, 1, gotOK)
	assert.Equal(t, 1, gotMissing)
}

func TestPrefetchPartitionsPartialBatchFailureStillSucceeds(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(func(req *olpclient.Request) (*olpclient.Response, error) {
		if testtransport.PathHasPrefix(req, "/layers/test-layer/data/") {
			return testtransport.JSON(200, "blob-bytes")(req)
		}
		u, err := url.Parse(req.Path)
		require.NoError(t, err)
		ids := u.Query()["partition"]
		// The first batch (p000..p099) fails on every attempt, retries
		// included; the second batch (p100..p149) succeeds.
		if len(ids) > 0 && ids[0] == "p000" {
			return testtransport.JSON(503, "down")(req)
		}
		return testtransport.JSON(200, partitionsJSON(ids...))(req)
	})

	e := newEngine(t, fake)
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%03d", i)
	}
	result, err := e.PrefetchPartitions(context.Background(), 1, model.PrefetchPartitionsRequest{PartitionIDs: ids}, nil, taskrunner.Normal)
	require.NoError(t, err)
	require.NotEmpty(t, result.Items)
}

func TestPrefetchPartitionsEmptyResultIsError(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(503, "down"))

	e := newEngine(t, fake)
	_, err := e.PrefetchPartitions(context.Background(), 1, model.PrefetchPartitionsRequest{PartitionIDs: []string{"p1"}}, nil, taskrunner.Normal)
	require.Error(t, err)
}
