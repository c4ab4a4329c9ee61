package read_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/internal/testtransport"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
)

func TestGetLatestVersion(t *testing.T) {
	fake := testtransport.New()
	fake.Enqueue("https://metadata.example/versions/latest?startVersion=-1",
		testtransport.JSON(200, `{"version":42}`))

	repo := &read.CatalogRepository{HRN: "hrn:test", Client: olpclient.NewClient("https://metadata.example", fake)}
	v, err := repo.GetLatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestGetLatestVersionPropagatesServiceUnavailable(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(503, "down for maintenance"))

	repo := &read.CatalogRepository{HRN: "hrn:test", Client: olpclient.NewClient("https://metadata.example", fake)}
	_, err := repo.GetLatestVersion(context.Background())
	require.Error(t, err)
	assert.True(t, olperror.Is(err, olperror.KindServiceUnavailable))
}

func TestGetCatalog(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(200, `{
		"hrn":"hrn:here:data::olp-here:test-catalog",
		"id":"test-catalog",
		"name":"Test Catalog",
		"layers":[{"id":"test-layer","layerType":"versioned"}]
	}`))

	repo := &read.CatalogRepository{
		HRN:    "hrn:here:data::olp-here:test-catalog",
		Client: olpclient.NewClient("https://metadata.example", fake),
	}
	cfg, err := repo.GetCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-catalog", cfg.ID)
	require.Len(t, cfg.Layers, 1)
	assert.Equal(t, "test-layer", cfg.Layers[0].ID)
}

func TestGetCatalogNotFound(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(404, ""))

	repo := &read.CatalogRepository{HRN: "hrn:missing", Client: olpclient.NewClient("https://metadata.example", fake)}
	_, err := repo.GetCatalog(context.Background())
	require.Error(t, err)
	assert.True(t, olperror.Is(err, olperror.KindNotFound))
}
