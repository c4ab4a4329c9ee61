package cmd

import (
	"net/http"

	"github.com/heremaps/here-data-sdk-go/pkg/cache"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/read"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
	"github.com/heremaps/here-data-sdk-go/pkg/versioned"
)

// newVersionedClient wires one versioned.Client per invocation from the
// currently-bound settings: an HTTP client over the real transport, a
// cache opened against the configured disk paths, and the repositories and
// sink the façade needs.
func newVersionedClient() (*versioned.Client, error) {
	httpClient := olpclient.NewClient(settings.MetadataURL, olpclient.NewHTTPTransport(nil))
	httpClient.Retry = settings.Retry
	httpClient.Log = logger
	if settings.APIKey != "" {
		httpClient.APIKeyProvider = olpclient.StaticAPIKeyProvider(settings.APIKey)
	}
	if settings.UserAgent != "" {
		httpClient.DefaultHeaders = http.Header{"User-Agent": {settings.UserAgent}}
	}

	c := cache.New(settings.Cache, logger)
	if err := c.OpenAll(); err != nil {
		return nil, err
	}

	mutex := taskrunner.NewNamedMutexStorage()
	partitions := &read.PartitionsRepository{HRN: settings.HRN, Layer: settings.Layer, Client: httpClient, Cache: c, Mutex: mutex}
	data := &read.DataRepository{HRN: settings.HRN, Layer: settings.Layer, Client: httpClient, Cache: c, Partitions: partitions}
	catalog := &read.CatalogRepository{HRN: settings.HRN, Client: httpClient}
	sink := taskrunner.NewSink(nil, nil, logger)

	return versioned.NewClient(settings.HRN, settings.Layer, catalog, partitions, data, c, sink, mutex, logger, -1), nil
}
