package read

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

// CatalogRepository resolves catalog-level metadata: the latest version
// (spec-mandated, used for version resolution) and the full catalog
// descriptor (supplementary — see SPEC_FULL.md 3).
type CatalogRepository struct {
	HRN    string
	Client *olpclient.Client
}

// GetLatestVersion returns the catalog's current version.
func (r *CatalogRepository) GetLatestVersion(ctx context.Context) (int64, error) {
	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   "/versions/latest",
		Query:  url.Values{"startVersion": {"-1"}},
	})
	if err != nil {
		return 0, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return 0, olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
	}
	var body struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return 0, olperror.Wrap(olperror.KindUnknown, resp.Status, err)
	}
	return body.Version, nil
}

// GetCatalog returns the full catalog descriptor. This is the supplementary
// operation named in SPEC_FULL.md 3 but only hinted at by spec.md's
// "CatalogRepository (latest version)"; GetLatestVersion remains the
// spec-mandated path for version resolution.
func (r *CatalogRepository) GetCatalog(ctx context.Context) (*model.CatalogConfig, error) {
	resp, err := r.Client.CallAPI(ctx, &olpclient.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/config/catalogs/%s", r.HRN),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, olperror.New(olperror.KindForStatus(resp.Status), resp.Status, string(resp.Body))
	}
	var cfg model.CatalogConfig
	if err := json.Unmarshal(resp.Body, &cfg); err != nil {
		return nil, olperror.Wrap(olperror.KindUnknown, resp.Status, err)
	}
	return &cfg, nil
}
