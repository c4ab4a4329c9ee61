// Package model holds the plain data types shared across the read/prefetch/
// cache core: partitions, fetch options and the small request/response
// structs repositories exchange. None of these types carry behaviour beyond
// simple accessors; every variation that the C++ source modelled with a
// *Result class hierarchy collapses here to optional fields on one struct.
package model

import "github.com/heremaps/here-data-sdk-go/pkg/quadtree"

// Partition is a single row of layer metadata. DataHandle is opaque: the SDK
// never interprets it beyond using it as a cache/blob key.
type Partition struct {
	PartitionID        string `json:"partition"`
	DataHandle         string `json:"dataHandle"`
	Version            int64  `json:"version"`
	DataSize           *int64 `json:"dataSize,omitempty"`
	CompressedDataSize *int64 `json:"compressedDataSize,omitempty"`
	Checksum           string `json:"checksum,omitempty"`
	CRC                string `json:"crc,omitempty"`
}

// FetchOption controls whether a read goes to cache, network, or both.
// CacheWithUpdate is accepted by the type for forward compatibility with
// non-versioned layers but is rejected with InvalidArgument by every
// operation in pkg/read and pkg/versioned, per spec.md 4.6.
type FetchOption int

const (
	CacheOnly FetchOption = iota
	OnlineOnly
	OnlineIfNotFound
	CacheWithUpdate
)

func (f FetchOption) String() string {
	switch f {
	case CacheOnly:
		return "CacheOnly"
	case OnlineOnly:
		return "OnlineOnly"
	case OnlineIfNotFound:
		return "OnlineIfNotFound"
	case CacheWithUpdate:
		return "CacheWithUpdate"
	default:
		return "Unknown"
	}
}

// NetworkStatistics accumulates bytes moved across one or more HTTP calls so
// callers (prefetch in particular) can report aggregate cost.
type NetworkStatistics struct {
	BytesUploaded   int64
	BytesDownloaded int64
}

// Add accumulates other into ns and returns ns for chaining.
func (ns *NetworkStatistics) Add(other NetworkStatistics) *NetworkStatistics {
	ns.BytesUploaded += other.BytesUploaded
	ns.BytesDownloaded += other.BytesDownloaded
	return ns
}

// PartitionsRequest parameterises PartitionsRepository.GetPartitions.
type PartitionsRequest struct {
	PartitionIDs     []string
	Version          int64
	AdditionalFields []string
	BillingTag       string
}

// DataRequest addresses a blob either by partition ID (resolved through the
// partitions repository) or directly by DataHandle.
type DataRequest struct {
	PartitionID string
	DataHandle  string
	Fetch       FetchOption
}

// Owner and Layer supplement CatalogRepository.GetCatalog; dropped by the
// distillation of spec.md but present in the original catalog model.
type Owner struct {
	Creator      string `json:"creator"`
	Organisation string `json:"organisation"`
}

type LayerConfig struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Summary            string `json:"summary"`
	Description        string `json:"description"`
	ContentType        string `json:"contentType"`
	ContentEncoding    string `json:"contentEncoding"`
	LayerType          string `json:"layerType"`
	Digest             string `json:"digest"`
	PartitioningScheme string `json:"partitioningScheme"`
}

// TileRequest addresses a versioned-layer tile read, either directly by key
// or (when Aggregated is set) by its nearest covering ancestor.
type TileRequest struct {
	Tile       quadtree.TileKey
	Aggregated bool
}

// PrefetchTilesRequest parameterises VersionedLayerClient.PrefetchTiles:
// Tiles anchors the root slice (MinLevel==MaxLevel selects list mode,
// resolving each tile directly instead of slicing a level range), and
// DataAggregation is honoured only in list mode.
type PrefetchTilesRequest struct {
	Tiles           []quadtree.TileKey
	MinLevel        uint32
	MaxLevel        uint32
	DataAggregation bool
	Progress        func(ProgressEvent)
}

// PrefetchPartitionsRequest parameterises VersionedLayerClient.PrefetchPartitions.
type PrefetchPartitionsRequest struct {
	PartitionIDs []string
	Progress     func(ProgressEvent)
}

// ProgressEvent reports incremental DownloadJob progress, per spec.md 4.8.
type ProgressEvent struct {
	Processed int
	Total     int
	Bytes     int64
}

// ItemResult is one row of a PrefetchResult: either the item downloaded
// successfully (Err == nil) or it didn't.
type ItemResult struct {
	Key string // tile's HereTile() or partition ID
	Err error
}

// PrefetchResult is the terminal callback payload for both PrefetchTiles and
// PrefetchPartitions: per-item outcomes plus the network cost of the whole
// job (query phase + download phase).
type PrefetchResult struct {
	Items      []ItemResult
	Statistics NetworkStatistics
}

// CatalogConfig is the full catalog descriptor, returned by
// CatalogRepository.GetCatalog (a supplementary operation; GetLatestVersion
// remains the spec-mandated path for version resolution).
type CatalogConfig struct {
	HRN         string        `json:"hrn"`
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Owner       Owner         `json:"owner"`
	Tags        []string      `json:"tags"`
	BillingTags []string      `json:"billingTags"`
	Created     string        `json:"created"`
	Layers      []LayerConfig `json:"layers"`
}
