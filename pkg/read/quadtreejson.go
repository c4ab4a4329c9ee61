package read

import (
	"encoding/json"
	"strconv"

	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
)

// quadTreeRawEntry is one row of the metadata service's quadkeys response;
// subQuads carry a relative subQuadKey, parentQuads carry the full quadkey
// under partition. The response is small and bounded (a single depth-4
// subtree plus ancestors), so this stays on ordinary json.Unmarshal rather
// than the streaming token walker used for unbounded partition listings.
type quadTreeRawEntry struct {
	SubQuadKey         string  `json:"subQuadKey,omitempty"`
	Partition          string  `json:"partition,omitempty"`
	Version            int64   `json:"version"`
	DataHandle         string  `json:"dataHandle"`
	DataSize           *int64  `json:"dataSize,omitempty"`
	CompressedDataSize *int64  `json:"compressedDataSize,omitempty"`
	Checksum           string  `json:"checksum,omitempty"`
	AdditionalMetadata string  `json:"additionalMetadata,omitempty"`
	CRC                *string `json:"crc,omitempty"`
}

type quadTreeResponse struct {
	SubQuads    []quadTreeRawEntry `json:"subQuads"`
	ParentQuads []quadTreeRawEntry `json:"parentQuads"`
}

func parseQuadTreeJSON(root quadtree.TileKey, depth int8, body []byte) (*quadtree.Index, error) {
	var resp quadTreeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, olperror.Wrap(olperror.KindUnknown, 0, err)
	}

	subs := make([]quadtree.Entry, 0, len(resp.SubQuads))
	for _, raw := range resp.SubQuads {
		sub, err := strconv.ParseUint(raw.SubQuadKey, 10, 16)
		if err != nil {
			return nil, olperror.InvalidArgument("invalid subQuadKey: " + raw.SubQuadKey)
		}
		tile := quadtree.TileFromSubQuadKey(root, uint16(sub))
		subs = append(subs, entryFromQuadTreeJSON(tile, raw))
	}

	parents := make([]quadtree.Entry, 0, len(resp.ParentQuads))
	for _, raw := range resp.ParentQuads {
		qk, err := strconv.ParseUint(raw.Partition, 10, 64)
		if err != nil {
			return nil, olperror.InvalidArgument("invalid parent quadkey: " + raw.Partition)
		}
		tile := quadtree.TileKeyFromQuadKey64(qk)
		parents = append(parents, entryFromQuadTreeJSON(tile, raw))
	}

	return quadtree.NewIndex(root, depth, subs, parents), nil
}

func entryFromQuadTreeJSON(tile quadtree.TileKey, raw quadTreeRawEntry) quadtree.Entry {
	e := quadtree.Entry{
		Tile:               tile,
		Version:            uint64(raw.Version),
		DataHandle:         raw.DataHandle,
		Checksum:           raw.Checksum,
		AdditionalMetadata: raw.AdditionalMetadata,
	}
	if raw.DataSize != nil {
		e.DataSize = *raw.DataSize
	}
	if raw.CompressedDataSize != nil {
		e.CompressedDataSize = *raw.CompressedDataSize
	}
	if raw.CRC != nil {
		e.CRC = *raw.CRC
		e.HasCRC = true
	}
	return e
}
