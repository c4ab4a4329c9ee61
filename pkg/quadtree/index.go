package quadtree

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

// BlobVersion is the only binary layout this package understands; readers
// reject anything else outright (spec.md 3).
const BlobVersion uint16 = 0

const (
	headerLen     = 8 + 2 + 1 + 1 + 2 // root_quadkey, blob_version, depth, parent_count, subkey_count
	subEntryLen   = 6                 // sub_quadkey u16 + tag_offset u32
	parentEntryLen = 12               // quadkey u64 + tag_offset u32
)

// Entry is one decoded row of the index: either a descendant ("sub") of the
// root or a direct ancestor ("parent"). HasCRC distinguishes an index built
// before the crc field existed from one where crc is genuinely empty.
type Entry struct {
	Tile               TileKey
	Version            uint64
	DataSize           int64
	CompressedDataSize int64
	DataHandle         string
	Checksum           string
	AdditionalMetadata string
	CRC                string
	HasCRC             bool
}

// FieldMask selects which optional string fields GetIndexData materialises;
// omitted fields are left zero-valued to avoid needless allocation when a
// caller only needs, say, DataHandle for cache bookkeeping.
type FieldMask struct {
	DataHandle         bool
	Checksum           bool
	AdditionalMetadata bool
	CRC                bool
}

// AllFields selects every optional field.
var AllFields = FieldMask{DataHandle: true, Checksum: true, AdditionalMetadata: true, CRC: true}

// Index is a parsed binary quadtree blob: a root tile plus every descendant
// within Depth levels and every direct ancestor ("parent") sent alongside it.
type Index struct {
	Root    TileKey
	Depth   int8
	subs    []Entry // sorted ascending by Tile.SubQuadKey(Root)
	parents []Entry // sorted ascending by Tile.QuadKey64()
}

// NewIndex builds an Index from already-decoded rows, sorting them the way
// the binary format requires. subs must be descendants of root (or root
// itself); parents must be strict ancestors.
func NewIndex(root TileKey, depth int8, subs, parents []Entry) *Index {
	idx := &Index{Root: root, Depth: depth, subs: append([]Entry(nil), subs...), parents: append([]Entry(nil), parents...)}
	sort.Slice(idx.subs, func(i, j int) bool {
		return idx.subs[i].Tile.SubQuadKey(root) < idx.subs[j].Tile.SubQuadKey(root)
	})
	sort.Slice(idx.parents, func(i, j int) bool {
		return idx.parents[i].Tile.QuadKey64() < idx.parents[j].Tile.QuadKey64()
	})
	return idx
}

// Find looks up the entry for tile, per spec.md 4.4. When aggregated is
// true and there is no direct hit, the nearest strict ancestor present in
// the index (searched from the deepest sub entries down, then parents) is
// returned instead.
func (idx *Index) Find(tile TileKey, aggregated bool) (*Entry, bool) {
	if tile.Level >= idx.Root.Level {
		sub := tile.SubQuadKey(idx.Root)
		if e, ok := idx.findSub(sub); ok {
			return e, true
		}
	} else {
		qk := tile.QuadKey64()
		if e, ok := idx.findParent(qk); ok {
			return e, true
		}
	}
	if !aggregated {
		return nil, false
	}
	return idx.findNearestAncestor(tile)
}

func (idx *Index) findSub(sub uint16) (*Entry, bool) {
	i := sort.Search(len(idx.subs), func(i int) bool {
		return idx.subs[i].Tile.SubQuadKey(idx.Root) >= sub
	})
	if i < len(idx.subs) && idx.subs[i].Tile.SubQuadKey(idx.Root) == sub {
		return &idx.subs[i], true
	}
	return nil, false
}

func (idx *Index) findParent(qk uint64) (*Entry, bool) {
	i := sort.Search(len(idx.parents), func(i int) bool {
		return idx.parents[i].Tile.QuadKey64() >= qk
	})
	if i < len(idx.parents) && idx.parents[i].Tile.QuadKey64() == qk {
		return &idx.parents[i], true
	}
	return nil, false
}

func (idx *Index) findNearestAncestor(tile TileKey) (*Entry, bool) {
	candidates := make([]*Entry, 0, len(idx.subs)+len(idx.parents))
	for i := range idx.subs {
		candidates = append(candidates, &idx.subs[i])
	}
	for i := range idx.parents {
		candidates = append(candidates, &idx.parents[i])
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Tile.Level > candidates[j].Tile.Level })
	for _, e := range candidates {
		if e.Tile.IsParentOf(tile) {
			return e, true
		}
	}
	return nil, false
}

// GetIndexData returns every entry in the index (subs then parents),
// honouring mask for the optional string fields. Used to enumerate a
// subtree for cache bookkeeping (e.g. remove_from_cache(tile)).
func (idx *Index) GetIndexData(mask FieldMask) []Entry {
	out := make([]Entry, 0, len(idx.subs)+len(idx.parents))
	apply := func(e Entry) Entry {
		if !mask.DataHandle {
			e.DataHandle = ""
		}
		if !mask.Checksum {
			e.Checksum = ""
		}
		if !mask.AdditionalMetadata {
			e.AdditionalMetadata = ""
		}
		if !mask.CRC {
			e.CRC = ""
			e.HasCRC = false
		}
		return e
	}
	for _, e := range idx.subs {
		out = append(out, apply(e))
	}
	for _, e := range idx.parents {
		out = append(out, apply(e))
	}
	return out
}

// Serialize renders idx into the little-endian binary layout of spec.md 3.
func (idx *Index) Serialize() []byte {
	tagAreaStart := uint32(headerLen + len(idx.subs)*subEntryLen + len(idx.parents)*parentEntryLen)

	tagBuf := &bytes.Buffer{}
	offsets := make([]uint32, len(idx.subs)+len(idx.parents))
	for i, e := range idx.subs {
		offsets[i] = tagAreaStart + uint32(tagBuf.Len())
		writeTagRecord(tagBuf, e)
	}
	for i, e := range idx.parents {
		offsets[len(idx.subs)+i] = tagAreaStart + uint32(tagBuf.Len())
		writeTagRecord(tagBuf, e)
	}

	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, idx.Root.QuadKey64())
	_ = binary.Write(buf, binary.LittleEndian, BlobVersion)
	_ = binary.Write(buf, binary.LittleEndian, idx.Depth)
	_ = binary.Write(buf, binary.LittleEndian, uint8(len(idx.parents)))
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(idx.subs)))

	for i, e := range idx.subs {
		_ = binary.Write(buf, binary.LittleEndian, e.Tile.SubQuadKey(idx.Root))
		_ = binary.Write(buf, binary.LittleEndian, offsets[i])
	}
	for i, e := range idx.parents {
		_ = binary.Write(buf, binary.LittleEndian, e.Tile.QuadKey64())
		_ = binary.Write(buf, binary.LittleEndian, offsets[len(idx.subs)+i])
	}
	buf.Write(tagBuf.Bytes())
	return buf.Bytes()
}

func writeTagRecord(buf *bytes.Buffer, e Entry) {
	_ = binary.Write(buf, binary.LittleEndian, e.Version)
	_ = binary.Write(buf, binary.LittleEndian, e.DataSize)
	_ = binary.Write(buf, binary.LittleEndian, e.CompressedDataSize)
	writeCString(buf, e.DataHandle)
	writeCString(buf, e.Checksum)
	writeCString(buf, e.AdditionalMetadata)
	if e.HasCRC {
		writeCString(buf, e.CRC)
	}
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// Parse decodes a binary quadtree blob, validating blob_version and bounds.
func Parse(root TileKey, data []byte) (*Index, error) {
	if len(data) < headerLen {
		return nil, olperror.InvalidArgument("quadtree blob shorter than header")
	}
	r := bytes.NewReader(data)

	var rootQuadKey uint64
	var blobVersion uint16
	var depth int8
	var parentCount uint8
	var subCount uint16
	_ = binary.Read(r, binary.LittleEndian, &rootQuadKey)
	_ = binary.Read(r, binary.LittleEndian, &blobVersion)
	_ = binary.Read(r, binary.LittleEndian, &depth)
	_ = binary.Read(r, binary.LittleEndian, &parentCount)
	_ = binary.Read(r, binary.LittleEndian, &subCount)

	if blobVersion != BlobVersion {
		return nil, olperror.InvalidArgument("unsupported quadtree blob_version")
	}
	decodedRoot := TileKeyFromQuadKey64(rootQuadKey)
	if decodedRoot != root {
		// Trust the blob's own root; callers key their cache entries by the
		// root they requested, so a mismatch would already be a cache-key bug.
		root = decodedRoot
	}

	type rawSub struct {
		sub    uint16
		offset uint32
	}
	type rawParent struct {
		quadkey uint64
		offset  uint32
	}
	subsRaw := make([]rawSub, subCount)
	for i := range subsRaw {
		_ = binary.Read(r, binary.LittleEndian, &subsRaw[i].sub)
		_ = binary.Read(r, binary.LittleEndian, &subsRaw[i].offset)
	}
	parentsRaw := make([]rawParent, parentCount)
	for i := range parentsRaw {
		_ = binary.Read(r, binary.LittleEndian, &parentsRaw[i].quadkey)
		_ = binary.Read(r, binary.LittleEndian, &parentsRaw[i].offset)
	}

	type bound struct {
		offset uint32
		limit  uint32
	}
	bounds := make([]bound, len(subsRaw)+len(parentsRaw))
	for i := range subsRaw {
		bounds[i].offset = subsRaw[i].offset
	}
	for i := range parentsRaw {
		bounds[len(subsRaw)+i].offset = parentsRaw[i].offset
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].offset < bounds[j].offset })
	for i := range bounds {
		if i+1 < len(bounds) {
			bounds[i].limit = bounds[i+1].offset
		} else {
			bounds[i].limit = uint32(len(data))
		}
	}
	limitFor := func(offset uint32) uint32 {
		for _, b := range bounds {
			if b.offset == offset {
				return b.limit
			}
		}
		return uint32(len(data))
	}

	subs := make([]Entry, len(subsRaw))
	for i, s := range subsRaw {
		tile := TileFromSubQuadKey(root, s.sub)
		e, err := readTagRecord(data, s.offset, limitFor(s.offset))
		if err != nil {
			return nil, err
		}
		e.Tile = tile
		subs[i] = e
	}
	parents := make([]Entry, len(parentsRaw))
	for i, p := range parentsRaw {
		tile := TileKeyFromQuadKey64(p.quadkey)
		e, err := readTagRecord(data, p.offset, limitFor(p.offset))
		if err != nil {
			return nil, err
		}
		e.Tile = tile
		parents[i] = e
	}

	return NewIndex(root, depth, subs, parents), nil
}

func readTagRecord(data []byte, offset, limit uint32) (Entry, error) {
	if int(limit) > len(data) {
		limit = uint32(len(data))
	}
	if offset+24 > limit {
		return Entry{}, olperror.InvalidArgument("quadtree tag record truncated")
	}
	r := bytes.NewReader(data[offset:limit])
	var e Entry
	_ = binary.Read(r, binary.LittleEndian, &e.Version)
	_ = binary.Read(r, binary.LittleEndian, &e.DataSize)
	_ = binary.Read(r, binary.LittleEndian, &e.CompressedDataSize)

	readCString := func() (string, bool) {
		s, ok := readNulTerminated(r)
		return s, ok
	}
	var ok bool
	if e.DataHandle, ok = readCString(); !ok {
		return e, nil
	}
	if e.Checksum, ok = readCString(); !ok {
		return e, nil
	}
	if e.AdditionalMetadata, ok = readCString(); !ok {
		return e, nil
	}
	if e.CRC, ok = readCString(); ok {
		e.HasCRC = true
	}
	return e, nil
}

// readNulTerminated reads a NUL-terminated string from r. ok is false if r
// was exhausted before a terminator was found — the documented
// forwards/backwards-compatibility rule for the trailing crc field.
func readNulTerminated(r *bytes.Reader) (string, bool) {
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(out), false
		}
		if b == 0 {
			return string(out), true
		}
		out = append(out, b)
	}
}
