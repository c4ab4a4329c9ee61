package quadtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
)

func buildSampleIndex() (*quadtree.Index, quadtree.TileKey, quadtree.TileKey) {
	root := quadtree.TileKey{Level: 4, Row: 2, Column: 2}
	directChild := root.Child(1)          // level 5, has its own entry
	grandChildNoEntry := directChild.Child(0) // level 6, no entry -> must aggregate to directChild
	ancestor := root.Parent()             // level 3, stored as a "parent" entry

	idx := quadtree.NewIndex(root, 4,
		[]quadtree.Entry{
			{Tile: root, Version: 1, DataHandle: "root-handle"},
			{Tile: directChild, Version: 2, DataHandle: "child-handle", CRC: "abc", HasCRC: true},
		},
		[]quadtree.Entry{
			{Tile: ancestor, Version: 1, DataHandle: "ancestor-handle"},
		},
	)
	return idx, directChild, grandChildNoEntry
}

func TestIndexFindDirect(t *testing.T) {
	idx, directChild, _ := buildSampleIndex()
	e, ok := idx.Find(directChild, false)
	require.True(t, ok)
	assert.Equal(t, "child-handle", e.DataHandle)
	assert.True(t, e.HasCRC)
}

func TestIndexFindAggregated(t *testing.T) {
	idx, directChild, grandChild := buildSampleIndex()

	_, ok := idx.Find(grandChild, false)
	assert.False(t, ok, "no direct entry should exist for the grandchild")

	e, ok := idx.Find(grandChild, true)
	require.True(t, ok)
	assert.Equal(t, directChild, e.Tile)
	assert.Equal(t, "child-handle", e.DataHandle)
}

func TestIndexFindAncestor(t *testing.T) {
	idx, _, _ := buildSampleIndex()
	root := idx.Root
	ancestor := root.Parent()
	e, ok := idx.Find(ancestor, false)
	require.True(t, ok)
	assert.Equal(t, "ancestor-handle", e.DataHandle)
}

func TestIndexSerializeParseRoundTrip(t *testing.T) {
	idx, directChild, _ := buildSampleIndex()
	blob := idx.Serialize()

	parsed, err := quadtree.Parse(idx.Root, blob)
	require.NoError(t, err)

	e, ok := parsed.Find(directChild, false)
	require.True(t, ok)
	assert.Equal(t, "child-handle", e.DataHandle)
	assert.Equal(t, "abc", e.CRC)
	assert.True(t, e.HasCRC)

	root, ok := parsed.Find(idx.Root, false)
	require.True(t, ok)
	assert.Equal(t, "root-handle", root.DataHandle)
	assert.False(t, root.HasCRC)
}

func TestIndexBackwardCompatNoCRC(t *testing.T) {
	// Simulate a blob authored before the crc field existed: an entry with
	// HasCRC false is serialized with its tag record ending right after
	// additional_metadata's terminator.
	root := quadtree.TileKey{Level: 4, Row: 1, Column: 1}
	idx := quadtree.NewIndex(root, 4, []quadtree.Entry{
		{Tile: root, Version: 1, DataHandle: "h", Checksum: "c", AdditionalMetadata: "m"},
	}, nil)
	blob := idx.Serialize()

	parsed, err := quadtree.Parse(root, blob)
	require.NoError(t, err)
	e, ok := parsed.Find(root, false)
	require.True(t, ok)
	assert.Equal(t, "", e.CRC)
	assert.False(t, e.HasCRC)
}

func TestGetIndexDataMask(t *testing.T) {
	idx, _, _ := buildSampleIndex()
	entries := idx.GetIndexData(quadtree.FieldMask{DataHandle: true})
	for _, e := range entries {
		assert.Empty(t, e.Checksum)
		assert.Empty(t, e.CRC)
	}
	assert.Len(t, entries, 3)
}
