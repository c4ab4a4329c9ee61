package prefetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
)

func TestSliceRootsSingleBlockAlignsToMultipleOfFive(t *testing.T) {
	anchor := quadtree.TileKey{Level: 9}
	roots := SliceRoots([]quadtree.TileKey{anchor}, 5, 9)

	require.Len(t, roots, 1)
	for root, depth := range roots {
		assert.Equal(t, uint32(5), root.Level)
		assert.Equal(t, int8(4), depth)
	}
}

func TestSliceRootsSpansMultipleDepth4Blocks(t *testing.T) {
	// anchor already at level 5 (>= minLevel), range extends to level 14:
	// two depth-4 blocks. The first (level 5) sits at the anchor's own
	// level, so there's exactly one root on the path to it; the second
	// (level 10) is below the anchor, so every one of its 4^5 descendants
	// at that level needs its own root.
	anchor := quadtree.TileKey{Level: 5}
	roots := SliceRoots([]quadtree.TileKey{anchor}, 0, 14)

	require.Len(t, roots, 1+1024)
	counts := map[uint32]int{}
	for root := range roots {
		counts[root.Level]++
	}
	assert.Equal(t, 1, counts[5])
	assert.Equal(t, 1024, counts[10])
}

func TestSliceRootsNeverStartsDeeperThanAnchor(t *testing.T) {
	// anchor is already deeper than minLevel: the produced root must sit at
	// or above the anchor's own level so its quadtree covers the anchor —
	// the multiple-of-5 alignment only ever lowers effMin further (here
	// from 9 to 5).
	anchor := quadtree.TileKey{Level: 9}
	roots := SliceRoots([]quadtree.TileKey{anchor}, 2, 9)

	require.Len(t, roots, 1)
	for root := range roots {
		assert.LessOrEqual(t, root.Level, anchor.Level)
		assert.Equal(t, anchor, anchor.ChangedLevelTo(anchor.Level)) // sanity: anchor unchanged
	}
}

func TestSliceRootsAlwaysReachesRequestedMinLevel(t *testing.T) {
	// Every produced root's covered range [root.Level, root.Level+4] must
	// reach at least minLevel — the invariant the "discard subroots that
	// don't reach min_level" rule of spec.md 4.8 guarantees. minLevel sits
	// below the anchor's own level here, so alignment settles effMin back
	// at the anchor's level and the deeper band expands to full breadth —
	// kept modest (anchor at level 2, min/max close together) so the
	// breadth explosion stays small enough for a unit test.
	anchor := quadtree.TileKey{Level: 2}
	roots := SliceRoots([]quadtree.TileKey{anchor}, 5, 11)

	require.NotEmpty(t, roots)
	for root := range roots {
		assert.GreaterOrEqual(t, root.Level+4, uint32(5))
		assert.LessOrEqual(t, root.Level, uint32(11))
	}
}

func TestTileRelatesToAnyAnchor(t *testing.T) {
	anchor := quadtree.TileKey{Level: 4, Row: 2, Column: 2}
	child := anchor.Child(1)
	unrelated := quadtree.TileKey{Level: 4, Row: 0, Column: 0}

	assert.True(t, tileRelatesToAnyAnchor(anchor, []quadtree.TileKey{anchor}))
	assert.True(t, tileRelatesToAnyAnchor(child, []quadtree.TileKey{anchor}))
	assert.True(t, tileRelatesToAnyAnchor(anchor.Parent(), []quadtree.TileKey{anchor}))
	assert.False(t, tileRelatesToAnyAnchor(unrelated, []quadtree.TileKey{anchor}))
}
