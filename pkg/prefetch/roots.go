// Package prefetch implements the two-stage QueryJob/DownloadJob pipeline of
// spec.md 4.8: slice a user's tile or partition request into fetchable
// roots/batches, query metadata for each, then download and cache every
// resolved blob, reporting per-item success/failure plus aggregate network
// cost.
package prefetch

import "github.com/heremaps/here-data-sdk-go/pkg/quadtree"

// SliceRoots computes the depth-4-aligned quadtree roots that together
// cover every anchor tile across [minLevel, maxLevel], per spec.md 4.8's
// tile root slicing algorithm. Each returned root always covers exactly
// quadTreeDepth(4) additional levels, matching the fixed depth
// PartitionsRepository.LoadQuadTree requests and caches at — so the roots
// returned here are cache-key compatible with pkg/read without further
// translation.
//
// For each anchor, effMin is raised from minLevel to the anchor's own level
// when the anchor is already deeper than minLevel (promoting never loses
// precision the caller asked for), then lowered one level at a time until
// (maxLevel-effMin+1) is a multiple of 5 — the alignment spec.md 4.8
// requires so every step is a full depth-4 quadtree. Roots whose covered
// range doesn't reach minLevel at all are discarded.
//
// A split level at or above the anchor's own level has exactly one root:
// the unique ancestor "on the path to" the anchor. A split level below the
// anchor's own level instead gets the full breadth of the anchor's
// descendants at that level ("...or below the original user tile") — one
// root per 4^(lvl-anchor.Level) descendant, since a single descendant's
// depth-4 quadtree only covers its own subtree, not its siblings'.
func SliceRoots(anchors []quadtree.TileKey, minLevel, maxLevel uint32) map[quadtree.TileKey]int8 {
	roots := map[quadtree.TileKey]int8{}
	for _, anchor := range anchors {
		for _, root := range rootsForAnchor(anchor, minLevel, maxLevel) {
			if depth, ok := roots[root]; !ok || quadTreeDepth > depth {
				roots[root] = quadTreeDepth
			}
		}
	}
	return roots
}

const quadTreeDepth int8 = 4

func rootsForAnchor(anchor quadtree.TileKey, minLevel, maxLevel uint32) []quadtree.TileKey {
	if maxLevel < minLevel {
		maxLevel = minLevel
	}
	effMin := minLevel
	if anchor.Level > effMin {
		effMin = anchor.Level
	}
	if effMin > maxLevel {
		effMin = maxLevel
	}

	span := int(maxLevel) - int(effMin) + 1
	for span%5 != 0 && effMin > 0 {
		effMin--
		span = int(maxLevel) - int(effMin) + 1
	}

	var out []quadtree.TileKey
	for lvl := effMin; lvl <= maxLevel; lvl += 5 {
		if lvl+uint32(quadTreeDepth) < minLevel {
			continue
		}
		if lvl <= anchor.Level {
			out = append(out, anchor.ChangedLevelTo(lvl))
			continue
		}
		// lvl descends past the anchor's own level: a single root here would
		// only follow the one path through anchor, missing every sibling
		// subtree that also needs covering. QuadKey64 encodes each level's
		// tiles contiguously, so anchor's 4^(lvl-anchor.Level) descendants at
		// lvl are exactly the range starting at anchor's own first
		// descendant there.
		base := anchor.ChangedLevelTo(lvl).QuadKey64()
		count := uint64(1) << (2 * (lvl - anchor.Level))
		for i := uint64(0); i < count; i++ {
			out = append(out, quadtree.TileKeyFromQuadKey64(base+i))
		}
	}
	return out
}

// tileInRange reports whether tile's level falls within [minLevel, maxLevel].
func tileInRange(tile quadtree.TileKey, minLevel, maxLevel uint32) bool {
	return tile.Level >= minLevel && tile.Level <= maxLevel
}

// tileRelatesToAnyAnchor reports whether tile is one of anchors, an
// ancestor of one, or a descendant of one — the "by level" filter's
// ancestor-or-descendant relation test (spec.md 4.8).
func tileRelatesToAnyAnchor(tile quadtree.TileKey, anchors []quadtree.TileKey) bool {
	for _, a := range anchors {
		if tile == a || tile.IsParentOf(a) || a.IsParentOf(tile) {
			return true
		}
	}
	return false
}
