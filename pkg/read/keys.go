// Package read implements the metadata repositories of spec.md 4.5/4.6:
// PartitionsRepository, DataRepository and CatalogRepository, each composing
// an HTTP client, a cache and a named-mutex storage for one (catalog, layer).
package read

import "strconv"

// partitionKey, quadTreeKey and blobKey build the canonical cache keys of
// spec.md 6. Keeping them colocated avoids the canonical format drifting
// between the three repositories that share a cache.
func partitionKey(hrn, layer, partitionID string, version int64) string {
	return hrn + "::" + layer + "::" + partitionID + "::" + strconv.FormatInt(version, 10) + "::partition"
}

func quadTreeKey(hrn, layer, tileHere string, version int64, depth int8) string {
	return hrn + "::" + layer + "::" + tileHere + "::" + strconv.FormatInt(version, 10) + "::" + strconv.FormatInt(int64(depth), 10) + "::quadtree"
}

func blobKey(hrn, layer, dataHandle string) string {
	return hrn + "::" + layer + "::" + dataHandle + "::Data"
}

// QuadTreeDepth is the fixed subtree depth PartitionsRepository requests and
// caches quadtree blobs at, exported so pkg/prefetch can align its own root
// slicing to the same boundary.
const QuadTreeDepth = quadTreeDepth

// PartitionKey, QuadTreeKey and BlobKey are the exported forms of this
// file's canonical cache-key builders, used by pkg/versioned for
// IsCached/RemoveFromCache and by pkg/prefetch for download bookkeeping.
func PartitionKey(hrn, layer, partitionID string, version int64) string {
	return partitionKey(hrn, layer, partitionID, version)
}

func QuadTreeKey(hrn, layer, tileHere string, version int64, depth int8) string {
	return quadTreeKey(hrn, layer, tileHere, version, depth)
}

func BlobKey(hrn, layer, dataHandle string) string {
	return blobKey(hrn, layer, dataHandle)
}
