package cache

import "slices"

// Comparator orders tile records by how much they deserve to stay in memory.
// It returns a negative number when a should be kept in preference to b.
// Records sorted with a comparator are evicted from the tail.
type Comparator func(a, b *TileRecord) int

// MostRecentlyAccessed keeps recently touched tiles first, giving LRU eviction
func MostRecentlyAccessed(a, b *TileRecord) int {
	return b.lastAccess.Compare(a.lastAccess)
}

// SmallestFirst keeps small tiles and evicts the largest first. Ties fall back
// to access recency.
func SmallestFirst(a, b *TileRecord) int {
	switch {
	case a.byteLength < b.byteLength:
		return -1
	case a.byteLength > b.byteLength:
		return 1
	default:
		return MostRecentlyAccessed(a, b)
	}
}

func sortRecords(records []*TileRecord, cmp Comparator) {
	slices.SortFunc(records, cmp)
}
