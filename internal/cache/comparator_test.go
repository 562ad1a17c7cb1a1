package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/objectfs/tilecache/pkg/types"
)

func recordAt(x int, size int64, accessed int64) *TileRecord {
	return &TileRecord{
		id:         types.NewTileID(img, x, 0),
		byteLength: size,
		lastAccess: time.Unix(accessed, 0),
	}
}

func xs(records []*TileRecord) []int {
	out := make([]int, len(records))
	for i, rec := range records {
		out[i] = rec.id.X
	}
	return out
}

func TestMostRecentlyAccessed(t *testing.T) {
	records := []*TileRecord{recordAt(0, 10, 5), recordAt(1, 10, 9), recordAt(2, 10, 1), recordAt(3, 10, 7)}

	sortRecords(records, MostRecentlyAccessed)
	assert.Equal(t, []int{1, 3, 0, 2}, xs(records), "newest first, eviction takes the tail")

	assert.Zero(t, MostRecentlyAccessed(recordAt(0, 1, 3), recordAt(1, 2, 3)))
}

func TestSmallestFirst(t *testing.T) {
	records := []*TileRecord{recordAt(0, 30, 1), recordAt(1, 10, 1), recordAt(2, 30, 5), recordAt(3, 20, 9)}

	sortRecords(records, SmallestFirst)
	assert.Equal(t, []int{1, 3, 2, 0}, xs(records))
}
