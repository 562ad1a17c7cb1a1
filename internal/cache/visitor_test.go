package cache

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/tilecache/pkg/types"
)

func TestRecordCollector(t *testing.T) {
	const other types.OwnerID = "other"
	c := newTestCache(t, &Config{Capacity: 1024}, newFakeOwners(img, other))

	require.NoError(t, c.Add(img, 0, 0, byteTile(16, true, 1)))
	require.NoError(t, c.Add(img, 1, 0, byteTile(16, true, 2)))
	require.NoError(t, c.Add(img, 2, 0, byteTile(2048, true, 3))) // too large to be resident
	require.NoError(t, c.Add(other, 0, 0, byteTile(16, true, 4)))

	tests := []struct {
		name      string
		collector *RecordCollector
		want      []types.TileID
	}{
		{
			name:      "no filters",
			collector: NewRecordCollector(),
			want: []types.TileID{
				types.NewTileID(img, 0, 0), types.NewTileID(img, 1, 0),
				types.NewTileID(img, 2, 0), types.NewTileID(other, 0, 0),
			},
		},
		{
			name:      "by owner",
			collector: NewRecordCollector().WithOwner(other),
			want:      []types.TileID{types.NewTileID(other, 0, 0)},
		},
		{
			name:      "non-resident",
			collector: NewRecordCollector().WithResidency(false),
			want:      []types.TileID{types.NewTileID(img, 2, 0)},
		},
		{
			name:      "owner and residency",
			collector: NewRecordCollector().WithOwner(img).WithResidency(true),
			want:      []types.TileID{types.NewTileID(img, 0, 0), types.NewTileID(img, 1, 0)},
		},
		{
			name:      "no match",
			collector: NewRecordCollector().WithOwner(other).WithResidency(false),
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.Accept(tt.collector)

			var got []types.TileID
			for _, info := range tt.collector.Records() {
				got = append(got, info.ID)
			}
			sort.Slice(got, func(i, j int) bool { return got[i].String() < got[j].String() })
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordCollector_Reset(t *testing.T) {
	c := newTestCache(t, &Config{Capacity: 1024}, newFakeOwners(img))
	require.NoError(t, c.Add(img, 0, 0, byteTile(16, true, 1)))

	collector := NewRecordCollector().WithResidency(true)
	c.Accept(collector)
	require.Len(t, collector.Records(), 1)
	assert.Equal(t, ActionAddedResident, collector.Records()[0].Action)

	collector.Reset()
	c.Flush()
	c.Accept(collector)
	assert.Empty(t, collector.Records(), "filters survive a reset")
}
