package owner

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/tilecache/pkg/types"
)

var _ types.OwnerResolver = (*Registry)(nil)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	grid := types.TileGrid{NumXTiles: 4, NumYTiles: 2}

	a := r.Register(grid)
	b := r.Register(grid)
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(string(a))
	assert.NoError(t, err, "handles are uuids")

	got, ok := r.Resolve(a)
	require.True(t, ok)
	assert.Equal(t, grid, got)
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []types.OwnerID{a, b}, r.IDs())
}

func TestRegistry_RegisterID(t *testing.T) {
	r := NewRegistry()

	r.RegisterID("scene", types.TileGrid{NumXTiles: 1, NumYTiles: 1})
	r.RegisterID("scene", types.TileGrid{NumXTiles: 3, NumYTiles: 3})

	got, ok := r.Resolve("scene")
	require.True(t, ok)
	assert.Equal(t, 9, got.Len(), "re-registering updates the grid")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Release(t *testing.T) {
	r := NewRegistry()
	id := r.Register(types.TileGrid{NumXTiles: 1, NumYTiles: 1})

	assert.True(t, r.Release(id))
	_, ok := r.Resolve(id)
	assert.False(t, ok)
	assert.False(t, r.Release(id), "second release reports nothing to do")
	assert.Zero(t, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := r.Register(types.TileGrid{NumXTiles: 1, NumYTiles: 1})
				_, ok := r.Resolve(id)
				assert.True(t, ok)
				r.Release(id)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, r.Len())
}
