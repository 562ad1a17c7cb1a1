package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objectfs/tilecache/pkg/types"
)

// fakeOwners is a minimal owner registry for tests
type fakeOwners struct {
	mu    sync.Mutex
	grids map[types.OwnerID]types.TileGrid
}

func newFakeOwners(ids ...types.OwnerID) *fakeOwners {
	f := &fakeOwners{grids: make(map[types.OwnerID]types.TileGrid)}
	for _, id := range ids {
		f.grids[id] = types.TileGrid{NumXTiles: 4, NumYTiles: 4}
	}
	return f
}

func (f *fakeOwners) set(id types.OwnerID, grid types.TileGrid) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grids[id] = grid
}

func (f *fakeOwners) release(id types.OwnerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grids, id)
}

func (f *fakeOwners) Resolve(id types.OwnerID) (types.TileGrid, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grid, ok := f.grids[id]
	return grid, ok
}

// steppingClock returns a clock that advances one second per call
func steppingClock() func() time.Time {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks int64
	return func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
}

// newTestCache builds a cache on a temp directory with a stepping clock and a
// sweep interval long enough to stay out of the way
func newTestCache(t *testing.T, cfg *Config, owners types.OwnerResolver, opts ...Option) *TileCache {
	t.Helper()
	if cfg.Directory == "" {
		cfg.Directory = t.TempDir()
	}
	if cfg.OwnerPollInterval == 0 {
		cfg.OwnerPollInterval = time.Hour
	}
	opts = append([]Option{WithClock(steppingClock())}, opts...)

	c, err := NewTileCache(cfg, owners, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// byteTile returns a single-bank byte tile of size bytes filled with fill
func byteTile(size int, writable bool, fill byte) *Tile {
	tile := NewTile(SampleByte, 1, size, writable)
	for i := range tile.Banks[0] {
		tile.Banks[0][i] = fill
	}
	return tile
}
