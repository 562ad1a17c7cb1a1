// Package owner keeps track of the datasets that own cached tiles.
package owner

import (
	"sync"

	"github.com/google/uuid"

	"github.com/objectfs/tilecache/pkg/types"
)

// Registry maps owner handles to their declared tile grids. An owner is alive
// from Register until Release; the tile cache polls Resolve to find owners
// that are gone.
type Registry struct {
	mu     sync.RWMutex
	owners map[types.OwnerID]types.TileGrid
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[types.OwnerID]types.TileGrid),
	}
}

// Register issues a new random handle for an owner with the given grid
func (r *Registry) Register(grid types.TileGrid) types.OwnerID {
	id := types.OwnerID(uuid.NewString())
	r.RegisterID(id, grid)
	return id
}

// RegisterID registers or updates an owner under a caller chosen handle
func (r *Registry) RegisterID(id types.OwnerID, grid types.TileGrid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[id] = grid
}

// Release marks the owner as gone. It reports whether the owner was registered.
func (r *Registry) Release(id types.OwnerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; !ok {
		return false
	}
	delete(r.owners, id)
	return true
}

// Resolve implements types.OwnerResolver
func (r *Registry) Resolve(id types.OwnerID) (types.TileGrid, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	grid, ok := r.owners[id]
	return grid, ok
}

// Len returns the number of live owners
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owners)
}

// IDs returns the handles of all live owners in no particular order
func (r *Registry) IDs() []types.OwnerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.OwnerID, 0, len(r.owners))
	for id := range r.owners {
		ids = append(ids, id)
	}
	return ids
}
