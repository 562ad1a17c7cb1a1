package types

import "fmt"

// OwnerID identifies the dataset a tile belongs to. It must stay stable for as
// long as the owner is alive.
type OwnerID string

// TileID uniquely identifies one tile by owner and grid coordinates
type TileID struct {
	Owner OwnerID `json:"owner"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
}

// NewTileID returns the identity of the tile at (x, y) of owner
func NewTileID(owner OwnerID, x, y int) TileID {
	return TileID{Owner: owner, X: x, Y: y}
}

// String renders the identity as owner/x/y
func (id TileID) String() string {
	return fmt.Sprintf("%s/%d/%d", id.Owner, id.X, id.Y)
}

// TileGrid is the declared tile extent of an owner
type TileGrid struct {
	MinTileX  int `json:"min_tile_x" yaml:"min_tile_x"`
	MinTileY  int `json:"min_tile_y" yaml:"min_tile_y"`
	NumXTiles int `json:"num_x_tiles" yaml:"num_x_tiles"`
	NumYTiles int `json:"num_y_tiles" yaml:"num_y_tiles"`
}

// Contains reports whether (x, y) lies inside the grid
func (g TileGrid) Contains(x, y int) bool {
	return x >= g.MinTileX && x < g.MinTileX+g.NumXTiles &&
		y >= g.MinTileY && y < g.MinTileY+g.NumYTiles
}

// Len returns the number of tiles in the grid
func (g TileGrid) Len() int {
	if g.NumXTiles <= 0 || g.NumYTiles <= 0 {
		return 0
	}
	return g.NumXTiles * g.NumYTiles
}

// Each calls fn for every coordinate of the grid in row-major order
func (g TileGrid) Each(fn func(x, y int)) {
	for y := g.MinTileY; y < g.MinTileY+g.NumYTiles; y++ {
		for x := g.MinTileX; x < g.MinTileX+g.NumXTiles; x++ {
			fn(x, y)
		}
	}
}

// CacheStats represents tile cache statistics
type CacheStats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Evictions     uint64  `json:"evictions"`
	Size          int64   `json:"size"`
	Capacity      int64   `json:"capacity"`
	TrackedTiles  int     `json:"tracked_tiles"`
	ResidentTiles int     `json:"resident_tiles"`
	DiskTiles     int     `json:"disk_tiles"`
	HitRate       float64 `json:"hit_rate"`
	Utilization   float64 `json:"utilization"`
}
