/*
Package cache provides a hybrid memory/disk cache for the tiles of large
gridded datasets.

A TileCache keeps a working set of tiles resident in memory under a byte
budget. Tiles that do not fit are spilled to disk, one file per tile, and
reloaded transparently on the next Get.

# Architecture

	┌─────────────────────────────────────────────┐
	│              Application                    │
	│     (Add / Get / SetChanged / Remove)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               TileCache                     │  ← This Package
	│  ┌─────────────────────────────────────┐    │
	│  │  records   TileID → *TileRecord     │    │
	│  │  resident  TileID → *Tile           │    │
	│  │  order     eviction order           │    │
	│  └─────────────────────────────────────┘    │
	│   background: owner sweep, auto-flush       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Spill directory                   │
	│   <uuid>.tile: banks written back to back   │
	└─────────────────────────────────────────────┘

# Tiles and Records

A Tile is a set of equally sized byte banks plus the sample type that sizes
them. The cache never interprets the bytes. Every tracked tile has a
TileRecord holding its layout, last access time, last Action and the path of
its spill file. The spill file has no header, so it can only be read back
through the record that wrote it.

# Memory Budget

Admission works in two steps. When the free budget is smaller than the new
tile, a threshold trim evicts the lowest priority tiles until memory use is at
or below Threshold × Capacity. If that is still not enough, tiles are evicted
one by one until the new tile fits. A tile larger than the whole budget is
tracked but never resident.

Writable tiles are persisted before eviction, and so is a writable tile too
large to ever be resident. If that write fails, any older disk copy is deleted
and the tile misses until it is added again. Read-only tiles are dropped and
can only come back if they were persisted when added (AlwaysPersist).

Eviction order comes from a Comparator. MostRecentlyAccessed, the default,
gives LRU behavior:

	threshold := 0.75
	c, err := cache.NewTileCache(&cache.Config{
		Capacity:  64 * 1024 * 1024,
		Threshold: &threshold,
		Directory: "/var/cache/tiles",
	}, registry, cache.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	tile := cache.NewTile(cache.SampleFloat, 3, 256*256, true)
	if err := c.Add(owner, 4, 7, tile); err != nil {
		return err
	}

	if t, ok := c.Get(owner, 4, 7); ok {
		t.Banks[0][0] = 1
		_ = c.SetChanged(owner, 4, 7)
	}

# Owners

Owners are identified by types.OwnerID and resolved through a
types.OwnerResolver. The cache never keeps an owner alive. A background sweep
polls the resolver and drops every tile, and its spill file, once the owner
stops resolving. The sweep uses TryLock and skips a cycle rather than wait for
foreground callers.

# Auto-flush

With auto-flush enabled, every foreground call clears an activity flag. A
tick that finds the flag still set from the previous tick drops the whole
resident set without persisting, so memory is released only after a full
interval of inactivity.

# Thread Safety

All operations are safe for concurrent use. A single mutex guards the maps,
the eviction order and the memory counter. Visitors and the MetricsRecorder
run with that mutex held and must not call back into the cache.
*/
package cache
