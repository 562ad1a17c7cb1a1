package cache

import (
	"math"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/objectfs/tilecache/pkg/errors"
	"github.com/objectfs/tilecache/pkg/types"
	"github.com/objectfs/tilecache/pkg/utils"
)

const component = "tilecache"

// TileCache keeps a working set of tiles in memory under a byte budget and
// spills the rest to one file per tile. All state is guarded by a single
// mutex; helpers named ...Locked expect it to be held.
type TileCache struct {
	mu sync.Mutex

	records  map[types.TileID]*TileRecord
	resident map[types.TileID]*Tile
	order    []*TileRecord // one entry per resident tile, sorted before eviction
	memory   int64

	capacity      int64
	threshold     float64
	alwaysPersist bool
	dir           string
	tempDir       string
	comparator    Comparator

	owners  types.OwnerResolver
	logger  *zap.Logger
	metrics types.MetricsRecorder
	now     func() time.Time

	stats  types.CacheStats
	closed bool

	// idle is cleared by every foreground call and set by auto-flush ticks
	idle atomic.Bool

	taskMu       sync.Mutex
	sweeper      *periodicTask
	flusher      *periodicTask
	pollInterval time.Duration
}

// NewTileCache creates a tile cache and starts its owner-liveness sweep.
// A nil cfg selects DefaultConfig.
func NewTileCache(cfg *Config, owners types.OwnerResolver, opts ...Option) (*TileCache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if owners == nil {
		return nil, configError("new", "owner resolver is required")
	}
	if cfg.Capacity < 0 {
		return nil, configError("new", "capacity must not be negative").WithDetail("capacity", cfg.Capacity)
	}

	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	pollInterval := cfg.OwnerPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultOwnerPollInterval
	}
	flushInterval := cfg.AutoFlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultAutoFlushInterval
	}

	c := &TileCache{
		records:       make(map[types.TileID]*TileRecord),
		resident:      make(map[types.TileID]*Tile),
		capacity:      cfg.Capacity,
		threshold:     clampThreshold(threshold),
		alwaysPersist: cfg.AlwaysPersist,
		comparator:    MostRecentlyAccessed,
		owners:        owners,
		logger:        zap.NewNop(),
		metrics:       types.NopRecorder{},
		now:           time.Now,
		pollInterval:  pollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Directory == "" {
		dir, err := os.MkdirTemp("", "tilecache-")
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create spill directory").
				WithComponent(component).WithOperation("new")
		}
		c.dir = dir
		c.tempDir = dir
	} else {
		if err := os.MkdirAll(cfg.Directory, 0750); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create spill directory").
				WithComponent(component).WithOperation("new").
				WithContext("directory", cfg.Directory)
		}
		c.dir = cfg.Directory
	}

	c.metrics.UpdateMemory(0, c.capacity)
	c.sweeper = startPeriodicTask(pollInterval, c.sweepOwners)
	if cfg.AutoFlush {
		c.flusher = startPeriodicTask(flushInterval, c.autoFlushTick)
	}

	c.logger.Info("Tile cache created",
		zap.String("capacity", utils.FormatBytes(c.capacity)),
		zap.Float64("threshold", c.threshold),
		zap.String("directory", c.dir),
		zap.Bool("always_persist", c.alwaysPersist),
		zap.Bool("auto_flush", cfg.AutoFlush))

	return c, nil
}

// Add starts tracking the tile at (x, y) of owner. Adding an already
// tracked tile does nothing. The tile is kept in memory when it fits the
// budget; failing to persist it is logged, not returned.
func (c *TileCache) Add(owner types.OwnerID, x, y int, tile *Tile) error {
	c.markActive()
	if err := tile.Validate(); err != nil {
		c.metrics.RecordOperation("add", false)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.RecordOperation("add", false)
		return closedError("add")
	}

	id := types.NewTileID(owner, x, y)
	if _, tracked := c.records[id]; tracked {
		c.metrics.RecordOperation("add", true)
		return nil
	}

	rec := newTileRecord(id, c.owners, c.dir, tile, c.now())
	c.records[id] = rec

	if c.alwaysPersist {
		c.persistLocked(rec, tile)
	}

	if c.admitLocked(rec, tile) {
		rec.action = ActionAddedResident
	} else {
		rec.action = ActionAdded
		// too large for memory: keep a writable tile reachable through disk
		if tile.Writable && !rec.CachedToDisk() {
			c.persistLocked(rec, tile)
		}
	}

	c.metrics.RecordOperation("add", true)
	c.publishLocked()
	return nil
}

// Get returns the tile at (x, y) of owner, loading it from disk when it is
// not resident. The returned tile is the cached instance; call SetChanged
// after mutating a writable tile in place.
func (c *TileCache) Get(owner types.OwnerID, x, y int) (*Tile, bool) {
	c.markActive()

	c.mu.Lock()
	defer c.mu.Unlock()

	tile, ok := c.getLocked(types.NewTileID(owner, x, y))
	c.metrics.RecordOperation("get", true)
	c.publishLocked()
	return tile, ok
}

// GetAll returns every available tile of owner's declared grid in row-major
// order. Absent tiles are skipped.
func (c *TileCache) GetAll(owner types.OwnerID) []*Tile {
	c.markActive()

	grid, ok := c.owners.Resolve(owner)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tiles := make([]*Tile, 0, grid.Len())
	grid.Each(func(x, y int) {
		if tile, found := c.getLocked(types.NewTileID(owner, x, y)); found {
			tiles = append(tiles, tile)
		}
	})
	c.metrics.RecordOperation("get_all", true)
	c.publishLocked()
	return tiles
}

// Remove stops tracking the tile at (x, y) of owner and deletes its disk copy
func (c *TileCache) Remove(owner types.OwnerID, x, y int) {
	c.markActive()

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[types.NewTileID(owner, x, y)]; ok {
		c.removeRecordLocked(rec, ActionRemoved)
		c.metrics.RecordOperation("remove", true)
		c.publishLocked()
	}
}

// RemoveAll removes every tile of owner's declared grid. When the owner no
// longer resolves, all tiles recorded for it are removed instead.
func (c *TileCache) RemoveAll(owner types.OwnerID) {
	c.markActive()

	grid, ok := c.owners.Resolve(owner)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ok {
		grid.Each(func(x, y int) {
			if rec, tracked := c.records[types.NewTileID(owner, x, y)]; tracked {
				c.removeRecordLocked(rec, ActionRemoved)
			}
		})
	} else {
		for id, rec := range c.records {
			if id.Owner == owner {
				c.removeRecordLocked(rec, ActionRemoved)
			}
		}
	}
	c.metrics.RecordOperation("remove_all", true)
	c.publishLocked()
}

// SetChanged tells the cache that a resident tile was mutated in place. A
// tile that already has a disk copy is written out again.
func (c *TileCache) SetChanged(owner types.OwnerID, x, y int) error {
	c.markActive()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.metrics.RecordOperation("set_changed", false)
		return closedError("set_changed")
	}

	id := types.NewTileID(owner, x, y)
	rec, tracked := c.records[id]
	tile, resident := c.resident[id]
	if !tracked || !resident {
		c.metrics.RecordOperation("set_changed", false)
		return errors.NewError(errors.ErrCodeNotResident, "tile is not resident").
			WithComponent(component).
			WithOperation("set_changed").
			WithContext("tile", id.String())
	}

	if rec.CachedToDisk() {
		if err := rec.Persist(tile); err != nil {
			c.metrics.RecordDiskError("persist")
			c.metrics.RecordOperation("set_changed", false)
			return errors.Wrap(err, errors.ErrCodeDiskUpdateFailed, "failed to update disk copy").
				WithComponent(component).
				WithOperation("set_changed").
				WithContext("tile", id.String())
		}
	}

	c.metrics.RecordOperation("set_changed", true)
	return nil
}

// Accept passes every tracked record through v with the lock held
func (c *TileCache) Accept(v Visitor) {
	c.markActive()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, rec := range c.records {
		_, resident := c.resident[id]
		v.Visit(rec.Info(), resident)
	}
}

// Contains reports whether the tile is tracked, resident or not
func (c *TileCache) Contains(owner types.OwnerID, x, y int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[types.NewTileID(owner, x, y)]
	return ok
}

// IsResident reports whether the tile's data is currently held in memory
func (c *TileCache) IsResident(owner types.OwnerID, x, y int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resident[types.NewTileID(owner, x, y)]
	return ok
}

// SetCapacity changes the memory budget. Shrinking evicts the lowest
// priority tiles until usage fits; zero empties memory. Writable tiles are
// persisted before they are dropped.
func (c *TileCache) SetCapacity(capacity int64) error {
	c.markActive()
	if capacity < 0 {
		return configError("set_capacity", "capacity must not be negative").WithDetail("capacity", capacity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = capacity
	if capacity == 0 {
		for len(c.order) > 0 {
			c.evictLocked(c.order[len(c.order)-1], "resize")
		}
	} else if c.memory > capacity {
		sortRecords(c.order, c.comparator)
		for c.memory > capacity && len(c.order) > 0 {
			c.evictLocked(c.order[len(c.order)-1], "resize")
		}
	}

	c.logger.Debug("Capacity changed",
		zap.String("capacity", utils.FormatBytes(capacity)),
		zap.String("memory", utils.FormatBytes(c.memory)))
	c.publishLocked()
	return nil
}

// Capacity returns the memory budget in bytes
func (c *TileCache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// SetThreshold sets the fraction of capacity a trim frees memory down to,
// clamped to [0, 1]
func (c *TileCache) SetThreshold(threshold float64) {
	c.markActive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = clampThreshold(threshold)
}

// Threshold returns the trim threshold
func (c *TileCache) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// SetAlwaysPersist controls whether Add writes new tiles to disk immediately
func (c *TileCache) SetAlwaysPersist(enabled bool) {
	c.markActive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alwaysPersist = enabled
}

// SetDirectory changes where tiles added from now on are spilled. Existing
// records keep their directory and any disk copy they already have.
func (c *TileCache) SetDirectory(dir string) error {
	c.markActive()
	if dir == "" {
		return configError("set_directory", "directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create spill directory").
			WithComponent(component).
			WithOperation("set_directory").
			WithContext("directory", dir)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dir = dir
	return nil
}

// Directory returns the directory new spill files are created in
func (c *TileCache) Directory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dir
}

// SetComparator replaces the eviction policy
func (c *TileCache) SetComparator(cmp Comparator) {
	c.markActive()
	if cmp == nil {
		cmp = MostRecentlyAccessed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comparator = cmp
}

// Flush drops every resident tile without persisting anything
func (c *TileCache) Flush() {
	c.markActive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Trim evicts the lowest priority tiles until memory use is at or below
// threshold × capacity
func (c *TileCache) Trim() {
	c.markActive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimLocked()
	c.publishLocked()
}

// Stats returns cache statistics
func (c *TileCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.memory
	stats.Capacity = c.capacity
	stats.TrackedTiles = len(c.records)
	stats.ResidentTiles = len(c.resident)
	for _, rec := range c.records {
		if rec.CachedToDisk() {
			stats.DiskTiles++
		}
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if c.capacity > 0 {
		stats.Utilization = float64(c.memory) / float64(c.capacity)
	}
	return stats
}

// Close stops the background tasks, deletes every spill file still tracked
// and forgets all tiles. Calling Close again does nothing.
func (c *TileCache) Close() error {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopTasksLocked()

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for _, rec := range c.records {
		err = multierr.Append(err, rec.DeleteDiskCopy())
	}
	c.records = make(map[types.TileID]*TileRecord)
	c.resident = make(map[types.TileID]*Tile)
	c.order = nil
	c.memory = 0

	if c.tempDir != "" {
		err = multierr.Append(err, os.RemoveAll(c.tempDir))
	}
	c.publishLocked()

	c.logger.Info("Tile cache closed", zap.Uint64("hits", c.stats.Hits), zap.Uint64("misses", c.stats.Misses))
	return err
}

func (c *TileCache) getLocked(id types.TileID) (*Tile, bool) {
	rec, tracked := c.records[id]
	if !tracked {
		c.recordMissLocked()
		return nil, false
	}

	tile, resident := c.resident[id]
	source := "memory"
	if !resident {
		loaded, err := rec.Load()
		if err != nil {
			c.metrics.RecordDiskError("load")
			c.logger.Warn("Failed to load tile from disk",
				zap.Stringer("tile", id),
				zap.String("path", rec.DiskPath()),
				zap.Error(err))
		}
		if loaded == nil {
			c.recordMissLocked()
			return nil, false
		}
		tile = loaded
		source = "disk"
		if c.admitLocked(rec, tile) {
			rec.action = ActionResident
		}
	}

	rec.Touch(c.now())
	rec.action = ActionAccessed
	c.stats.Hits++
	c.metrics.RecordCacheHit(source)
	return tile, true
}

func (c *TileCache) recordMissLocked() {
	c.stats.Misses++
	c.metrics.RecordCacheMiss()
}

// admitLocked makes room for tile and adds it to the resident set. It
// reports false when the tile is larger than the whole budget.
func (c *TileCache) admitLocked(rec *TileRecord, tile *Tile) bool {
	size := rec.byteLength
	if size > c.capacity {
		return false
	}

	if c.capacity-c.memory < size {
		c.trimLocked()
		if c.capacity-c.memory < size {
			sortRecords(c.order, c.comparator)
			for c.capacity-c.memory < size && len(c.order) > 0 {
				c.evictLocked(c.order[len(c.order)-1], "capacity")
			}
		}
	}

	c.resident[rec.id] = tile
	c.memory += size
	c.order = append(c.order, rec)
	return true
}

func (c *TileCache) trimLocked() {
	target := int64(c.threshold * float64(c.capacity))
	if c.memory <= target {
		return
	}

	sortRecords(c.order, c.comparator)
	for c.memory > target && len(c.order) > 0 {
		c.evictLocked(c.order[len(c.order)-1], "threshold")
	}
}

// evictLocked persists a writable tile and drops it from memory. A failed
// persist is logged and the tile is dropped anyway, together with any older
// disk copy, so a later Get misses instead of returning outdated bytes.
func (c *TileCache) evictLocked(rec *TileRecord, reason string) {
	if tile, ok := c.resident[rec.id]; ok && tile.Writable {
		if !c.persistLocked(rec, tile) {
			c.deleteDiskCopyLocked(rec)
		}
	}
	c.dropResidentLocked(rec)
	c.stats.Evictions++
	c.metrics.RecordEviction(reason)

	c.logger.Debug("Evicted tile",
		zap.Stringer("tile", rec.id),
		zap.String("reason", reason),
		zap.Bool("on_disk", rec.CachedToDisk()))
}

func (c *TileCache) flushLocked() {
	if len(c.order) == 0 {
		return
	}
	dropped := len(c.order)
	for len(c.order) > 0 {
		c.dropResidentLocked(c.order[len(c.order)-1])
		c.stats.Evictions++
		c.metrics.RecordEviction("flush")
	}
	c.publishLocked()
	c.logger.Debug("Flushed resident tiles", zap.Int("tiles", dropped))
}

func (c *TileCache) dropResidentLocked(rec *TileRecord) {
	if _, ok := c.resident[rec.id]; !ok {
		return
	}
	delete(c.resident, rec.id)
	c.memory -= rec.byteLength
	rec.action = ActionNonResident

	for i := len(c.order) - 1; i >= 0; i-- {
		if c.order[i] == rec {
			c.order = slices.Delete(c.order, i, i+1)
			break
		}
	}
}

func (c *TileCache) removeRecordLocked(rec *TileRecord, action Action) {
	c.dropResidentLocked(rec)
	c.deleteDiskCopyLocked(rec)
	delete(c.records, rec.id)
	rec.action = action
}

// persistLocked writes tile to its spill file and reports whether it did
func (c *TileCache) persistLocked(rec *TileRecord, tile *Tile) bool {
	if err := rec.Persist(tile); err != nil {
		c.metrics.RecordDiskError("persist")
		c.logger.Warn("Failed to persist tile",
			zap.Stringer("tile", rec.id),
			zap.String("directory", rec.dir),
			zap.Error(err))
		return false
	}
	return true
}

func (c *TileCache) deleteDiskCopyLocked(rec *TileRecord) {
	if err := rec.DeleteDiskCopy(); err != nil {
		c.metrics.RecordDiskError("delete")
		c.logger.Warn("Failed to delete spill file", zap.Stringer("tile", rec.id), zap.Error(err))
	}
}

func (c *TileCache) publishLocked() {
	c.metrics.UpdateMemory(c.memory, c.capacity)
	c.metrics.UpdateTiles(len(c.records), len(c.resident))
}

func (c *TileCache) markActive() {
	c.idle.Store(false)
}

func clampThreshold(threshold float64) float64 {
	if math.IsNaN(threshold) {
		return DefaultThreshold
	}
	return min(max(threshold, 0), 1)
}

func configError(op, msg string) *errors.CacheError {
	return errors.NewError(errors.ErrCodeInvalidConfig, msg).WithComponent(component).WithOperation(op)
}

func closedError(op string) *errors.CacheError {
	return errors.NewError(errors.ErrCodeCacheClosed, "tile cache is closed").WithComponent(component).WithOperation(op)
}
