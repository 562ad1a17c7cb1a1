package types

// OwnerResolver answers whether an owner is still alive and what tile grid it
// declares. The tile cache never holds owners themselves, only their IDs.
type OwnerResolver interface {
	Resolve(id OwnerID) (TileGrid, bool)
}

// OwnerResolverFunc adapts a plain function to OwnerResolver
type OwnerResolverFunc func(id OwnerID) (TileGrid, bool)

// Resolve calls f(id)
func (f OwnerResolverFunc) Resolve(id OwnerID) (TileGrid, bool) {
	return f(id)
}

// MetricsRecorder receives tile cache events. Implementations are called with
// the cache lock held and must not call back into the cache.
type MetricsRecorder interface {
	RecordOperation(operation string, success bool)
	RecordCacheHit(source string)
	RecordCacheMiss()
	RecordEviction(reason string)
	RecordDiskError(operation string)
	UpdateMemory(used, capacity int64)
	UpdateTiles(tracked, resident int)
}

// NopRecorder discards every event
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, bool) {}
func (NopRecorder) RecordCacheHit(string) {}
func (NopRecorder) RecordCacheMiss() {}
func (NopRecorder) RecordEviction(string) {}
func (NopRecorder) RecordDiskError(string) {}
func (NopRecorder) UpdateMemory(int64, int64) {}
func (NopRecorder) UpdateTiles(int, int) {}
