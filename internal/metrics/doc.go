/*
Package metrics exports tile cache activity as Prometheus metrics.

Collector implements types.MetricsRecorder, so it can be passed straight to
cache.WithMetrics. Each collector owns a private registry, which keeps several
caches in one process from colliding.

	┌─────────────┐
	│  TileCache  │
	└──────┬──────┘
	       │ MetricsRecorder
	┌──────▼──────┐         ┌──────────────────┐
	│  Collector  │────────▶│  HTTP Endpoints   │
	│  Registry   │         │  /metrics         │
	└─────────────┘         │  /health          │
	                        │  /debug/operations│
	                        └──────────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "tilecache",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

	tiles, err := cache.NewTileCache(cfg, registry, cache.WithMetrics(collector))

# Exported Metrics

	<ns>_operations_total{operation,status}   cache calls by outcome
	<ns>_cache_requests_total{type,source}    hits by source, misses
	<ns>_evictions_total{reason}              tiles leaving memory
	<ns>_disk_errors_total{operation}         failed spill file I/O
	<ns>_memory_bytes                         resident bytes
	<ns>_capacity_bytes                       memory budget
	<ns>_tracked_tiles                        tracked tiles
	<ns>_resident_tiles                       resident tiles

A disabled collector accepts every call and records nothing.
*/
package metrics
