/*
Package types holds the identity types, statistics and interfaces shared by the
tile cache, the owner registry and the metrics collector.

# Identities

A tile is identified by the dataset that owns it and its column/row in that
dataset's tile grid:

	id := types.NewTileID(owner, 3, 7) // "owner/3/7"

TileID is a comparable struct and is used directly as a map key, so two calls
describing the same owner and coordinates always produce the same identity.

# Owners

OwnerID is an opaque handle. The cache never references the dataset itself; it
asks an OwnerResolver whether the handle is still alive and what TileGrid it
declares. This keeps the cache out of the embedding application's memory
management entirely.

# Metrics

MetricsRecorder decouples the cache from the Prometheus collector in
internal/metrics. NopRecorder is used when metrics are disabled.
*/
package types
