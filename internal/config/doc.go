/*
Package config provides configuration management for the tile cache with
multi-source support.

Settings come from compiled-in defaults, a YAML file and TILECACHE_*
environment variables, applied in that order:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (TILECACHE_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File                  │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("tilecache.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cacheCfg, err := cfg.CacheConfig()
	if err != nil {
		return err
	}
	tiles, err := cache.NewTileCache(cacheCfg, registry)

# File Format

	global:
	  log_level: INFO        # DEBUG, INFO, WARN, ERROR
	  log_format: console    # console or json

	cache:
	  capacity: 64MB
	  threshold: 0.75
	  always_persist: false
	  directory: /var/cache/tiles
	  auto_flush:
	    enabled: false
	    interval: 5s
	  owner_poll_interval: 2.5s

	metrics:
	  enabled: false
	  port: 9090
	  path: /metrics
	  namespace: tilecache

# Environment Variables

	TILECACHE_LOG_LEVEL            global.log_level
	TILECACHE_LOG_FORMAT           global.log_format
	TILECACHE_CAPACITY             cache.capacity
	TILECACHE_THRESHOLD            cache.threshold
	TILECACHE_ALWAYS_PERSIST       cache.always_persist
	TILECACHE_DIRECTORY            cache.directory
	TILECACHE_AUTO_FLUSH           cache.auto_flush.enabled
	TILECACHE_AUTO_FLUSH_INTERVAL  cache.auto_flush.interval
	TILECACHE_OWNER_POLL_INTERVAL  cache.owner_poll_interval
	TILECACHE_METRICS_ENABLED      metrics.enabled
	TILECACHE_METRICS_PORT         metrics.port

Malformed numbers and durations are reported as CONFIG_LOAD errors.
*/
package config
