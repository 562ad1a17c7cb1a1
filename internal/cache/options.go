package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/tilecache/pkg/types"
)

const (
	DefaultCapacity          = 64 * 1024 * 1024 // 64MB
	DefaultThreshold         = 0.75
	DefaultAutoFlushInterval = 5 * time.Second
	DefaultOwnerPollInterval = 2500 * time.Millisecond
)

// Config represents tile cache configuration
type Config struct {
	// Capacity is the memory budget in bytes. Zero keeps nothing resident.
	Capacity int64 `yaml:"capacity"`

	// Threshold is the fraction of Capacity a trim frees memory down to,
	// clamped to [0, 1]. Nil selects DefaultThreshold.
	Threshold *float64 `yaml:"threshold"`

	AlwaysPersist bool `yaml:"always_persist"`

	// Directory holds spill files. Empty means a fresh directory under the
	// system temp dir, removed again by Close.
	Directory string `yaml:"directory"`

	AutoFlush         bool          `yaml:"auto_flush"`
	AutoFlushInterval time.Duration `yaml:"auto_flush_interval"`
	OwnerPollInterval time.Duration `yaml:"owner_poll_interval"`
}

// DefaultConfig returns the configuration used when NewTileCache gets nil
func DefaultConfig() *Config {
	threshold := DefaultThreshold
	return &Config{
		Capacity:          DefaultCapacity,
		Threshold:         &threshold,
		AutoFlushInterval: DefaultAutoFlushInterval,
		OwnerPollInterval: DefaultOwnerPollInterval,
	}
}

// Option customizes a TileCache
type Option func(*TileCache)

// WithLogger sets the logger, zap.NewNop by default
func WithLogger(logger *zap.Logger) Option {
	return func(c *TileCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the recorder that receives cache events
func WithMetrics(recorder types.MetricsRecorder) Option {
	return func(c *TileCache) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithComparator sets the eviction policy, MostRecentlyAccessed by default
func WithComparator(cmp Comparator) Option {
	return func(c *TileCache) {
		if cmp != nil {
			c.comparator = cmp
		}
	}
}

// WithClock replaces time.Now for access timestamps
func WithClock(now func() time.Time) Option {
	return func(c *TileCache) {
		if now != nil {
			c.now = now
		}
	}
}
