package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/tilecache/internal/cache"
	"github.com/objectfs/tilecache/pkg/errors"
	"github.com/objectfs/tilecache/pkg/utils"
)

const envPrefix = "TILECACHE_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Cache   CacheConfig   `yaml:"cache"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// CacheConfig represents tile cache settings
type CacheConfig struct {
	Capacity          string          `yaml:"capacity"`
	Threshold         float64         `yaml:"threshold"`
	AlwaysPersist     bool            `yaml:"always_persist"`
	Directory         string          `yaml:"directory"`
	AutoFlush         AutoFlushConfig `yaml:"auto_flush"`
	OwnerPollInterval time.Duration   `yaml:"owner_poll_interval"`
}

// AutoFlushConfig represents auto-flush settings
type AutoFlushConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "console",
		},
		Cache: CacheConfig{
			Capacity:  "64MB",
			Threshold: cache.DefaultThreshold,
			AutoFlush: AutoFlushConfig{
				Enabled:  false,
				Interval: cache.DefaultAutoFlushInterval,
			},
			OwnerPollInterval: cache.DefaultOwnerPollInterval,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "tilecache",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return loadError(err, "failed to read config file").WithContext("file", filename)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return loadError(err, "failed to parse config file").WithContext("file", filename)
	}

	return nil
}

// LoadFromEnv overrides settings from TILECACHE_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Cache settings
	if val := os.Getenv(envPrefix + "CAPACITY"); val != "" {
		c.Cache.Capacity = val
	}
	if val := os.Getenv(envPrefix + "THRESHOLD"); val != "" {
		threshold, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError(err, "THRESHOLD", val)
		}
		c.Cache.Threshold = threshold
	}
	if val := os.Getenv(envPrefix + "ALWAYS_PERSIST"); val != "" {
		c.Cache.AlwaysPersist = strings.ToLower(val) == "true"
	}
	if val := os.Getenv(envPrefix + "DIRECTORY"); val != "" {
		c.Cache.Directory = val
	}
	if val := os.Getenv(envPrefix + "AUTO_FLUSH"); val != "" {
		c.Cache.AutoFlush.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv(envPrefix + "AUTO_FLUSH_INTERVAL"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return envError(err, "AUTO_FLUSH_INTERVAL", val)
		}
		c.Cache.AutoFlush.Interval = interval
	}
	if val := os.Getenv(envPrefix + "OWNER_POLL_INTERVAL"); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return envError(err, "OWNER_POLL_INTERVAL", val)
		}
		c.Cache.OwnerPollInterval = interval
	}

	// Metrics settings
	if val := os.Getenv(envPrefix + "METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv(envPrefix + "METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return envError(err, "METRICS_PORT", val)
		}
		c.Metrics.Port = port
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return invalid("global.log_level", fmt.Sprintf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "json", "console":
	default:
		return invalid("global.log_format", fmt.Sprintf("invalid log_format: %s (must be json or console)", c.Global.LogFormat))
	}

	if _, err := utils.ParseBytes(c.Cache.Capacity); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid cache capacity").
			WithComponent("config").
			WithContext("field", "cache.capacity")
	}

	if c.Cache.Threshold < 0 || c.Cache.Threshold > 1 {
		return invalid("cache.threshold", "threshold must be between 0 and 1")
	}

	if c.Cache.AutoFlush.Enabled && c.Cache.AutoFlush.Interval <= 0 {
		return invalid("cache.auto_flush.interval", "auto-flush interval must be greater than 0")
	}

	if c.Cache.OwnerPollInterval <= 0 {
		return invalid("cache.owner_poll_interval", "owner poll interval must be greater than 0")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return invalid("metrics.port", fmt.Sprintf("invalid metrics port: %d", c.Metrics.Port))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path", "metrics path must start with /")
		}
	}

	return nil
}

// CacheConfig converts the cache section into a tile cache configuration
func (c *Configuration) CacheConfig() (*cache.Config, error) {
	capacity, err := utils.ParseBytes(c.Cache.Capacity)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid cache capacity").
			WithComponent("config").
			WithContext("field", "cache.capacity")
	}

	threshold := c.Cache.Threshold
	return &cache.Config{
		Capacity:          capacity,
		Threshold:         &threshold,
		AlwaysPersist:     c.Cache.AlwaysPersist,
		Directory:         c.Cache.Directory,
		AutoFlush:         c.Cache.AutoFlush.Enabled,
		AutoFlushInterval: c.Cache.AutoFlush.Interval,
		OwnerPollInterval: c.Cache.OwnerPollInterval,
	}, nil
}

func invalid(field, msg string) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, msg).
		WithComponent("config").
		WithContext("field", field)
}

func loadError(cause error, msg string) *errors.CacheError {
	return errors.Wrap(cause, errors.ErrCodeConfigLoad, msg).WithComponent("config")
}

func envError(cause error, name, value string) error {
	return loadError(cause, "invalid environment variable").
		WithContext("variable", envPrefix+name).
		WithContext("value", value)
}
