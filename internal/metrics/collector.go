package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/objectfs/tilecache/pkg/types"
)

// Collector exports tile cache events as Prometheus metrics. It implements
// types.MetricsRecorder.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	// Prometheus metrics
	operationCounter *prometheus.CounterVec
	requestCounter   *prometheus.CounterVec
	evictionCounter  *prometheus.CounterVec
	diskErrorCounter *prometheus.CounterVec
	memoryGauge      prometheus.Gauge
	capacityGauge    prometheus.Gauge
	trackedGauge     prometheus.Gauge
	residentGauge    prometheus.Gauge

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

var _ types.MetricsRecorder = (*Collector)(nil)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// OperationMetrics tracks counts for a specific operation type
type OperationMetrics struct {
	Count         int64     `json:"count"`
	Errors        int64     `json:"errors"`
	LastOperation time.Time `json:"last_operation"`
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config, logger *zap.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "tilecache",
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !config.Enabled {
		return &Collector{config: config, logger: logger}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		logger:     logger,
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Start serves the metrics endpoint in the background
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port: %w", err)
	}

	c.mu.Lock()
	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	c.logger.Info("Metrics server started",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", c.config.Path))
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the address the server listens on, or "" when not started
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Handler returns the HTTP handler for the metrics, health and debug endpoints
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.config.Enabled {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

// Registry returns the private Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordOperation records the outcome of a cache operation
func (c *Collector) RecordOperation(operation string, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    map[bool]string{true: "success", false: "error"}[success],
	}).Inc()
}

// RecordCacheHit records a hit served from memory or disk
func (c *Collector) RecordCacheHit(source string) {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.WithLabelValues("hit", source).Inc()
}

// RecordCacheMiss records a miss
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.WithLabelValues("miss", "none").Inc()
}

// RecordEviction records a tile leaving memory
func (c *Collector) RecordEviction(reason string) {
	if !c.config.Enabled {
		return
	}
	c.evictionCounter.WithLabelValues(reason).Inc()
}

// RecordDiskError records a failed spill file operation
func (c *Collector) RecordDiskError(operation string) {
	if !c.config.Enabled {
		return
	}
	c.diskErrorCounter.WithLabelValues(operation).Inc()
}

// UpdateMemory updates the memory gauges
func (c *Collector) UpdateMemory(used, capacity int64) {
	if !c.config.Enabled {
		return
	}
	c.memoryGauge.Set(float64(used))
	c.capacityGauge.Set(float64(capacity))
}

// UpdateTiles updates the tile count gauges
func (c *Collector) UpdateTiles(tracked, resident int) {
	if !c.config.Enabled {
		return
	}
	c.trackedGauge.Set(float64(tracked))
	c.residentGauge.Set(float64(resident))
}

// GetMetrics returns a copy of the per-operation counts
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		operations[k] = *v
	}
	return operations
}

// ResetMetrics resets the per-operation counts
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of tile cache operations",
		},
		[]string{"operation", "status"},
	)

	c.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "cache_requests_total",
			Help:      "Total number of tile lookups",
		},
		[]string{"type", "source"},
	)

	c.evictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "evictions_total",
			Help:      "Total number of tiles removed from memory",
		},
		[]string{"reason"},
	)

	c.diskErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "disk_errors_total",
			Help:      "Total number of failed spill file operations",
		},
		[]string{"operation"},
	)

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      name,
			Help:      help,
		})
	}
	c.memoryGauge = gauge("memory_bytes", "Bytes of tile data resident in memory")
	c.capacityGauge = gauge("capacity_bytes", "Memory budget in bytes")
	c.trackedGauge = gauge("tracked_tiles", "Number of tracked tiles")
	c.residentGauge = gauge("resident_tiles", "Number of tiles resident in memory")
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.requestCounter,
		c.evictionCounter,
		c.diskErrorCounter,
		c.memoryGauge,
		c.capacityGauge,
		c.trackedGauge,
		c.residentGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"tilecache-metrics"}`)) // Ignore write error for health check
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")

	// Helper to avoid errcheck issues
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Tile Cache Operations Summary\n")
	writef("=============================\n\n")
	writef("Uptime: %v\n", time.Since(c.lastReset).Round(time.Second))
	writef("Last Reset: %v\n\n", c.lastReset.Format(time.RFC3339))

	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-20s %10s %10s %10s\n", "Operation", "Count", "Errors", "Last Op")
	writef("%-20s %10s %10s %10s\n", "----------", "-----", "------", "-------")

	for _, name := range names {
		op := c.operations[name]
		writef("%-20s %10d %10d %10s\n", name, op.Count, op.Errors, op.LastOperation.Format("15:04:05"))
	}
}
