package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/tilecache/internal/cache"
	"github.com/objectfs/tilecache/internal/metrics"
	"github.com/objectfs/tilecache/internal/owner"
	"github.com/objectfs/tilecache/pkg/errors"
	"github.com/objectfs/tilecache/pkg/types"
	"github.com/objectfs/tilecache/pkg/utils"
)

type soakOptions struct {
	duration     time.Duration
	workers      int
	owners       int
	gridSize     int
	tileSize     string
	capacity     string
	releaseEvery time.Duration
	writeRatio   float64
	seed         uint64
}

func newSoakCommand(flags *globalFlags) *cobra.Command {
	opts := soakOptions{}

	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Run a synthetic concurrent workload against a tile cache",
		Long: "Run a synthetic concurrent workload against a tile cache.\n\n" +
			"Workers add, fetch and mark tiles changed on a set of owners while owners\n" +
			"are periodically released and replaced, then a summary is printed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			log, err := flags.newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cacheCfg, err := cfg.CacheConfig()
			if err != nil {
				return err
			}
			if opts.capacity != "" {
				if cacheCfg.Capacity, err = utils.ParseBytes(opts.capacity); err != nil {
					return err
				}
			}

			collector, err := metrics.NewCollector(&metrics.Config{
				Enabled:   cfg.Metrics.Enabled,
				Port:      cfg.Metrics.Port,
				Path:      cfg.Metrics.Path,
				Namespace: cfg.Metrics.Namespace,
			}, log)
			if err != nil {
				return err
			}
			if err := collector.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = collector.Stop(ctx)
			}()

			return runSoak(cmd, opts, cacheCfg, log, collector)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 10*time.Second, "how long to run the workload")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.owners, "owners", 4, "number of live owners")
	cmd.Flags().IntVar(&opts.gridSize, "grid", 8, "tiles per side of each owner's grid")
	cmd.Flags().StringVar(&opts.tileSize, "tile-size", "64KB", "bytes per tile")
	cmd.Flags().StringVar(&opts.capacity, "capacity", "", "override the cache capacity")
	cmd.Flags().DurationVar(&opts.releaseEvery, "release-every", 2*time.Second, "release and replace one owner this often (0 disables)")
	cmd.Flags().Float64Var(&opts.writeRatio, "write-ratio", 0.2, "fraction of lookups followed by SetChanged")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")

	return cmd
}

// ownerPool hands out live owners to workers and rotates them.
type ownerPool struct {
	mu       sync.RWMutex
	registry *owner.Registry
	grid     types.TileGrid
	ids      []types.OwnerID
	released int
}

func newOwnerPool(n int, grid types.TileGrid) *ownerPool {
	p := &ownerPool{registry: owner.NewRegistry(), grid: grid}
	for range n {
		p.ids = append(p.ids, p.registry.Register(grid))
	}
	return p
}

func (p *ownerPool) pick(r *rand.Rand) types.OwnerID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ids[r.IntN(len(p.ids))]
}

func (p *ownerPool) rotate(r *rand.Rand) types.OwnerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := r.IntN(len(p.ids))
	released := p.ids[i]
	p.registry.Release(released)
	p.ids[i] = p.registry.Register(p.grid)
	p.released++
	return released
}

type soakCounters struct {
	gets, hits, adds, changes, changeErrors atomic.Int64
}

func runSoak(cmd *cobra.Command, opts soakOptions, cacheCfg *cache.Config, log *zap.Logger, recorder types.MetricsRecorder) error {
	if opts.workers < 1 || opts.owners < 1 || opts.gridSize < 1 {
		return fmt.Errorf("workers, owners and grid must be positive")
	}
	tileBytes, err := utils.ParseBytes(opts.tileSize)
	if err != nil {
		return err
	}
	bankLength := int(tileBytes) / cache.SampleFloat.Size()
	if bankLength < 1 {
		return fmt.Errorf("tile size %s is smaller than one sample", opts.tileSize)
	}

	grid := types.TileGrid{NumXTiles: opts.gridSize, NumYTiles: opts.gridSize}
	pool := newOwnerPool(opts.owners, grid)

	tiles, err := cache.NewTileCache(cacheCfg, pool.registry,
		cache.WithLogger(log),
		cache.WithMetrics(recorder))
	if err != nil {
		return err
	}
	defer func() {
		if err := tiles.Close(); err != nil {
			log.Warn("Failed to close tile cache", zap.Error(err))
		}
	}()

	log.Info("Soak started",
		zap.Duration("duration", opts.duration),
		zap.Int("workers", opts.workers),
		zap.Int("owners", opts.owners),
		zap.String("tile_size", utils.FormatBytes(int64(bankLength*cache.SampleFloat.Size()))),
		zap.String("capacity", utils.FormatBytes(tiles.Capacity())))

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
	defer cancel()

	var counters soakCounters
	eg, ctx := errgroup.WithContext(ctx)

	for i := range opts.workers {
		r := rand.New(rand.NewPCG(opts.seed, uint64(i)+1))
		eg.Go(func() error {
			for ctx.Err() == nil {
				id := pool.pick(r)
				x, y := r.IntN(grid.NumXTiles), r.IntN(grid.NumYTiles)

				counters.gets.Add(1)
				if _, ok := tiles.Get(id, x, y); ok {
					counters.hits.Add(1)
				} else {
					tile := cache.NewTile(cache.SampleFloat, 1, bankLength, r.Float64() < 0.5)
					if err := tiles.Add(id, x, y, tile); err != nil {
						return err
					}
					counters.adds.Add(1)
				}

				if r.Float64() < opts.writeRatio {
					counters.changes.Add(1)
					if err := tiles.SetChanged(id, x, y); err != nil && !errors.HasCode(err, errors.ErrCodeNotResident) {
						counters.changeErrors.Add(1)
						log.Debug("SetChanged failed", zap.Stringer("tile", types.NewTileID(id, x, y)), zap.Error(err))
					}
				}
			}
			return nil
		})
	}

	if opts.releaseEvery > 0 {
		r := rand.New(rand.NewPCG(opts.seed, 0))
		eg.Go(func() error {
			ticker := time.NewTicker(opts.releaseEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					released := pool.rotate(r)
					log.Debug("Owner released", zap.String("owner", string(released)))
				}
			}
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	resident := cache.NewRecordCollector().WithResidency(true)
	tiles.Accept(resident)

	printSummary(cmd, tiles.Stats(), &counters, len(resident.Records()), pool.released)
	return nil
}

func printSummary(cmd *cobra.Command, stats types.CacheStats, counters *soakCounters, resident, released int) {
	table := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintf(table, "lookups\t%d\n", counters.gets.Load())
	fmt.Fprintf(table, "lookup hits\t%d\n", counters.hits.Load())
	fmt.Fprintf(table, "tiles added\t%d\n", counters.adds.Load())
	fmt.Fprintf(table, "set changed\t%d (%d failed)\n", counters.changes.Load(), counters.changeErrors.Load())
	fmt.Fprintf(table, "owners released\t%d\n", released)
	fmt.Fprintf(table, "cache hits\t%d\n", stats.Hits)
	fmt.Fprintf(table, "cache misses\t%d\n", stats.Misses)
	fmt.Fprintf(table, "hit rate\t%.1f%%\n", stats.HitRate*100)
	fmt.Fprintf(table, "evictions\t%d\n", stats.Evictions)
	fmt.Fprintf(table, "tracked tiles\t%d\n", stats.TrackedTiles)
	fmt.Fprintf(table, "resident tiles\t%d\n", resident)
	fmt.Fprintf(table, "tiles on disk\t%d\n", stats.DiskTiles)
	fmt.Fprintf(table, "memory\t%s / %s (%.1f%%)\n",
		utils.FormatBytes(stats.Size), utils.FormatBytes(stats.Capacity), stats.Utilization*100)
	_ = table.Flush()
}
