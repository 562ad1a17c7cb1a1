package cache

import (
	"time"

	"go.uber.org/zap"
)

// periodicTask runs tick on a fixed interval until stopped
type periodicTask struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startPeriodicTask(interval time.Duration, tick func()) *periodicTask {
	t := &periodicTask{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(t.doneCh)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()

	return t
}

// stop blocks until the goroutine has exited, including any running tick
func (t *periodicTask) stop() {
	close(t.stopCh)
	<-t.doneCh
}

// EnableAutoFlush starts (or restarts) the auto-flush task. Resident memory
// is dropped after a full interval without foreground calls.
func (c *TileCache) EnableAutoFlush(interval time.Duration) error {
	if interval <= 0 {
		return configError("enable_auto_flush", "auto-flush interval must be positive").
			WithDetail("interval", interval.String())
	}

	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.isClosed() {
		return closedError("enable_auto_flush")
	}
	if c.flusher != nil {
		c.flusher.stop()
	}
	c.idle.Store(false)
	c.flusher = startPeriodicTask(interval, c.autoFlushTick)

	c.logger.Debug("Auto-flush enabled", zap.Duration("interval", interval))
	return nil
}

// DisableAutoFlush stops the auto-flush task and waits for a running tick
func (c *TileCache) DisableAutoFlush() {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.flusher != nil {
		c.flusher.stop()
		c.flusher = nil
		c.logger.Debug("Auto-flush disabled")
	}
}

// AutoFlushEnabled reports whether the auto-flush task is running
func (c *TileCache) AutoFlushEnabled() bool {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	return c.flusher != nil
}

// SetOwnerPollInterval restarts the owner-liveness sweep with a new interval
func (c *TileCache) SetOwnerPollInterval(interval time.Duration) error {
	if interval <= 0 {
		return configError("set_owner_poll_interval", "owner poll interval must be positive").
			WithDetail("interval", interval.String())
	}

	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.isClosed() {
		return closedError("set_owner_poll_interval")
	}
	if c.sweeper != nil {
		c.sweeper.stop()
	}
	c.pollInterval = interval
	c.sweeper = startPeriodicTask(interval, c.sweepOwners)
	return nil
}

// OwnerPollInterval returns the interval of the owner-liveness sweep
func (c *TileCache) OwnerPollInterval() time.Duration {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	return c.pollInterval
}

func (c *TileCache) stopTasksLocked() {
	if c.sweeper != nil {
		c.sweeper.stop()
		c.sweeper = nil
	}
	if c.flusher != nil {
		c.flusher.stop()
		c.flusher = nil
	}
}

func (c *TileCache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// sweepOwners untracks every tile whose owner no longer resolves. It gives
// up the tick when a foreground call holds the lock.
func (c *TileCache) sweepOwners() {
	if !c.mu.TryLock() {
		c.logger.Debug("Owner sweep skipped, cache busy")
		return
	}
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	collected := 0
	for _, rec := range c.records {
		if rec.OwnerAlive() {
			continue
		}
		c.removeRecordLocked(rec, ActionGarbageCollected)
		c.metrics.RecordEviction("owner_gone")
		collected++
	}

	if collected > 0 {
		c.publishLocked()
		c.logger.Debug("Collected tiles of released owners", zap.Int("tiles", collected))
	}
}

// autoFlushTick flushes only when the previous tick saw no foreground call
func (c *TileCache) autoFlushTick() {
	if c.idle.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.flushLocked()
	}
}
