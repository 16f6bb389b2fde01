// Package gc provides the staged cleanup of deleted stores.
//
// Deleting a store only schedules the removal of its rows: a store may own an
// unbounded number of objects, branches and status rows, which must not be
// removed in a single transaction. The collector drains the pending purges in
// small transactions, table by table, releasing the core token between them
// so that regular work can interleave.
package gc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/internal/ratelimiter"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/metrics"
)

// Presence tells whether a store index is in use again.
type Presence interface {
	IsPresent(sidx metadata.SIndex) bool
}

// Operator runs in the transaction that completes the purge of a store.
type Operator func(t *trans.Trans, sidx metadata.SIndex) error

// Collector performs the deferred cleanup of deleted stores.
//
// Thread Safety: Start, Stop and RunNow may be called from any goroutine.
// Every transaction is run while holding the configured Locker.
type Collector struct {
	d         *db.Database
	tm        *trans.Manager
	presence  Presence
	config    Config
	operators []Operator
	metrics   metrics.StoreMetrics
	limiter   *ratelimiter.RateLimiter
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
}

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether background collection is active (default: false)
	Enabled bool

	// Interval is how often to look for pending purges (default: 1m)
	Interval time.Duration

	// BatchSize is how many rows to delete per transaction (default: 1000)
	BatchSize int

	// BatchesPerSecond caps the purge transactions started per second
	// (default: 0, unlimited)
	BatchesPerSecond uint

	// Locker serializes the collector's transactions with the rest of the
	// core. May be nil when nothing else runs concurrently.
	Locker sync.Locker
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// NewCollector creates a new collector. The collector is initialized but not
// started. m may be nil.
func NewCollector(d *db.Database, presence Presence, config Config, m metrics.StoreMetrics) *Collector {
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.Locker == nil {
		config.Locker = noLock{}
	}
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	return &Collector{
		d:        d,
		tm:       d.TransManager(),
		presence: presence,
		config:   config,
		metrics:  m,
		limiter:  ratelimiter.New(config.BatchesPerSecond, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// AddOperator registers an operator run when the purge of a store completes.
func (c *Collector) AddOperator(op Operator) {
	c.operators = append(c.operators, op)
}

// Start begins background collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Store cleanup disabled")
		return
	}
	c.startOnce.Do(func() {
		logger.Info("Starting store cleanup: interval=%s batch_size=%d", c.config.Interval, c.config.BatchSize)
		c.started.Store(true)
		go c.worker()
	})
}

// Stop stops the collector and waits for the current batch to finish.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	logger.Info("Stopping store cleanup...")
	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Store cleanup stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Store cleanup shutdown timeout")
		return ctx.Err()
	}
}

// RunNow drains every pending purge and blocks until done or ctx is cancelled.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Store cleanup failed: %v", err)
			} else if stats.Stores > 0 {
				logger.Info("Store cleanup completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// locked runs fn in a transaction while holding the locker.
func (c *Collector) locked(fn func(t *trans.Trans) error) error {
	c.config.Locker.Lock()
	defer c.config.Locker.Unlock()
	return c.tm.Run(fn)
}

func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	c.config.Locker.Lock()
	pending, err := c.d.PendingPurges()
	c.config.Locker.Unlock()
	if err != nil {
		return stats, err
	}
	c.metrics.SetPendingCleanups(len(pending))

	for i, sidx := range pending {
		done, err := c.purge(ctx, sidx, stats)
		if err != nil {
			return stats, err
		}
		if done {
			stats.Stores++
		}
		c.metrics.SetPendingCleanups(len(pending) - i - 1)
	}
	return stats, nil
}

// purge deletes every row of sidx, BatchSize rows per transaction. done is
// false when the index was taken over by a re-created store, whose creation
// purges the leftovers itself.
func (c *Collector) purge(ctx context.Context, sidx metadata.SIndex, stats *Stats) (bool, error) {
	for _, table := range db.StoreTables {
		for {
			if err := c.limiter.Wait(ctx); err != nil {
				return false, err
			}

			var n int
			reused := false
			err := c.locked(func(t *trans.Trans) error {
				if c.presence != nil && c.presence.IsPresent(sidx) {
					reused = true
					return nil
				}
				var err error
				n, err = c.d.PurgeTable(t, table, sidx, c.config.BatchSize)
				return err
			})
			if err != nil {
				return false, fmt.Errorf("failed to purge %s rows of store %s: %w", table, sidx, err)
			}
			if reused {
				logger.Debug("Store %s was re-created, abandoning its cleanup", sidx)
				return false, nil
			}

			stats.Rows += uint64(n)
			c.metrics.RecordCleanupRows(table.String(), n)
			if n < c.config.BatchSize {
				break
			}
		}
	}

	reused := false
	err := c.locked(func(t *trans.Trans) error {
		// The index may have been recalled since the last batch.
		if c.presence != nil && c.presence.IsPresent(sidx) {
			reused = true
			return nil
		}
		for _, op := range c.operators {
			if err := op(t, sidx); err != nil {
				return err
			}
		}
		return c.d.CompletePurge(t, sidx)
	})
	if err != nil {
		return false, fmt.Errorf("failed to complete cleanup of store %s: %w", sidx, err)
	}
	if reused {
		logger.Debug("Store %s was re-created, abandoning its cleanup", sidx)
		return false, nil
	}
	logger.Debug("Store %s cleaned up", sidx)
	return true, nil
}

// Stats contains statistics from a cleanup run.
type Stats struct {
	StartTime time.Time // When the run started
	EndTime   time.Time // When the run ended
	Stores    int       // Number of stores fully purged
	Rows      uint64    // Number of rows deleted
}

// Duration returns the total run duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("stores=%d rows=%d duration=%s", s.Stores, s.Rows, s.Duration())
}
