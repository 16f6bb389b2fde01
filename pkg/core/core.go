// Package core assembles the metadata components from configuration and
// serializes access to them with a single token.
//
// Every mutation runs through Core.Run, which holds the token for the whole
// transaction. Background work (the store cleanup and the sync-status puller)
// takes the same token; the puller releases it while it waits on the network.
package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/config"
	"github.com/marmos91/dittosync/pkg/gc"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/physical"
	"github.com/marmos91/dittosync/pkg/store"
	"github.com/marmos91/dittosync/pkg/syncstatus"
)

// Core owns every metadata component of one process.
type Core struct {
	Token      *Token
	DB         *db.Database
	Hierarchy  *store.Hierarchy
	Dirs       *ds.DirectoryService
	Physical   *physical.FS
	Creator    *store.Creator
	Deleter    *store.Deleter
	Aggregator *syncstatus.Aggregator
	Cleanup    *gc.Collector

	cfg     *config.Config
	bdb     *badger.DB
	metrics *config.MetricsResult
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New opens the database and physical storage described by cfg and wires all
// components. The root store is created on first start.
func New(cfg *config.Config) (*Core, error) {
	kind, err := store.ParseKind(cfg.Stores.Kind)
	if err != nil {
		return nil, err
	}

	bdb, err := config.OpenDatabase(&cfg.Database)
	if err != nil {
		return nil, err
	}

	c, err := build(cfg, bdb, kind)
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return c, nil
}

func build(cfg *config.Config, bdb *badger.DB, kind store.Kind) (*Core, error) {
	m := config.InitializeMetrics(cfg)

	phy, err := config.CreatePhysicalStorage(&cfg.Physical)
	if err != nil {
		return nil, err
	}

	d := db.New(trans.NewManager(bdb))
	rootSID := metadata.RootSIDForUser(cfg.Stores.UserID)
	h, err := store.LoadHierarchy(d, store.NewFactory(d, rootSID))
	if err != nil {
		return nil, err
	}
	if !h.HasRoot() {
		// Only a root store has no parent.
		for _, sidx := range h.All() {
			if len(h.Parents(sidx)) == 0 {
				sid, _ := h.SIDOf(sidx)
				return nil, fmt.Errorf("database belongs to another user: root store %s, expected %s", sid, rootSID)
			}
		}
	}

	dirs := ds.New(d, h, ds.Options{
		PathCacheSize: cfg.Cache.PathSize,
		OACacheSize:   cfg.Cache.OASize,
		Files:         phy,
		Metrics:       m.Metadata,
	})

	c := &Core{
		Token:     &Token{},
		DB:        d,
		Hierarchy: h,
		Dirs:      dirs,
		Physical:  phy,
		cfg:       cfg,
		bdb:       bdb,
		metrics:   m,
	}

	c.Creator = store.NewCreator(d, dirs, h, phy, kind, m.Store)
	c.Deleter = store.NewDeleter(d, dirs, h, phy, store.NoMembers{}, m.Store)
	c.Aggregator = syncstatus.NewAggregator(d, dirs, m.Aggregator)
	c.Cleanup = gc.NewCollector(d, h, gc.Config{
		Enabled:          cfg.Cleanup.Enabled,
		Interval:         cfg.Cleanup.Interval,
		BatchSize:        cfg.Cleanup.BatchSize,
		BatchesPerSecond: cfg.Cleanup.BatchesPerSecond,
		Locker:           c.Token,
	}, m.Store)

	// A recalled store index must not see the device positions of its
	// previous owner.
	forget := func(sidx metadata.SIndex) { c.Aggregator.ForgetStore(sidx) }
	c.Creator.AddOperator(func(_ *trans.Trans, s *store.Store, _ metadata.ResolvedPath) error {
		forget(s.SIndex())
		return nil
	})
	c.Deleter.AddOperator(func(_ *trans.Trans, s *store.Store) error {
		forget(s.SIndex())
		return nil
	})
	c.Cleanup.AddOperator(func(_ *trans.Trans, sidx metadata.SIndex) error {
		forget(sidx)
		return nil
	})

	// Anchors mount stores before anything else observes them.
	dirs.AddListener(store.NewAnchorWatcher(dirs, h, c.Creator, c.Deleter))
	dirs.AddListener(store.NewJournal(h, d))
	dirs.AddListener(c.Aggregator)

	if !h.HasRoot() {
		err := d.TransManager().Run(func(t *trans.Trans) error {
			_, err := c.Creator.CreateRootStore(t)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create root store: %w", err)
		}
		logger.Info("Created root store %s for user %s", rootSID, cfg.Stores.UserID)
	}
	logger.Info("Metadata core ready: %d stores present", len(h.All()))
	return c, nil
}

// Run executes fn in a transaction while holding the token.
func (c *Core) Run(fn func(t *trans.Trans) error) error {
	c.Token.Lock()
	defer c.Token.Unlock()
	return c.DB.TransManager().Run(fn)
}

// Read runs fn while holding the token, outside any transaction.
func (c *Core) Read(fn func() error) error {
	c.Token.Lock()
	defer c.Token.Unlock()
	return fn()
}

// Start launches background work: the store cleanup, the metrics endpoint and,
// when feed is not nil, the sync-status puller.
func (c *Core) Start(ctx context.Context, feed syncstatus.Feed) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.Cleanup.Start()

	if srv := c.metrics.Server; srv != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := srv.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if feed != nil {
		p := syncstatus.NewPuller(c.Aggregator, feed, c.Token, c.Hierarchy)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			p.Run(ctx, c.cfg.Feed.Interval)
		}()
	}
}

// Close stops background work and closes the database.
func (c *Core) Close(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.Cleanup.Stop(ctx); err != nil {
		logger.Warn("Store cleanup did not stop cleanly: %v", err)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Background work did not stop before shutdown deadline")
	}

	return c.bdb.Close()
}
