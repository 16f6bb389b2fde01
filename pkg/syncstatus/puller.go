package syncstatus

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/pkg/errors"
)

// Update reports the devices holding the current version of one object.
type Update struct {
	SID    metadata.SID
	OID    metadata.OID
	InSync []metadata.DID
}

// Batch is the answer of a Feed. Epoch is the server epoch after the batch.
type Batch struct {
	Epoch   uint64
	Updates []Update
}

// Feed is the remote sync-status service.
type Feed interface {
	// Pull returns the updates since epoch. It may block.
	Pull(ctx context.Context, epoch uint64) (*Batch, error)
}

// Token is the core lock. ReleaseDuring runs fn without it and reacquires it
// before returning.
type Token interface {
	sync.Locker
	ReleaseDuring(fn func() error) error
}

// Stores maps store ids to local indices.
type Stores interface {
	SIndexOf(sid metadata.SID) (metadata.SIndex, bool)
}

// Puller applies the remote feed to the aggregator.
type Puller struct {
	agg    *Aggregator
	feed   Feed
	token  Token
	stores Stores
}

func NewPuller(agg *Aggregator, feed Feed, token Token, stores Stores) *Puller {
	return &Puller{agg: agg, feed: feed, token: token, stores: stores}
}

// Epoch returns the last persisted epoch.
func (p *Puller) Epoch() (uint64, error) {
	return p.agg.d.GetEpoch()
}

// PullOnce fetches one batch and applies it. The caller must hold the token;
// it is released while the feed is queried.
func (p *Puller) PullOnce(ctx context.Context) (int, error) {
	epoch, err := p.Epoch()
	if err != nil {
		return 0, err
	}

	var batch *Batch
	err = p.token.ReleaseDuring(func() error {
		var err error
		batch, err = p.feed.Pull(ctx, epoch)
		return err
	})
	if err != nil {
		p.agg.metrics.RecordFeedPull(0, err)
		return 0, errors.Wrap(err, "failed to pull sync status")
	}

	// The token was released: epoch and objects may have changed since.
	current, err := p.Epoch()
	if err != nil {
		return 0, err
	}
	if current != epoch {
		logger.Debug("Sync status epoch moved from %d to %d during pull, dropping batch", epoch, current)
		return 0, nil
	}
	if batch.Epoch < epoch {
		logger.Warn("Sync status epoch regressed from %d to %d, statuses may be stale", epoch, batch.Epoch)
	}

	applied := 0
	err = p.agg.d.TransManager().Run(func(t *trans.Trans) error {
		applied = 0
		for _, u := range batch.Updates {
			ok, err := p.apply(t, u)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		return p.agg.d.SetEpoch(t, batch.Epoch)
	})
	p.agg.metrics.RecordFeedPull(applied, err)
	if err != nil {
		return 0, err
	}
	p.agg.metrics.SetEpoch(batch.Epoch)
	if applied > 0 || batch.Epoch != epoch {
		logger.Debug("Applied %d sync status updates, epoch %d -> %d", applied, epoch, batch.Epoch)
	}
	return applied, nil
}

// apply skips updates for stores or objects that are gone.
func (p *Puller) apply(t *trans.Trans, u Update) (bool, error) {
	sidx, ok := p.stores.SIndexOf(u.SID)
	if !ok {
		return false, nil
	}
	soid := metadata.NewSOID(sidx, u.OID)
	oa, err := p.agg.ds.GetOANullable(soid)
	if err != nil || oa == nil {
		return false, err
	}

	bits := make([]int, 0, len(u.InSync))
	for _, did := range u.InSync {
		i, err := p.agg.RegisterDevice(t, sidx, did)
		if err != nil {
			return false, err
		}
		bits = append(bits, i)
	}
	return true, p.agg.SetRawStatus(t, soid, NewBitVector(bits...))
}

// Run pulls every interval until ctx is done.
func (p *Puller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.token.Lock()
			if _, err := p.PullOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Sync status pull failed: %v", err)
			}
			p.token.Unlock()
		}
	}
}
