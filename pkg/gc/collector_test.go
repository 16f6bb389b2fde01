package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presentSet map[metadata.SIndex]bool

func (p presentSet) IsPresent(sidx metadata.SIndex) bool { return p[sidx] }

func newTestDB(t *testing.T) *db.Database {
	t.Helper()
	bdb, err := db.Open(db.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })
	return db.New(trans.NewManager(bdb))
}

// populate creates a ROOT with n files, each with one branch, and schedules
// the store for purge.
func populate(t *testing.T, d *db.Database, sidx metadata.SIndex, n int) {
	t.Helper()
	require.NoError(t, d.TransManager().Run(func(tx *trans.Trans) error {
		root := metadata.RootSOID(sidx)
		if err := d.InsertObject(tx, root, &db.ObjectRow{Parent: metadata.OIDRoot, Type: metadata.TypeDir}); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			soid := metadata.NewSOID(sidx, metadata.NewOID())
			row := &db.ObjectRow{Parent: metadata.OIDRoot, Name: soid.OID.String(), Type: metadata.TypeFile}
			if err := d.InsertObject(tx, soid, row); err != nil {
				return err
			}
			if err := d.PutContent(tx, soid, metadata.KIndexMaster, db.ContentRow{Length: 1}); err != nil {
				return err
			}
		}
		return d.SchedulePurge(tx, sidx)
	}))
}

func TestRunNowPurgesInBatches(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 5)
	populate(t, d, 4, 1)

	var completed []metadata.SIndex
	c := NewCollector(d, presentSet{}, Config{BatchSize: 2}, nil)
	c.AddOperator(func(_ *trans.Trans, sidx metadata.SIndex) error {
		completed = append(completed, sidx)
		return nil
	})

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Stores)
	// 6 objects, 5 child entries and 5 branches for store 3; 2, 1 and 1 for store 4.
	assert.Equal(t, uint64(20), stats.Rows)
	assert.Equal(t, []metadata.SIndex{3, 4}, completed)

	for _, table := range db.StoreTables {
		n, err := d.CountRows(table, 3)
		require.NoError(t, err)
		assert.Zero(t, n, table.String())
	}
	pending, err := d.PendingPurges()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecreatedStoreIsLeftAlone(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 2)

	c := NewCollector(d, presentSet{3: true}, Config{BatchSize: 10}, nil)
	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Stores)

	n, err := d.CountRows(db.TableObjects, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// recalledAfter reports the store as present from the given call on.
type recalledAfter struct {
	calls, after int
}

func (r *recalledAfter) IsPresent(metadata.SIndex) bool {
	r.calls++
	return r.calls > r.after
}

func TestStoreRecalledBeforeCompletion(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 2)

	// Every table fits in one batch: the store comes back right before the
	// completing transaction.
	presence := &recalledAfter{after: len(db.StoreTables)}
	var completed []metadata.SIndex
	c := NewCollector(d, presence, Config{BatchSize: 1000}, nil)
	c.AddOperator(func(_ *trans.Trans, sidx metadata.SIndex) error {
		completed = append(completed, sidx)
		return nil
	})

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Stores)
	assert.Empty(t, completed)

	pending, err := d.PendingPurges()
	require.NoError(t, err)
	assert.Equal(t, []metadata.SIndex{3}, pending, "the creator of the new incarnation owns the purge row")
}

func TestThrottledRunStopsAtDeadline(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 2)

	// One transaction per second cannot cover every table before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c := NewCollector(d, presentSet{}, Config{BatchesPerSecond: 1}, nil)
	_, err := c.RunNow(ctx)
	require.Error(t, err)

	pending, err := d.PendingPurges()
	require.NoError(t, err)
	assert.Equal(t, []metadata.SIndex{3}, pending)
}

func TestCancelledRun(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCollector(d, presentSet{}, Config{}, nil)
	_, err := c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	pending, err := d.PendingPurges()
	require.NoError(t, err)
	assert.Equal(t, []metadata.SIndex{3}, pending)
}

func TestStartStop(t *testing.T) {
	d := newTestDB(t)
	populate(t, d, 3, 1)

	var mu sync.Mutex
	c := NewCollector(d, presentSet{}, Config{Enabled: true, Interval: 10 * time.Millisecond, Locker: &mu}, nil)
	c.Start()
	c.Start()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		pending, err := d.PendingPurges()
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestConcurrentStartStop(t *testing.T) {
	d := newTestDB(t)
	c := NewCollector(d, presentSet{}, Config{Enabled: true, Interval: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Start()
	}()
	_ = c.Stop(ctx)
	wg.Wait()

	require.NoError(t, c.Stop(ctx))
}
