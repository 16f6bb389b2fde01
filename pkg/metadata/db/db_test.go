package db

import (
	"testing"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	bdb, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })
	return New(trans.NewManager(bdb))
}

func run(t *testing.T, d *Database, fn func(tx *trans.Trans) error) {
	t.Helper()
	require.NoError(t, d.TransManager().Run(fn))
}

func TestObjectsAndChildren(t *testing.T) {
	d := newTestDatabase(t)
	const sidx metadata.SIndex = 1
	dir := metadata.NewOID()
	file := metadata.NewOID()

	run(t, d, func(tx *trans.Trans) error {
		if err := d.InsertObject(tx, metadata.RootSOID(sidx), &ObjectRow{Type: metadata.TypeDir}); err != nil {
			return err
		}
		if err := d.InsertObject(tx, metadata.NewSOID(sidx, dir), &ObjectRow{Parent: metadata.OIDRoot, Name: "docs", Type: metadata.TypeDir}); err != nil {
			return err
		}
		return d.InsertObject(tx, metadata.NewSOID(sidx, file), &ObjectRow{Parent: dir, Name: "a.txt", Type: metadata.TypeFile, FID: []byte{1, 2, 3}})
	})

	t.Run("GetChild", func(t *testing.T) {
		oid, ok, err := d.GetChild(sidx, dir, "a.txt")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, file, oid)

		_, ok, err = d.GetChild(sidx, dir, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RootIsNotItsOwnChild", func(t *testing.T) {
		children, err := d.ListChildren(sidx, metadata.OIDRoot)
		require.NoError(t, err)
		assert.Equal(t, []metadata.OID{dir}, children)
	})

	t.Run("FIDIndex", func(t *testing.T) {
		oid, ok, err := d.GetOIDByFID(sidx, []byte{1, 2, 3})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, file, oid)
	})

	t.Run("OtherStoreIsIsolated", func(t *testing.T) {
		has, err := d.HasChildren(sidx+1, dir)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("Move", func(t *testing.T) {
		run(t, d, func(tx *trans.Trans) error {
			return d.SetParentAndName(tx, metadata.NewSOID(sidx, file), metadata.OIDRoot, "b.txt")
		})
		names, err := d.ChildNames(sidx, metadata.OIDRoot)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.txt", "docs"}, names)

		has, err := d.HasChildren(sidx, dir)
		require.NoError(t, err)
		assert.False(t, has)
	})
}

func TestContentsAndDelete(t *testing.T) {
	d := newTestDatabase(t)
	soid := metadata.NewSOID(1, metadata.NewOID())

	run(t, d, func(tx *trans.Trans) error {
		if err := d.InsertObject(tx, soid, &ObjectRow{Parent: metadata.OIDRoot, Name: "f", Type: metadata.TypeFile}); err != nil {
			return err
		}
		if err := d.PutContent(tx, soid, metadata.KIndexMaster, ContentRow{Length: 10, MTime: 5}); err != nil {
			return err
		}
		return d.PutContent(tx, soid, 2, ContentRow{Length: 3, MTime: 6, Hash: []byte{0xab}})
	})

	cas, err := d.GetContents(soid)
	require.NoError(t, err)
	require.Len(t, cas, 2)
	assert.Equal(t, int64(10), cas[metadata.KIndexMaster].Length)
	assert.Equal(t, []byte{0xab}, cas[2].Hash)

	run(t, d, func(tx *trans.Trans) error { return d.DeleteObject(tx, soid) })

	row, err := d.GetObject(soid)
	require.NoError(t, err)
	assert.Nil(t, row)
	cas, err = d.GetContents(soid)
	require.NoError(t, err)
	assert.Empty(t, cas)
}

func TestReplaceOIDRekeysChildren(t *testing.T) {
	d := newTestDatabase(t)
	const sidx metadata.SIndex = 3
	oldDir, newDir, child := metadata.NewOID(), metadata.NewOID(), metadata.NewOID()

	run(t, d, func(tx *trans.Trans) error {
		if err := d.InsertObject(tx, metadata.NewSOID(sidx, oldDir), &ObjectRow{Parent: metadata.OIDRoot, Name: "d", Type: metadata.TypeDir}); err != nil {
			return err
		}
		if err := d.InsertObject(tx, metadata.NewSOID(sidx, child), &ObjectRow{Parent: oldDir, Name: "c", Type: metadata.TypeFile}); err != nil {
			return err
		}
		if err := d.SetSyncStatus(tx, metadata.NewSOID(sidx, oldDir), []byte{7}); err != nil {
			return err
		}
		return d.ReplaceOID(tx, sidx, oldDir, newDir)
	})

	oid, ok, err := d.GetChild(sidx, metadata.OIDRoot, "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, newDir, oid)

	row, err := d.GetObject(metadata.NewSOID(sidx, child))
	require.NoError(t, err)
	assert.Equal(t, newDir, row.Parent)

	status, err := d.GetSyncStatus(metadata.NewSOID(sidx, newDir))
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, status)

	has, err := d.HasObject(metadata.NewSOID(sidx, oldDir))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSIndexAllocationIsPermanent(t *testing.T) {
	d := newTestDatabase(t)
	a, b := metadata.NewSID(), metadata.NewSID()

	var sa, sb, again metadata.SIndex
	run(t, d, func(tx *trans.Trans) (err error) {
		if sa, err = d.AllocateSIndex(tx, a); err != nil {
			return err
		}
		if sb, err = d.AllocateSIndex(tx, b); err != nil {
			return err
		}
		again, err = d.AllocateSIndex(tx, a)
		return err
	})

	assert.Equal(t, metadata.SIndex(1), sa)
	assert.Equal(t, metadata.SIndex(2), sb)
	assert.Equal(t, sa, again)

	sid, ok, err := d.GetSID(sb)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, sid)
}

func TestStoreRows(t *testing.T) {
	d := newTestDatabase(t)

	run(t, d, func(tx *trans.Trans) error {
		if err := d.PutStore(tx, 1, &StoreRow{Kind: 0}); err != nil {
			return err
		}
		return d.PutStore(tx, 2, &StoreRow{Kind: 1, Parents: []metadata.SIndex{1}})
	})

	stores, err := d.ListStores()
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, []metadata.SIndex{1}, stores[2].Parents)

	run(t, d, func(tx *trans.Trans) error { return d.DeleteStore(tx, 2) })
	row, err := d.GetStore(2)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAggregateRows(t *testing.T) {
	d := newTestDatabase(t)
	soid := metadata.RootSOID(1)

	run(t, d, func(tx *trans.Trans) error {
		return d.SetAggregate(tx, soid, &AggregateRow{Count: 3, Counters: []int64{3, 0, 2}})
	})
	row, err := d.GetAggregate(soid)
	require.NoError(t, err)
	assert.Equal(t, &AggregateRow{Count: 3, Counters: []int64{3, 0, 2}}, row)

	run(t, d, func(tx *trans.Trans) error {
		return d.SetAggregate(tx, soid, &AggregateRow{Counters: []int64{0, 0}})
	})
	row, err = d.GetAggregate(soid)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestChangeLog(t *testing.T) {
	d := newTestDatabase(t)
	oid := metadata.NewOID()

	run(t, d, func(tx *trans.Trans) error {
		for _, kind := range []string{"created", "content_created", "moved"} {
			if _, err := d.AppendChange(tx, 1, ChangeRow{OID: oid, Kind: kind}); err != nil {
				return err
			}
		}
		return nil
	})

	changes, err := d.ListChanges(1, 2, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, uint64(2), changes[0].Seq)
	assert.Equal(t, "moved", changes[1].Kind)
}

func TestPurgeTableInBatches(t *testing.T) {
	d := newTestDatabase(t)
	const sidx metadata.SIndex = 5

	run(t, d, func(tx *trans.Trans) error {
		for i := 0; i < 5; i++ {
			soid := metadata.NewSOID(sidx, metadata.NewOID())
			if err := d.InsertObject(tx, soid, &ObjectRow{Parent: metadata.OIDRoot, Name: string(rune('a' + i)), Type: metadata.TypeFile}); err != nil {
				return err
			}
		}
		// A neighbouring store must survive the purge.
		return d.InsertObject(tx, metadata.NewSOID(sidx+1, metadata.NewOID()), &ObjectRow{Parent: metadata.OIDRoot, Name: "keep", Type: metadata.TypeFile})
	})

	var deleted []int
	for {
		var n int
		run(t, d, func(tx *trans.Trans) (err error) {
			n, err = d.PurgeTable(tx, TableObjects, sidx, 2)
			return err
		})
		deleted = append(deleted, n)
		if n < 2 {
			break
		}
	}
	assert.Equal(t, []int{2, 2, 1}, deleted)

	n, err := d.CountRows(TableObjects, sidx+1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPendingPurges(t *testing.T) {
	d := newTestDatabase(t)

	run(t, d, func(tx *trans.Trans) error {
		if err := d.SchedulePurge(tx, 4); err != nil {
			return err
		}
		return d.SchedulePurge(tx, 2)
	})
	pending, err := d.PendingPurges()
	require.NoError(t, err)
	assert.Equal(t, []metadata.SIndex{2, 4}, pending)

	run(t, d, func(tx *trans.Trans) error { return d.CompletePurge(tx, 2) })
	pending, err = d.PendingPurges()
	require.NoError(t, err)
	assert.Equal(t, []metadata.SIndex{4}, pending)
}

func TestReadsSeeOpenTransaction(t *testing.T) {
	d := newTestDatabase(t)
	soid := metadata.NewSOID(1, metadata.NewOID())

	tx, err := d.TransManager().Begin()
	require.NoError(t, err)
	require.NoError(t, d.InsertObject(tx, soid, &ObjectRow{Parent: metadata.OIDRoot, Name: "x", Type: metadata.TypeDir}))

	has, err := d.HasObject(soid)
	require.NoError(t, err)
	assert.True(t, has)

	tx.End()
	has, err = d.HasObject(soid)
	require.NoError(t, err)
	assert.False(t, has)
}
