package store

import (
	"testing"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/physical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStorage struct {
	created map[metadata.SIndex]string
	deleted []metadata.SIndex
}

func (r *recordingStorage) CreateStore(_ *trans.Trans, sidx metadata.SIndex, path metadata.ResolvedPath) error {
	r.created[sidx] = path.Relative()
	return nil
}

func (r *recordingStorage) DeleteStore(_ *trans.Trans, sidx metadata.SIndex, _ metadata.ResolvedPath) error {
	r.deleted = append(r.deleted, sidx)
	return nil
}

func (r *recordingStorage) DeleteFolderRecursively(*trans.Trans, metadata.ResolvedPath) error {
	return nil
}

func (r *recordingStorage) NewFile(metadata.ResolvedPath, metadata.KIndex) (physical.File, error) {
	return nil, metadata.NewError(metadata.ErrNotFound, "no files")
}

type fixture struct {
	d       *db.Database
	tm      *trans.Manager
	h       *Hierarchy
	ds      *ds.DirectoryService
	phy     *recordingStorage
	creator *Creator
	deleter *Deleter
	root    *Store
}

func newFixture(t *testing.T, kind Kind) *fixture {
	t.Helper()
	bdb, err := db.Open(db.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })

	d := db.New(trans.NewManager(bdb))
	h, err := LoadHierarchy(d, NewFactory(d, metadata.NewSID()))
	require.NoError(t, err)
	dirs := ds.New(d, h, ds.Options{})

	f := &fixture{
		d:   d,
		tm:  d.TransManager(),
		h:   h,
		ds:  dirs,
		phy: &recordingStorage{created: map[metadata.SIndex]string{}},
	}
	f.creator = NewCreator(d, dirs, h, f.phy, kind, nil)
	f.deleter = NewDeleter(d, dirs, h, f.phy, nil, nil)
	dirs.AddListener(NewAnchorWatcher(dirs, h, f.creator, f.deleter))
	dirs.AddListener(NewJournal(h, d))

	f.run(t, func(tx *trans.Trans) error {
		f.root, err = f.creator.CreateRootStore(tx)
		return err
	})
	return f
}

func (f *fixture) run(t *testing.T, fn func(tx *trans.Trans) error) {
	t.Helper()
	require.NoError(t, f.tm.Run(fn))
}

// child creates a store mounted by an anchor named name under the ROOT of parent.
func (f *fixture) child(t *testing.T, parent *Store, name string) (*Store, metadata.SOID) {
	t.Helper()
	sid := metadata.NewSID()
	var s *Store
	f.run(t, func(tx *trans.Trans) error {
		var err error
		s, err = f.creator.CreateChildStore(tx, metadata.RootSOID(parent.SIndex()), name, sid)
		return err
	})
	return s, metadata.NewSOID(parent.SIndex(), metadata.AnchorOID(sid))
}

func (f *fixture) trash(t *testing.T, soid metadata.SOID, name string) {
	t.Helper()
	f.run(t, func(tx *trans.Trans) error {
		return f.ds.SetOAParentAndName(tx, soid, metadata.OIDTrash, name)
	})
}

func (f *fixture) pending(t *testing.T) []metadata.SIndex {
	t.Helper()
	p, err := f.d.PendingPurges()
	require.NoError(t, err)
	return p
}

func TestCreateRootStore(t *testing.T) {
	f := newFixture(t, KindPlain)
	sidx := f.root.SIndex()

	assert.Equal(t, sidx, f.h.Root())
	assert.Equal(t, []metadata.SIndex{sidx}, f.h.All())
	_, hasParent := f.h.Parent(sidx)
	assert.False(t, hasParent)
	assert.Equal(t, "/", f.phy.created[sidx])

	trash, err := f.ds.GetOA(metadata.TrashSOID(sidx))
	require.NoError(t, err)
	assert.Equal(t, ds.TrashName, trash.Name())

	err = f.tm.Run(func(tx *trans.Trans) error {
		_, err := f.creator.CreateRootStore(tx)
		return err
	})
	assert.True(t, metadata.IsAlreadyExists(err))

	reloaded, err := LoadHierarchy(f.d, f.h.factory)
	require.NoError(t, err)
	assert.Equal(t, sidx, reloaded.Root())
	assert.Equal(t, f.h.All(), reloaded.All())
}

func TestCreateChildStore(t *testing.T) {
	f := newFixture(t, KindPlain)
	shared, anchor := f.child(t, f.root, "shared")

	parent, ok := f.h.Parent(shared.SIndex())
	require.True(t, ok)
	assert.Equal(t, f.root.SIndex(), parent)
	assert.Equal(t, []metadata.SIndex{shared.SIndex()}, f.h.Children(f.root.SIndex()))
	assert.Equal(t, "/shared", f.phy.created[shared.SIndex()])

	got, err := f.ds.Resolve(metadata.NewPath(f.root.SID(), "shared"))
	require.NoError(t, err)
	assert.Equal(t, metadata.RootSOID(shared.SIndex()), got)

	oa, err := f.ds.GetOA(anchor)
	require.NoError(t, err)
	assert.True(t, oa.IsAnchor())

	// Nested store paths cross both anchors.
	nested, _ := f.child(t, shared, "inner")
	assert.Equal(t, "/shared/inner", f.phy.created[nested.SIndex()])
}

func TestCreationRolledBackOnAbort(t *testing.T) {
	f := newFixture(t, KindPlain)
	sid := metadata.NewSID()

	tx, err := f.tm.Begin()
	require.NoError(t, err)
	s, err := f.creator.CreateChildStore(tx, metadata.RootSOID(f.root.SIndex()), "shared", sid)
	require.NoError(t, err)
	require.True(t, f.h.IsPresent(s.SIndex()))
	tx.End()

	assert.False(t, f.h.IsPresent(s.SIndex()))
	_, ok := f.h.SIndexOf(sid)
	assert.False(t, ok)
	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.All())

	_, found, err := f.ds.ResolveNullable(metadata.NewPath(f.root.SID(), "shared"))
	require.NoError(t, err)
	assert.False(t, found)

	rows, err := f.d.ListStores()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func indexOf(list []metadata.SIndex, sidx metadata.SIndex) int {
	for i, s := range list {
		if s == sidx {
			return i
		}
	}
	return -1
}

func TestDeletionDescendantsFirst(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")
	b, _ := f.child(t, a, "b")
	c, _ := f.child(t, a, "c")
	d, _ := f.child(t, b, "d")

	f.trash(t, anchorA, "a")

	require.Len(t, f.phy.deleted, 4)
	pos := func(s *Store) int { return indexOf(f.phy.deleted, s.sidx) }
	assert.Less(t, pos(d), pos(b))
	assert.Less(t, pos(b), pos(a))
	assert.Less(t, pos(c), pos(a))

	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.All())
	assert.ElementsMatch(t, []metadata.SIndex{a.sidx, b.sidx, c.sidx, d.sidx}, f.pending(t))

	for _, s := range []*Store{a, b, c, d} {
		assert.True(t, s.IsDeleted())
	}
	assert.Panics(t, func() { a.SIndex() })

	// Removing an already removed link is a no-op.
	f.run(t, func(tx *trans.Trans) error {
		return f.deleter.RemoveParent(tx, a.sidx, f.root.SIndex())
	})
	assert.Len(t, f.phy.deleted, 4)
}

func TestNestedDeletionIsIdempotent(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")
	b, _ := f.child(t, a, "b")
	c, _ := f.child(t, a, "c")

	// Deleting one child deletes its sibling through a nested call.
	f.deleter.AddOperator(func(tx *trans.Trans, s *Store) error {
		if s.SIndex() == c.sidx {
			return f.deleter.RemoveParent(tx, b.sidx, a.sidx)
		}
		return nil
	})

	f.trash(t, anchorA, "a")

	assert.ElementsMatch(t, []metadata.SIndex{a.sidx, b.sidx, c.sidx}, f.phy.deleted)
	assert.Equal(t, a.sidx, f.phy.deleted[len(f.phy.deleted)-1])
	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.All())
}

func TestStoreWithAnotherParentSurvives(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")
	x, _ := f.child(t, f.root, "x")

	// Mount x a second time inside a.
	f.run(t, func(tx *trans.Trans) error {
		return f.ds.CreateOA(tx, a.sidx, metadata.AnchorOID(x.sid), metadata.OIDRoot, "x", metadata.TypeAnchor, 0)
	})
	assert.Equal(t, []metadata.SIndex{f.root.SIndex(), a.sidx}, f.h.Parents(x.sidx))

	f.trash(t, anchorA, "a")

	assert.True(t, f.h.IsPresent(x.sidx))
	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.Parents(x.sidx))
	assert.False(t, f.h.IsPresent(a.sidx))
	assert.NotContains(t, f.phy.deleted, x.sidx)
}

type fixedMembers map[metadata.SIndex]bool

func (m fixedMembers) HasMembers(sidx metadata.SIndex) (bool, error) { return m[sidx], nil }

func TestStoreWithMembersSurvives(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")
	f.deleter.members = fixedMembers{a.sidx: true}

	f.trash(t, anchorA, "a")

	assert.True(t, f.h.IsPresent(a.sidx))
	assert.Empty(t, f.h.Parents(a.sidx))
	assert.Empty(t, f.phy.deleted)
}

func TestExpelAndReadmitAnchor(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")
	sidx := a.sidx
	file := metadata.NewSOID(sidx, metadata.NewOID())
	f.run(t, func(tx *trans.Trans) error {
		return f.ds.CreateOA(tx, sidx, file.OID, metadata.OIDRoot, "f", metadata.TypeFile, 0)
	})

	f.run(t, func(tx *trans.Trans) error { return f.ds.SetExpelled(tx, anchorA, true) })
	assert.False(t, f.h.IsPresent(sidx))
	assert.Equal(t, []metadata.SIndex{sidx}, f.pending(t))

	f.run(t, func(tx *trans.Trans) error { return f.ds.SetExpelled(tx, anchorA, false) })
	again, ok := f.h.Get(sidx)
	require.True(t, ok, "the index is recalled")
	assert.False(t, again.IsDeleted())
	assert.Empty(t, f.pending(t))

	// The old contents are gone; the new store starts empty.
	oa, err := f.ds.GetOANullable(file)
	require.NoError(t, err)
	assert.Nil(t, oa)
	root, err := f.ds.GetOA(metadata.RootSOID(sidx))
	require.NoError(t, err)
	assert.Equal(t, "a", root.Name())
}

func TestMoveAcrossExpelledDirectory(t *testing.T) {
	f := newFixture(t, KindPlain)
	x := metadata.NewSOID(f.root.SIndex(), metadata.NewOID())
	f.run(t, func(tx *trans.Trans) error {
		if err := f.ds.CreateOA(tx, x.SIdx, x.OID, metadata.OIDRoot, "x", metadata.TypeDir, 0); err != nil {
			return err
		}
		return f.ds.SetExpelled(tx, x, true)
	})
	a, anchorA := f.child(t, f.root, "a")
	sidx := a.sidx

	f.run(t, func(tx *trans.Trans) error { return f.ds.SetOAParentAndName(tx, anchorA, x.OID, "a") })
	oa, err := f.ds.GetOA(anchorA)
	require.NoError(t, err)
	require.True(t, oa.IsExpelled())
	assert.False(t, f.h.IsPresent(sidx))
	assert.Equal(t, []metadata.SIndex{sidx}, f.pending(t))

	// Resolution stops at the anchor instead of crossing into the store.
	soid, err := f.ds.Resolve(metadata.NewPath(f.root.SID(), "x", "a"))
	require.NoError(t, err)
	assert.Equal(t, anchorA, soid)

	f.run(t, func(tx *trans.Trans) error { return f.ds.SetOAParentAndName(tx, anchorA, metadata.OIDRoot, "a") })
	again, ok := f.h.Get(sidx)
	require.True(t, ok, "the store is mounted again")
	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.Parents(again.SIndex()))
	assert.Empty(t, f.pending(t))
}

func TestDeletionRolledBackOnAbort(t *testing.T) {
	f := newFixture(t, KindPlain)
	a, anchorA := f.child(t, f.root, "a")

	tx, err := f.tm.Begin()
	require.NoError(t, err)
	require.NoError(t, f.ds.SetOAParentAndName(tx, anchorA, metadata.OIDTrash, "a"))
	require.False(t, f.h.IsPresent(a.sidx))
	tx.End()

	assert.True(t, f.h.IsPresent(a.sidx))
	assert.Equal(t, []metadata.SIndex{f.root.SIndex()}, f.h.Parents(a.sidx))
	assert.False(t, a.IsDeleted())
	assert.Empty(t, f.pending(t))

	got, err := f.ds.Resolve(metadata.NewPath(f.root.SID(), "a"))
	require.NoError(t, err)
	assert.Equal(t, metadata.RootSOID(a.sidx), got)
}

func TestChangeLogStore(t *testing.T) {
	f := newFixture(t, KindChangeLog)
	log, ok := f.root.ChangeLog()
	require.True(t, ok)

	file := metadata.NewSOID(f.root.SIndex(), metadata.NewOID())
	f.run(t, func(tx *trans.Trans) error {
		if err := f.ds.CreateOA(tx, file.SIdx, file.OID, metadata.OIDRoot, "f", metadata.TypeFile, 0); err != nil {
			return err
		}
		if err := f.ds.CreateCA(tx, file, metadata.KIndexMaster); err != nil {
			return err
		}
		return f.ds.SetCA(tx, metadata.SOKID{SOID: file, KIdx: metadata.KIndexMaster}, 3, 4, nil)
	})

	changes, err := log.Changes(1, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeContentCreated, changes[0].Kind)
	assert.Equal(t, ChangeContentModified, changes[1].Kind)
	assert.Equal(t, file.OID, changes[1].OID)
	assert.Equal(t, uint64(2), changes[1].Seq)

	plain := newFixture(t, KindPlain)
	_, ok = plain.root.ChangeLog()
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("changelog")
	require.NoError(t, err)
	assert.Equal(t, KindChangeLog, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindPlain, k)

	_, err = ParseKind("legacy")
	assert.Error(t, err)
}
