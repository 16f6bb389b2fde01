// Package store manages the hierarchy of locally present stores and their
// lifecycle: creation under anchors, recursive staged deletion, and the
// per-store kinds (plain and change-log backed).
//
// Every store but the root store is mounted by one or more anchors living in
// parent stores. The hierarchy is kept in memory and mirrored in the store
// table of the database; all mutations happen inside a transaction and are
// reverted in memory if that transaction aborts.
package store

import (
	"sort"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// entry is the in-memory state of one present store.
type entry struct {
	sid     metadata.SID
	kind    Kind
	parents map[metadata.SIndex]struct{}
	handle  *Store
}

func (e *entry) parentList() []metadata.SIndex {
	out := make([]metadata.SIndex, 0, len(e.parents))
	for p := range e.parents {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *entry) clone() *entry {
	c := *e
	c.parents = make(map[metadata.SIndex]struct{}, len(e.parents))
	for p := range e.parents {
		c.parents[p] = struct{}{}
	}
	return &c
}

// Hierarchy is the set of locally present stores and their parent links.
//
// It implements resolver.Stores. Not safe for concurrent use; callers hold
// the core token.
type Hierarchy struct {
	d       *db.Database
	factory *Factory
	root    metadata.SIndex
	stores  map[metadata.SIndex]*entry
	bySID   map[metadata.SID]metadata.SIndex
}

// LoadHierarchy reads the store table.
func LoadHierarchy(d *db.Database, factory *Factory) (*Hierarchy, error) {
	rows, err := d.ListStores()
	if err != nil {
		return nil, err
	}

	h := &Hierarchy{
		d:       d,
		factory: factory,
		stores:  make(map[metadata.SIndex]*entry, len(rows)),
		bySID:   make(map[metadata.SID]metadata.SIndex, len(rows)),
	}
	for sidx, row := range rows {
		sid, ok, err := d.GetSID(sidx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, metadata.Invariant("store %s has no SID mapping", sidx)
		}
		kind := Kind(row.Kind)
		if !kind.Valid() {
			return nil, metadata.Invariant("store %s has unknown kind %d", sidx, row.Kind)
		}
		e := &entry{sid: sid, kind: kind, parents: make(map[metadata.SIndex]struct{}, len(row.Parents))}
		for _, p := range row.Parents {
			e.parents[p] = struct{}{}
		}
		e.handle = factory.New(sidx, sid, kind)
		h.stores[sidx] = e
		h.bySID[sid] = sidx
		if sid == factory.rootSID {
			h.root = sidx
		}
	}
	return h, nil
}

// Root returns the index of the root store, or 0 before it is created.
func (h *Hierarchy) Root() metadata.SIndex {
	return h.root
}

// HasRoot reports whether the root store exists.
func (h *Hierarchy) HasRoot() bool {
	return h.root != 0
}

// RootSID returns the identifier of the root store.
func (h *Hierarchy) RootSID() metadata.SID {
	return h.factory.rootSID
}

// IsPresent reports whether sidx is a locally present store.
func (h *Hierarchy) IsPresent(sidx metadata.SIndex) bool {
	_, ok := h.stores[sidx]
	return ok
}

// Get returns the handle of a present store.
func (h *Hierarchy) Get(sidx metadata.SIndex) (*Store, bool) {
	e, ok := h.stores[sidx]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Parents returns the parents of sidx in ascending order.
func (h *Hierarchy) Parents(sidx metadata.SIndex) []metadata.SIndex {
	e, ok := h.stores[sidx]
	if !ok {
		return nil
	}
	return e.parentList()
}

// Parent returns the parent through which paths into sidx are built: the
// lowest parent index. ok is false for the root store and orphaned stores.
func (h *Hierarchy) Parent(sidx metadata.SIndex) (metadata.SIndex, bool) {
	parents := h.Parents(sidx)
	if len(parents) == 0 {
		return 0, false
	}
	return parents[0], true
}

// Children returns the stores having sidx as a parent, in ascending order.
func (h *Hierarchy) Children(sidx metadata.SIndex) []metadata.SIndex {
	var out []metadata.SIndex
	for child, e := range h.stores {
		if _, ok := e.parents[sidx]; ok {
			out = append(out, child)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// All returns every present store in ascending order.
func (h *Hierarchy) All() []metadata.SIndex {
	out := make([]metadata.SIndex, 0, len(h.stores))
	for sidx := range h.stores {
		out = append(out, sidx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SIDOf returns the identifier of a present store.
func (h *Hierarchy) SIDOf(sidx metadata.SIndex) (metadata.SID, bool) {
	e, ok := h.stores[sidx]
	if !ok {
		return metadata.SID{}, false
	}
	return e.sid, true
}

// SIndexOf returns the index of a present store.
func (h *Hierarchy) SIndexOf(sid metadata.SID) (metadata.SIndex, bool) {
	sidx, ok := h.bySID[sid]
	return sidx, ok
}

// add registers a new store.
func (h *Hierarchy) add(t *trans.Trans, sidx metadata.SIndex, sid metadata.SID, kind Kind, parent metadata.SIndex, hasParent bool) (*Store, error) {
	if h.IsPresent(sidx) {
		return nil, metadata.Invariant("store %s is already present", sidx)
	}
	e := &entry{sid: sid, kind: kind, parents: map[metadata.SIndex]struct{}{}}
	if hasParent {
		e.parents[parent] = struct{}{}
	}
	e.handle = h.factory.New(sidx, sid, kind)
	if err := h.persist(t, sidx, e); err != nil {
		return nil, err
	}

	h.stores[sidx] = e
	h.bySID[sid] = sidx
	isRoot := sid == h.factory.rootSID
	if isRoot {
		h.root = sidx
	}
	t.OnAbort(func() {
		delete(h.stores, sidx)
		delete(h.bySID, sid)
		if isRoot {
			h.root = 0
		}
	})
	return e.handle, nil
}

// addParent links an existing store under one more parent.
func (h *Hierarchy) addParent(t *trans.Trans, sidx, parent metadata.SIndex) error {
	e, ok := h.stores[sidx]
	if !ok {
		return metadata.NewError(metadata.ErrNotFound, "store %s is not present", sidx)
	}
	if _, ok := e.parents[parent]; ok {
		return nil
	}
	return h.update(t, sidx, func(e *entry) { e.parents[parent] = struct{}{} })
}

// removeParent unlinks a store from one parent.
func (h *Hierarchy) removeParent(t *trans.Trans, sidx, parent metadata.SIndex) error {
	e, ok := h.stores[sidx]
	if !ok {
		return nil
	}
	if _, ok := e.parents[parent]; !ok {
		return nil
	}
	return h.update(t, sidx, func(e *entry) { delete(e.parents, parent) })
}

func (h *Hierarchy) update(t *trans.Trans, sidx metadata.SIndex, fn func(e *entry)) error {
	old := h.stores[sidx]
	e := old.clone()
	fn(e)
	if err := h.persist(t, sidx, e); err != nil {
		return err
	}
	h.stores[sidx] = e
	t.OnAbort(func() { h.stores[sidx] = old })
	return nil
}

// remove drops a store from the hierarchy and its row from the database. The
// store handle becomes unusable once the transaction commits.
func (h *Hierarchy) remove(t *trans.Trans, sidx metadata.SIndex) error {
	e, ok := h.stores[sidx]
	if !ok {
		return nil
	}
	if err := h.d.DeleteStore(t, sidx); err != nil {
		return err
	}

	delete(h.stores, sidx)
	delete(h.bySID, e.sid)
	wasRoot := h.root == sidx
	if wasRoot {
		h.root = 0
	}
	t.OnAbort(func() {
		h.stores[sidx] = e
		h.bySID[e.sid] = sidx
		if wasRoot {
			h.root = sidx
		}
	})
	t.OnCommitted(e.handle.markDeleted)
	return nil
}

func (h *Hierarchy) persist(t *trans.Trans, sidx metadata.SIndex, e *entry) error {
	return h.d.PutStore(t, sidx, &db.StoreRow{Kind: int(e.kind), Parents: e.parentList()})
}
