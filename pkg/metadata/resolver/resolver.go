// Package resolver converts between SOIDs and store-spanning paths.
//
// A Resolver reads live rows on every call and never memoizes: the directory
// service is the only component allowed to cache resolution results. Walks are
// iterative so that deep trees cannot exhaust the stack.
package resolver

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
)

// maxDepth bounds parent-chain walks. Exceeding it means the chain loops.
const maxDepth = 1 << 16

// Source provides raw object rows.
type Source interface {
	GetObject(soid metadata.SOID) (*db.ObjectRow, error)
	GetChild(sidx metadata.SIndex, parent metadata.OID, name string) (metadata.OID, bool, error)
}

// Stores provides the view of locally present stores needed to cross anchors.
type Stores interface {
	// Root returns the index of the process-wide root store.
	Root() metadata.SIndex

	// Parent returns the store whose anchor is used to build paths into sidx.
	Parent(sidx metadata.SIndex) (metadata.SIndex, bool)

	// SIDOf returns the identifier of a present store.
	SIDOf(sidx metadata.SIndex) (metadata.SID, bool)

	// SIndexOf returns the index of a present store.
	SIndexOf(sid metadata.SID) (metadata.SIndex, bool)
}

// Resolver performs anchor-crossing resolution over live state.
type Resolver struct {
	src    Source
	stores Stores
}

// New creates a Resolver.
func New(src Source, stores Stores) *Resolver {
	return &Resolver{src: src, stores: stores}
}

// PathOf computes the resolved path of soid, rooted at the root store.
//
// The walk climbs parent pointers up to the store's ROOT, then continues from
// the store's anchor in its parent store. The ROOT of a non-root store takes
// the name of its anchor, and its SOID stands for that shared segment.
func (r *Resolver) PathOf(soid metadata.SOID) (metadata.ResolvedPath, error) {
	rootSID, ok := r.stores.SIDOf(r.stores.Root())
	if !ok {
		return metadata.ResolvedPath{}, metadata.Invariant("root store %s has no sid", r.stores.Root())
	}

	var names []string
	var soids []metadata.SOID
	cur := soid
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return metadata.ResolvedPath{}, metadata.Invariant("parent chain of %s does not reach the root store", soid)
		}

		if cur.OID.IsRoot() {
			if cur.SIdx == r.stores.Root() {
				break
			}
			anchor, row, err := r.anchorOf(cur.SIdx)
			if err != nil {
				return metadata.ResolvedPath{}, err
			}
			names = append(names, row.Name)
			soids = append(soids, cur)
			cur = metadata.NewSOID(anchor.SIdx, row.Parent)
			continue
		}

		row, err := r.src.GetObject(cur)
		if err != nil {
			return metadata.ResolvedPath{}, err
		}
		if row == nil {
			return metadata.ResolvedPath{}, metadata.NewError(metadata.ErrNotFound, "object %s not found", cur)
		}
		if row.Parent == cur.OID {
			return metadata.ResolvedPath{}, metadata.Invariant("object %s is its own parent", cur)
		}
		names = append(names, row.Name)
		soids = append(soids, cur)
		cur = metadata.NewSOID(cur.SIdx, row.Parent)
	}

	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
		soids[i], soids[j] = soids[j], soids[i]
	}
	return metadata.NewResolvedPath(metadata.Path{SID: rootSID, Elements: names}, soids), nil
}

// anchorOf locates the anchor mounting sidx in its parent store.
func (r *Resolver) anchorOf(sidx metadata.SIndex) (metadata.SOID, *db.ObjectRow, error) {
	parent, ok := r.stores.Parent(sidx)
	if !ok {
		return metadata.SOID{}, nil, metadata.NewError(metadata.ErrNotFound, "store %s has no parent", sidx)
	}
	sid, ok := r.stores.SIDOf(sidx)
	if !ok {
		return metadata.SOID{}, nil, metadata.NewError(metadata.ErrNotFound, "store %s is not present", sidx)
	}
	anchor := metadata.NewSOID(parent, metadata.AnchorOID(sid))
	row, err := r.src.GetObject(anchor)
	if err != nil {
		return metadata.SOID{}, nil, err
	}
	if row == nil {
		return metadata.SOID{}, nil, metadata.NewError(metadata.ErrNotFound, "anchor %s of store %s not found", anchor, sidx)
	}
	if row.Type != metadata.TypeAnchor {
		return metadata.SOID{}, nil, metadata.Invariant("object %s mounting store %s is a %s", anchor, sidx, row.Type)
	}
	return anchor, row, nil
}

// Resolve resolves a path rooted at any present store. found is false when
// some component does not exist.
func (r *Resolver) Resolve(path metadata.Path) (metadata.ResolvedPath, bool, error) {
	sidx, ok := r.stores.SIndexOf(path.SID)
	if !ok {
		return metadata.ResolvedPath{}, false, nil
	}
	soids, found, err := r.ResolveFrom(metadata.RootSOID(sidx), path.Elements)
	if err != nil || !found {
		return metadata.ResolvedPath{}, found, err
	}
	return metadata.NewResolvedPath(path, soids), true, nil
}

// ResolveFrom walks elements starting at from and returns the SOID of every
// prefix. Whenever a component names an anchor whose store is present, the
// walk continues from that store's ROOT, which also stands for the component.
func (r *Resolver) ResolveFrom(from metadata.SOID, elements []string) ([]metadata.SOID, bool, error) {
	soids := make([]metadata.SOID, 0, len(elements))
	cur := from
	for _, name := range elements {
		oid, ok, err := r.src.GetChild(cur.SIdx, cur.OID, name)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}

		next := metadata.NewSOID(cur.SIdx, oid)
		row, err := r.src.GetObject(next)
		if err != nil {
			return nil, false, err
		}
		if row == nil {
			return nil, false, metadata.Invariant("child %q of %s indexed without an object row", name, cur)
		}
		if row.Type == metadata.TypeAnchor {
			if target, present := r.stores.SIndexOf(metadata.AnchorSID(oid)); present {
				next = metadata.RootSOID(target)
			}
		}
		soids = append(soids, next)
		cur = next
	}
	return soids, true, nil
}
