package ds

import (
	"github.com/marmos91/dittosync/pkg/metadata"
)

// GetOANullable returns the validated attributes of soid, or nil when the
// object does not exist.
func (s *DirectoryService) GetOANullable(soid metadata.SOID) (*metadata.OA, error) {
	oa, _, err := s.cache.OAs.GetOrLoad(soid, s.loadOA)
	return oa, err
}

// GetOA returns the validated attributes of soid or an ErrNotFound error.
func (s *DirectoryService) GetOA(soid metadata.SOID) (*metadata.OA, error) {
	oa, err := s.GetOANullable(soid)
	if err != nil {
		return nil, err
	}
	if oa == nil {
		return nil, metadata.NewError(metadata.ErrNotFound, "object %s not found", soid)
	}
	return oa, nil
}

// GetAliveOA returns the attributes of an object that exists and is not
// expelled, or an ErrNotFound / ErrExpelled error.
func (s *DirectoryService) GetAliveOA(soid metadata.SOID) (*metadata.OA, error) {
	oa, err := s.GetOA(soid)
	if err != nil {
		return nil, err
	}
	if oa.IsExpelled() {
		return nil, metadata.NewError(metadata.ErrExpelled, "object %s is expelled", soid)
	}
	return oa, nil
}

// loadOA reads soid and every uncached ancestor up to the store ROOT, then
// validates them top-down so that each inherits its parent's expulsion.
// Validated ancestors are cached on the way; the caller caches soid itself.
func (s *DirectoryService) loadOA(soid metadata.SOID) (*metadata.OA, bool, error) {
	var chain []*metadata.OA
	parentExpelled := false
	cur := soid
	for {
		if len(chain) > 0 {
			if cached, ok := s.cache.OAs.Get(cur); ok {
				parentExpelled = cached.IsExpelled()
				break
			}
		}

		oa, err := s.readOA(cur)
		if err != nil {
			return nil, false, err
		}
		if oa == nil {
			if len(chain) == 0 {
				return nil, false, nil
			}
			return nil, false, metadata.Invariant("parent %s of %s not found", cur, chain[len(chain)-1].SOID())
		}
		chain = append(chain, oa)

		// ROOT inherits only its own flag.
		if cur.OID.IsRoot() {
			break
		}
		if len(chain) > maxDepth {
			return nil, false, metadata.Invariant("parent chain of %s does not reach ROOT", soid)
		}
		cur = metadata.NewSOID(cur.SIdx, oa.Parent())
	}

	for i := len(chain) - 1; i >= 0; i-- {
		chain[i].Validate(parentExpelled)
		parentExpelled = chain[i].IsExpelled()
		if i > 0 {
			s.cache.OAs.Put(chain[i].SOID(), chain[i])
		}
	}
	return chain[0], true, nil
}

// maxDepth bounds ancestor walks. Exceeding it means the parent chain loops.
const maxDepth = 1 << 16

// readOA builds an unvalidated OA from the rows of soid.
func (s *DirectoryService) readOA(soid metadata.SOID) (*metadata.OA, error) {
	row, err := s.db.GetObject(soid)
	if err != nil || row == nil {
		return nil, err
	}
	if row.Parent == soid.OID && !soid.OID.IsRoot() {
		return nil, metadata.Invariant("object %s is its own parent", soid)
	}

	var cas map[metadata.KIndex]metadata.CA
	if row.Type == metadata.TypeFile {
		contents, err := s.db.GetContents(soid)
		if err != nil {
			return nil, err
		}
		cas = make(map[metadata.KIndex]metadata.CA, len(contents))
		for k, c := range contents {
			cas[k] = metadata.CA{Length: c.Length, MTime: c.MTime, Hash: c.Hash}
		}
	}
	return metadata.NewOA(soid, row.Parent, row.Name, row.Type, row.Flags, row.FID, cas), nil
}

// ResolveNullable resolves a path to the object it names. found is false when
// no such object exists. The empty path names the ROOT of path.SID.
//
// Only paths rooted at the root store are cached: mutations invalidate the
// cache by the root-store form of the paths they touch.
func (s *DirectoryService) ResolveNullable(path metadata.Path) (metadata.SOID, bool, error) {
	if rootSID, ok := s.stores.SIDOf(s.stores.Root()); !ok || path.SID != rootSID {
		return s.loadPath(path)
	}
	return s.cache.Paths.GetOrLoad(path.String(), func(string) (metadata.SOID, bool, error) {
		return s.loadPath(path)
	})
}

func (s *DirectoryService) loadPath(path metadata.Path) (metadata.SOID, bool, error) {
	if path.IsEmpty() {
		sidx, ok := s.stores.SIndexOf(path.SID)
		if !ok {
			return metadata.SOID{}, false, nil
		}
		return metadata.RootSOID(sidx), true, nil
	}
	rp, found, err := s.resolver.Resolve(path)
	if err != nil || !found {
		return metadata.SOID{}, found, err
	}
	soid, _ := rp.SOID()
	return soid, true, nil
}

// Resolve resolves a path or returns an ErrNotFound error.
func (s *DirectoryService) Resolve(path metadata.Path) (metadata.SOID, error) {
	soid, found, err := s.ResolveNullable(path)
	if err != nil {
		return metadata.SOID{}, err
	}
	if !found {
		return metadata.SOID{}, metadata.NewPathError(metadata.ErrNotFound, path, "path not found")
	}
	return soid, nil
}

// ResolveSOIDNullable computes the resolved path of soid. found is false when
// the object, or an anchor needed to reach it, does not exist.
func (s *DirectoryService) ResolveSOIDNullable(soid metadata.SOID) (metadata.ResolvedPath, bool, error) {
	rp, err := s.resolver.PathOf(soid)
	if metadata.IsNotFound(err) {
		return metadata.ResolvedPath{}, false, nil
	}
	if err != nil {
		return metadata.ResolvedPath{}, false, err
	}
	// The path of an anchor whose store is present resolves to the store's
	// ROOT, not to the anchor.
	if _, mounted := s.stores.SIndexOf(metadata.AnchorSID(soid.OID)); !rp.IsEmpty() && !mounted {
		s.cache.Paths.Put(rp.Path.String(), soid)
	}
	return rp, true, nil
}

// ResolveSOID computes the resolved path of soid or returns an ErrNotFound error.
func (s *DirectoryService) ResolveSOID(soid metadata.SOID) (metadata.ResolvedPath, error) {
	rp, found, err := s.ResolveSOIDNullable(soid)
	if err != nil {
		return metadata.ResolvedPath{}, err
	}
	if !found {
		return metadata.ResolvedPath{}, metadata.NewError(metadata.ErrNotFound, "object %s not found", soid)
	}
	return rp, nil
}

// GetSOIDByFID returns the object carrying a physical identifier.
func (s *DirectoryService) GetSOIDByFID(sidx metadata.SIndex, fid []byte) (metadata.SOID, bool, error) {
	oid, ok, err := s.db.GetOIDByFID(sidx, fid)
	if err != nil || !ok {
		return metadata.SOID{}, false, err
	}
	return metadata.NewSOID(sidx, oid), true, nil
}

// ListChildren returns the children of a directory ordered by name.
func (s *DirectoryService) ListChildren(soid metadata.SOID) ([]metadata.OID, error) {
	oa, err := s.GetOA(soid)
	if err != nil {
		return nil, err
	}
	if !oa.IsDir() {
		return nil, metadata.NewError(metadata.ErrNotDirectory, "object %s is a %s", soid, oa.Type())
	}
	return s.db.ListChildren(soid.SIdx, soid.OID)
}

// HasChildren reports whether a directory has at least one child.
func (s *DirectoryService) HasChildren(soid metadata.SOID) (bool, error) {
	oa, err := s.GetOA(soid)
	if err != nil {
		return false, err
	}
	if !oa.IsDir() {
		return false, metadata.NewError(metadata.ErrNotDirectory, "object %s is a %s", soid, oa.Type())
	}
	return s.db.HasChildren(soid.SIdx, soid.OID)
}

// IsTrashOrDeleted reports whether soid is TRASH or lies under it.
func (s *DirectoryService) IsTrashOrDeleted(soid metadata.SOID) (bool, error) {
	cur := soid
	for depth := 0; ; depth++ {
		if cur.OID.IsTrash() {
			return true, nil
		}
		if cur.OID.IsRoot() {
			return false, nil
		}
		if depth > maxDepth {
			return false, metadata.Invariant("parent chain of %s does not reach ROOT", soid)
		}
		oa, err := s.GetOA(cur)
		if err != nil {
			return false, err
		}
		cur = metadata.NewSOID(cur.SIdx, oa.Parent())
	}
}

// IsDeleted reports whether soid lies under TRASH.
func (s *DirectoryService) IsDeleted(soid metadata.SOID) (bool, error) {
	if soid.OID.IsTrash() || soid.OID.IsRoot() {
		return false, nil
	}
	oa, err := s.GetOA(soid)
	if err != nil {
		return false, err
	}
	return s.IsTrashOrDeleted(metadata.NewSOID(soid.SIdx, oa.Parent()))
}
