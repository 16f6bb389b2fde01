package ds

import (
	"strings"
	"time"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

// CreateOA creates an object under a directory.
//
// ROOT and TRASH are created by the store creator through this method too:
// ROOT is self-parented and takes the name of its anchor, TRASH lives under
// ROOT. Neither fires a notification, and nothing created under TRASH does.
//
// Returns:
//   - ErrNotFound if the parent does not exist
//   - ErrNotDirectory if the parent is not a directory
//   - ErrAlreadyExists if the parent has a child with that name
//   - ErrInvariant if the OID is already in use
func (s *DirectoryService) CreateOA(t *trans.Trans, sidx metadata.SIndex, oid, parent metadata.OID,
	name string, typ metadata.ObjectType, flags metadata.Flags) (err error) {
	defer s.record("CreateOA", time.Now(), &err)

	soid := metadata.NewSOID(sidx, oid)
	if !typ.Valid() {
		return metadata.NewError(metadata.ErrInvalidArgument, "invalid object type %d", int(typ))
	}
	exists, err := s.db.HasObject(soid)
	if err != nil {
		return err
	}
	if exists {
		return metadata.Invariant("object %s already exists", soid)
	}

	switch {
	case oid.IsRoot():
		if parent != metadata.OIDRoot || typ != metadata.TypeDir {
			return metadata.Invariant("ROOT of %s must be a self-parented directory", sidx)
		}
		if err := s.db.InsertObject(t, soid, &db.ObjectRow{Parent: parent, Name: name, Type: typ}); err != nil {
			return err
		}
		// A new ROOT can change what an anchor path resolves to.
		s.cache.InvalidateAll()
		return nil

	case oid.IsTrash():
		if parent != metadata.OIDRoot || typ != metadata.TypeDir {
			return metadata.Invariant("TRASH of %s must be a directory under ROOT", sidx)
		}

	default:
		if !validName(name) {
			return metadata.NewError(metadata.ErrInvalidArgument, "invalid name %q", name)
		}
		if parent == oid {
			return metadata.Invariant("object %s cannot be its own parent", soid)
		}
	}

	parentSOID := metadata.NewSOID(sidx, parent)
	poa, err := s.GetOANullable(parentSOID)
	if err != nil {
		return err
	}
	if poa == nil {
		return metadata.NewError(metadata.ErrNotFound, "parent %s not found", parentSOID)
	}
	if !poa.IsDir() {
		return metadata.NewError(metadata.ErrNotDirectory, "parent %s is a %s", parentSOID, poa.Type())
	}
	if _, taken, err := s.db.GetChild(sidx, parent, name); err != nil {
		return err
	} else if taken {
		return metadata.NewError(metadata.ErrAlreadyExists, "%q already exists under %s", name, parentSOID)
	}

	row := &db.ObjectRow{Parent: parent, Name: name, Type: typ, Flags: flags.Persistent()}
	if err := s.db.InsertObject(t, soid, row); err != nil {
		return err
	}
	s.cache.OAs.Invalidate(soid)
	if oid.IsTrash() {
		return nil
	}

	deleted, err := s.IsTrashOrDeleted(parentSOID)
	if err != nil || deleted {
		return err
	}

	path, err := s.ResolveSOID(soid)
	if err != nil {
		return err
	}
	s.cache.Paths.Invalidate(path.Path.String())
	return s.notify(kindCreated, func(l metadata.Listener) error {
		return l.ObjectCreated(t, soid, parent, path)
	})
}

// fileOA fetches an existing file.
func (s *DirectoryService) fileOA(soid metadata.SOID) (*metadata.OA, error) {
	oa, err := s.GetOA(soid)
	if err != nil {
		return nil, err
	}
	if !oa.IsFile() {
		return nil, metadata.NewError(metadata.ErrNotExpectedType, "object %s is a %s, not a file", soid, oa.Type())
	}
	return oa, nil
}

// CreateCA adds an empty content branch to a file. The branch must not exist.
func (s *DirectoryService) CreateCA(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex) (err error) {
	defer s.record("CreateCA", time.Now(), &err)

	oa, err := s.fileOA(soid)
	if err != nil {
		return err
	}
	if oa.CARaw(kidx) != nil {
		return metadata.Invariant("branch %d of %s already exists", kidx, soid)
	}
	if err := s.db.PutContent(t, soid, kidx, db.ContentRow{}); err != nil {
		return err
	}
	return s.contentChanged(t, soid, kidx, kindContentCreated)
}

// DeleteCA removes a content branch. The branch must exist.
func (s *DirectoryService) DeleteCA(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex) (err error) {
	defer s.record("DeleteCA", time.Now(), &err)

	oa, err := s.fileOA(soid)
	if err != nil {
		return err
	}
	if oa.CARaw(kidx) == nil {
		return metadata.Invariant("branch %d of %s does not exist", kidx, soid)
	}
	if err := s.db.DeleteContent(t, soid, kidx); err != nil {
		return err
	}
	return s.contentChanged(t, soid, kidx, kindContentDeleted)
}

// SetCA updates the length, modification time and hash of an existing branch.
func (s *DirectoryService) SetCA(t *trans.Trans, sokid metadata.SOKID, length, mtime int64, hash metadata.ContentHash) (err error) {
	defer s.record("SetCA", time.Now(), &err)

	oa, err := s.fileOA(sokid.SOID)
	if err != nil {
		return err
	}
	if oa.CARaw(sokid.KIdx) == nil {
		return metadata.Invariant("branch %s does not exist", sokid)
	}
	row := db.ContentRow{Length: length, MTime: mtime, Hash: hash}
	if err := s.db.PutContent(t, sokid.SOID, sokid.KIdx, row); err != nil {
		return err
	}
	return s.contentChanged(t, sokid.SOID, sokid.KIdx, kindContentModified)
}

// SetCAHash records the hash of an existing branch. Hashes are derived data,
// so no notification fires.
func (s *DirectoryService) SetCAHash(t *trans.Trans, sokid metadata.SOKID, hash metadata.ContentHash) (err error) {
	defer s.record("SetCAHash", time.Now(), &err)

	oa, err := s.fileOA(sokid.SOID)
	if err != nil {
		return err
	}
	ca := oa.CARaw(sokid.KIdx)
	if ca == nil {
		return metadata.Invariant("branch %s does not exist", sokid)
	}
	row := db.ContentRow{Length: ca.Length, MTime: ca.MTime, Hash: hash}
	if err := s.db.PutContent(t, sokid.SOID, sokid.KIdx, row); err != nil {
		return err
	}
	s.cache.OAs.Invalidate(sokid.SOID)
	return nil
}

// ComputeHashIfMissing returns the hash of a branch, computing it from the
// physical file and persisting it when absent.
//
// Returns ErrExpelled for expelled files, which report no content.
func (s *DirectoryService) ComputeHashIfMissing(t *trans.Trans, sokid metadata.SOKID) (metadata.ContentHash, error) {
	oa, err := s.fileOA(sokid.SOID)
	if err != nil {
		return nil, err
	}
	if oa.IsExpelled() {
		return nil, metadata.NewError(metadata.ErrExpelled, "object %s is expelled", sokid.SOID)
	}
	ca := oa.CA(sokid.KIdx)
	if ca == nil {
		return nil, metadata.NewError(metadata.ErrNotFound, "branch %s not found", sokid)
	}
	if ca.Hash != nil {
		return ca.Hash, nil
	}
	if s.files == nil {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, "no physical storage to hash %s", sokid)
	}

	path, err := s.ResolveSOID(sokid.SOID)
	if err != nil {
		return nil, err
	}
	f, err := s.files.NewFile(path, sokid.KIdx)
	if err != nil {
		return nil, err
	}
	hash, err := f.Hash()
	if err != nil {
		return nil, err
	}
	if err := s.SetCAHash(t, sokid, hash); err != nil {
		return nil, err
	}
	return hash, nil
}

// contentChanged invalidates the file's OA and fires a content notification
// unless the file is deleted.
func (s *DirectoryService) contentChanged(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex, kind string) error {
	s.cache.OAs.Invalidate(soid)

	deleted, err := s.IsDeleted(soid)
	if err != nil || deleted {
		return err
	}
	path, err := s.ResolveSOID(soid)
	if err != nil {
		return err
	}

	sokid := metadata.SOKID{SOID: soid, KIdx: kidx}
	return s.notify(kind, func(l metadata.Listener) error {
		switch kind {
		case kindContentCreated:
			return l.ObjectContentCreated(t, sokid, path)
		case kindContentDeleted:
			return l.ObjectContentDeleted(t, sokid, path)
		default:
			return l.ObjectContentModified(t, sokid, path)
		}
	})
}

// SetOAParentAndName moves and/or renames an object.
//
// The move is classified by the trash ancestry of the old and new parent:
// into the trash fires ObjectDeleted, out of it ObjectCreated, between two
// live parents ObjectMoved, and within the trash nothing. Renaming an anchor
// renames the ROOT of its store.
//
// Returns:
//   - ErrInvalidArgument for ROOT, TRASH or a move into the object's own subtree
//   - ErrNotFound if the object or the new parent does not exist
//   - ErrNotDirectory if the new parent is not a directory
//   - ErrAlreadyExists if the name is taken under the new parent
func (s *DirectoryService) SetOAParentAndName(t *trans.Trans, soid metadata.SOID, parent metadata.OID, name string) (err error) {
	defer s.record("SetOAParentAndName", time.Now(), &err)

	if soid.OID.IsReserved() {
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot move %s", soid)
	}
	if !validName(name) {
		return metadata.NewError(metadata.ErrInvalidArgument, "invalid name %q", name)
	}
	oa, err := s.GetOA(soid)
	if err != nil {
		return err
	}
	if oa.Parent() == parent && oa.Name() == name {
		return nil
	}

	parentSOID := metadata.NewSOID(soid.SIdx, parent)
	poa, err := s.GetOA(parentSOID)
	if err != nil {
		return err
	}
	if !poa.IsDir() {
		return metadata.NewError(metadata.ErrNotDirectory, "parent %s is a %s", parentSOID, poa.Type())
	}
	if other, taken, err := s.db.GetChild(soid.SIdx, parent, name); err != nil {
		return err
	} else if taken && other != soid.OID {
		return metadata.NewError(metadata.ErrAlreadyExists, "%q already exists under %s", name, parentSOID)
	}
	if oa.IsDir() {
		if err := s.checkNotUnder(parentSOID, soid); err != nil {
			return err
		}
	}

	oldParentSOID := metadata.NewSOID(soid.SIdx, oa.Parent())
	wasDeleted, err := s.IsTrashOrDeleted(oldParentSOID)
	if err != nil {
		return err
	}
	willBeDeleted, err := s.IsTrashOrDeleted(parentSOID)
	if err != nil {
		return err
	}
	pathFrom, err := s.ResolveSOID(soid)
	if err != nil {
		return err
	}

	if err := s.db.SetParentAndName(t, soid, parent, name); err != nil {
		return err
	}
	if oa.IsAnchor() {
		if target, ok := s.stores.SIndexOf(metadata.AnchorSID(soid.OID)); ok {
			if err := s.db.RenameRoot(t, target, name); err != nil {
				return err
			}
		}
	}

	// A directory or anchor move changes the path of every descendant, and
	// possibly their inherited expulsion.
	if oa.IsDirOrAnchor() {
		s.cache.InvalidateAll()
	} else {
		s.cache.Paths.Invalidate(pathFrom.Path.String())
		s.cache.OAs.Invalidate(soid)
	}

	pathTo, err := s.ResolveSOID(soid)
	if err != nil {
		return err
	}

	oldParent := oa.Parent()
	switch {
	case !wasDeleted && willBeDeleted:
		return s.notify(kindDeleted, func(l metadata.Listener) error {
			return l.ObjectDeleted(t, soid, oldParent, pathFrom)
		})
	case wasDeleted && !willBeDeleted:
		return s.notify(kindCreated, func(l metadata.Listener) error {
			return l.ObjectCreated(t, soid, parent, pathTo)
		})
	case !wasDeleted && !willBeDeleted:
		return s.notify(kindMoved, func(l metadata.Listener) error {
			return l.ObjectMoved(t, soid, oldParent, parent, pathFrom, pathTo)
		})
	}
	return nil
}

// checkNotUnder fails when target is soid or one of its descendants.
func (s *DirectoryService) checkNotUnder(target, soid metadata.SOID) error {
	cur := target
	for depth := 0; ; depth++ {
		if cur == soid {
			return metadata.NewError(metadata.ErrInvalidArgument, "cannot move %s under itself", soid)
		}
		if cur.OID.IsRoot() {
			return nil
		}
		if depth > maxDepth {
			return metadata.Invariant("parent chain of %s does not reach ROOT", target)
		}
		oa, err := s.GetOA(cur)
		if err != nil {
			return err
		}
		cur = metadata.NewSOID(cur.SIdx, oa.Parent())
	}
}

// SetExpelled sets or clears the self-expelled flag of an object. When the
// object's effective expulsion changes, ObjectExpelled or ObjectAdmitted fires.
func (s *DirectoryService) SetExpelled(t *trans.Trans, soid metadata.SOID, expelled bool) (err error) {
	defer s.record("SetExpelled", time.Now(), &err)

	if soid.OID.IsReserved() {
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot expel %s", soid)
	}
	oa, err := s.GetOA(soid)
	if err != nil {
		return err
	}
	if oa.IsSelfExpelled() == expelled {
		return nil
	}
	wasExpelled := oa.IsExpelled()

	flags := oa.Flags() &^ metadata.FlagSelfExpelled
	if expelled {
		flags |= metadata.FlagSelfExpelled
	}
	if err := s.db.SetFlags(t, soid, flags); err != nil {
		return err
	}

	// Descendants inherit the flag; paths are unaffected.
	if oa.IsDirOrAnchor() {
		s.cache.OAs.InvalidateAll()
	} else {
		s.cache.OAs.Invalidate(soid)
	}

	noa, err := s.GetOA(soid)
	if err != nil {
		return err
	}
	if noa.IsExpelled() == wasExpelled {
		return nil
	}
	deleted, err := s.IsDeleted(soid)
	if err != nil || deleted {
		return err
	}

	path, err := s.ResolveSOID(soid)
	if err != nil {
		return err
	}
	if noa.IsExpelled() {
		return s.notify(kindExpelled, func(l metadata.Listener) error {
			return l.ObjectExpelled(t, soid, path)
		})
	}
	return s.notify(kindAdmitted, func(l metadata.Listener) error {
		return l.ObjectAdmitted(t, soid, path)
	})
}

// SetFID sets or clears (nil) the physical identifier of an object. FIDs are
// unique per store; assigning one held by another object is an invariant
// violation.
func (s *DirectoryService) SetFID(t *trans.Trans, soid metadata.SOID, fid []byte) (err error) {
	defer s.record("SetFID", time.Now(), &err)

	if _, err := s.GetOA(soid); err != nil {
		return err
	}
	if fid != nil {
		holder, ok, err := s.db.GetOIDByFID(soid.SIdx, fid)
		if err != nil {
			return err
		}
		if ok && holder != soid.OID {
			return metadata.Invariant("fid %x of %s already held by %s", fid, soid, holder)
		}
	}
	if err := s.db.SetFID(t, soid, fid); err != nil {
		return err
	}
	s.cache.OAs.Invalidate(soid)
	return nil
}

// DeleteOA physically removes an object row and its branches. It is reserved
// to store teardown and aliasing: the object must have no children.
// ObjectObliterated fires with the last state of the object, before the row
// goes away.
func (s *DirectoryService) DeleteOA(t *trans.Trans, soid metadata.SOID) (err error) {
	defer s.record("DeleteOA", time.Now(), &err)

	oa, err := s.GetOA(soid)
	if err != nil {
		return err
	}
	if oa.IsDir() {
		has, err := s.db.HasChildren(soid.SIdx, soid.OID)
		if err != nil {
			return err
		}
		if has {
			return metadata.Invariant("cannot delete %s: it has children", soid)
		}
	}

	path, found, err := s.ResolveSOIDNullable(soid)
	if err != nil {
		return err
	}
	if err := s.notify(kindObliterated, func(l metadata.Listener) error {
		return l.ObjectObliterated(t, oa, path)
	}); err != nil {
		return err
	}
	if err := s.db.DeleteObject(t, soid); err != nil {
		return err
	}
	s.cache.OAs.Invalidate(soid)
	if found {
		s.cache.Paths.Invalidate(path.Path.String())
	}
	return nil
}

// ReplaceOID re-keys an object to a new OID, keeping its attributes, branches
// and children. Used by aliasing.
func (s *DirectoryService) ReplaceOID(t *trans.Trans, soid metadata.SOID, newOID metadata.OID) (err error) {
	defer s.record("ReplaceOID", time.Now(), &err)

	if soid.OID.IsReserved() || newOID.IsReserved() {
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot replace reserved OIDs")
	}
	if _, err := s.GetOA(soid); err != nil {
		return err
	}
	exists, err := s.db.HasObject(metadata.NewSOID(soid.SIdx, newOID))
	if err != nil {
		return err
	}
	if exists {
		return metadata.Invariant("object %s already exists", metadata.NewSOID(soid.SIdx, newOID))
	}
	if err := s.db.ReplaceOID(t, soid.SIdx, soid.OID, newOID); err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

// SwapOIDs exchanges the OIDs of two objects of one store.
func (s *DirectoryService) SwapOIDs(t *trans.Trans, sidx metadata.SIndex, a, b metadata.OID) (err error) {
	defer s.record("SwapOIDs", time.Now(), &err)

	if a.IsReserved() || b.IsReserved() {
		return metadata.NewError(metadata.ErrInvalidArgument, "cannot swap reserved OIDs")
	}
	if a == b {
		return nil
	}
	for _, oid := range []metadata.OID{a, b} {
		if _, err := s.GetOA(metadata.NewSOID(sidx, oid)); err != nil {
			return err
		}
	}

	tmp := metadata.NewOID()
	for _, step := range [][2]metadata.OID{{a, tmp}, {b, a}, {tmp, b}} {
		if err := s.db.ReplaceOID(t, sidx, step[0], step[1]); err != nil {
			return err
		}
	}
	s.cache.InvalidateAll()
	return nil
}
