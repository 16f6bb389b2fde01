package db

import (
	"sort"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// GetObject returns the object row of soid, or nil when absent.
func (d *Database) GetObject(soid metadata.SOID) (*ObjectRow, error) {
	b, err := d.get(keyObject(soid))
	if err != nil || b == nil {
		return nil, err
	}
	var row ObjectRow
	if err := decodeJSON(b, &row, "object row"); err != nil {
		return nil, metadata.Invariant("object %s: %v", soid, err)
	}
	return &row, nil
}

// InsertObject writes a new object row together with its children and FID
// index entries. ROOT is its own parent and is not indexed as a child.
func (d *Database) InsertObject(t *trans.Trans, soid metadata.SOID, row *ObjectRow) error {
	if err := d.putObject(t, soid, row); err != nil {
		return err
	}
	if !soid.OID.IsRoot() {
		if err := set(t, keyChild(soid.SIdx, row.Parent, row.Name), soid.OID.Bytes()); err != nil {
			return err
		}
	}
	if row.FID != nil {
		if err := set(t, keyFID(soid.SIdx, row.FID), soid.OID.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) putObject(t *trans.Trans, soid metadata.SOID, row *ObjectRow) error {
	b, err := encodeJSON(row, "object row")
	if err != nil {
		return err
	}
	return set(t, keyObject(soid), b)
}

func (d *Database) mustGetObject(soid metadata.SOID) (*ObjectRow, error) {
	row, err := d.GetObject(soid)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, metadata.NewError(metadata.ErrNotFound, "object %s not found", soid)
	}
	return row, nil
}

// GetChild looks up a child by name.
func (d *Database) GetChild(sidx metadata.SIndex, parent metadata.OID, name string) (metadata.OID, bool, error) {
	b, err := d.get(keyChild(sidx, parent, name))
	if err != nil || b == nil {
		return metadata.OID{}, false, err
	}
	oid, err := oidFromValue(b)
	if err != nil {
		return metadata.OID{}, false, err
	}
	return oid, true, nil
}

// ListChildren returns the children of parent ordered by name.
func (d *Database) ListChildren(sidx metadata.SIndex, parent metadata.OID) ([]metadata.OID, error) {
	rows, err := d.scan(keyChildPrefix(sidx, parent), false, 0)
	if err != nil {
		return nil, err
	}
	out := make([]metadata.OID, 0, len(rows))
	for _, r := range rows {
		oid, err := oidFromValue(r.value)
		if err != nil {
			return nil, err
		}
		out = append(out, oid)
	}
	return out, nil
}

// ChildNames returns the child names of parent in ascending order.
func (d *Database) ChildNames(sidx metadata.SIndex, parent metadata.OID) ([]string, error) {
	prefix := keyChildPrefix(sidx, parent)
	rows, err := d.scan(prefix, true, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		name, err := decodeChildName(r.key, prefix)
		if err != nil {
			return nil, metadata.Invariant("%v", err)
		}
		out = append(out, name)
	}
	return out, nil
}

// HasChildren reports whether parent has at least one child.
func (d *Database) HasChildren(sidx metadata.SIndex, parent metadata.OID) (bool, error) {
	rows, err := d.scan(keyChildPrefix(sidx, parent), true, 1)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// SetParentAndName relocates an object, keeping the children index in step.
func (d *Database) SetParentAndName(t *trans.Trans, soid metadata.SOID, parent metadata.OID, name string) error {
	row, err := d.mustGetObject(soid)
	if err != nil {
		return err
	}
	if err := del(t, keyChild(soid.SIdx, row.Parent, row.Name)); err != nil {
		return err
	}
	row.Parent, row.Name = parent, name
	if err := set(t, keyChild(soid.SIdx, parent, name), soid.OID.Bytes()); err != nil {
		return err
	}
	return d.putObject(t, soid, row)
}

// SetFlags overwrites the persisted flags word.
func (d *Database) SetFlags(t *trans.Trans, soid metadata.SOID, flags metadata.Flags) error {
	row, err := d.mustGetObject(soid)
	if err != nil {
		return err
	}
	row.Flags = flags.Persistent()
	return d.putObject(t, soid, row)
}

// SetFID replaces the physical identifier of an object. A nil fid clears it.
func (d *Database) SetFID(t *trans.Trans, soid metadata.SOID, fid []byte) error {
	row, err := d.mustGetObject(soid)
	if err != nil {
		return err
	}
	if row.FID != nil {
		if err := del(t, keyFID(soid.SIdx, row.FID)); err != nil {
			return err
		}
	}
	row.FID = fid
	if fid != nil {
		if err := set(t, keyFID(soid.SIdx, fid), soid.OID.Bytes()); err != nil {
			return err
		}
	}
	return d.putObject(t, soid, row)
}

// GetOIDByFID looks up the object carrying fid.
func (d *Database) GetOIDByFID(sidx metadata.SIndex, fid []byte) (metadata.OID, bool, error) {
	b, err := d.get(keyFID(sidx, fid))
	if err != nil || b == nil {
		return metadata.OID{}, false, err
	}
	oid, err := oidFromValue(b)
	if err != nil {
		return metadata.OID{}, false, err
	}
	return oid, true, nil
}

// DeleteObject removes an object row and every row keyed by it.
func (d *Database) DeleteObject(t *trans.Trans, soid metadata.SOID) error {
	row, err := d.mustGetObject(soid)
	if err != nil {
		return err
	}
	if !soid.OID.IsRoot() {
		if err := del(t, keyChild(soid.SIdx, row.Parent, row.Name)); err != nil {
			return err
		}
	}
	if row.FID != nil {
		if err := del(t, keyFID(soid.SIdx, row.FID)); err != nil {
			return err
		}
	}
	if err := d.deletePrefix(t, keyContentPrefix(soid)); err != nil {
		return err
	}
	for _, k := range [][]byte{keySyncStatus(soid), keyAggregate(soid), keyObject(soid)} {
		if err := del(t, k); err != nil {
			return err
		}
	}
	return nil
}

// GetContents returns every content branch of soid.
func (d *Database) GetContents(soid metadata.SOID) (map[metadata.KIndex]ContentRow, error) {
	prefix := keyContentPrefix(soid)
	rows, err := d.scan(prefix, false, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[metadata.KIndex]ContentRow, len(rows))
	for _, r := range rows {
		kidx, err := decodeKIndex(r.key, prefix)
		if err != nil {
			return nil, metadata.Invariant("%v", err)
		}
		var row ContentRow
		if err := decodeJSON(r.value, &row, "content row"); err != nil {
			return nil, metadata.Invariant("content %s/%d: %v", soid, kidx, err)
		}
		out[kidx] = row
	}
	return out, nil
}

// PutContent inserts or overwrites one content branch.
func (d *Database) PutContent(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex, row ContentRow) error {
	b, err := encodeJSON(row, "content row")
	if err != nil {
		return err
	}
	return set(t, keyContent(soid, kidx), b)
}

// DeleteContent removes one content branch.
func (d *Database) DeleteContent(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex) error {
	return del(t, keyContent(soid, kidx))
}

// ReplaceOID re-keys every row of an object from oldOID to newOID, including
// the parent pointers of its children. Both OIDs must belong to sidx and
// newOID must not exist.
func (d *Database) ReplaceOID(t *trans.Trans, sidx metadata.SIndex, oldOID, newOID metadata.OID) error {
	oldSOID := metadata.NewSOID(sidx, oldOID)
	newSOID := metadata.NewSOID(sidx, newOID)

	row, err := d.mustGetObject(oldSOID)
	if err != nil {
		return err
	}
	contents, err := d.GetContents(oldSOID)
	if err != nil {
		return err
	}
	status, err := d.get(keySyncStatus(oldSOID))
	if err != nil {
		return err
	}
	agg, err := d.get(keyAggregate(oldSOID))
	if err != nil {
		return err
	}
	children, err := d.ListChildren(sidx, oldOID)
	if err != nil {
		return err
	}

	if err := d.DeleteObject(t, oldSOID); err != nil {
		return err
	}
	if err := d.InsertObject(t, newSOID, row); err != nil {
		return err
	}
	kidxs := make([]metadata.KIndex, 0, len(contents))
	for k := range contents {
		kidxs = append(kidxs, k)
	}
	sort.Slice(kidxs, func(i, j int) bool { return kidxs[i] < kidxs[j] })
	for _, k := range kidxs {
		if err := d.PutContent(t, newSOID, k, contents[k]); err != nil {
			return err
		}
	}
	if status != nil {
		if err := set(t, keySyncStatus(newSOID), status); err != nil {
			return err
		}
	}
	if agg != nil {
		if err := set(t, keyAggregate(newSOID), agg); err != nil {
			return err
		}
	}
	for _, c := range children {
		csoid := metadata.NewSOID(sidx, c)
		crow, err := d.mustGetObject(csoid)
		if err != nil {
			return err
		}
		if err := d.SetParentAndName(t, csoid, newOID, crow.Name); err != nil {
			return err
		}
	}
	return nil
}

// HasObject reports whether an object row exists for soid.
func (d *Database) HasObject(soid metadata.SOID) (bool, error) {
	return d.has(keyObject(soid))
}

// RenameRoot sets the name of a store's ROOT, which mirrors the name of the
// anchor mounting the store. ROOT has no children index entry to maintain.
func (d *Database) RenameRoot(t *trans.Trans, sidx metadata.SIndex, name string) error {
	soid := metadata.RootSOID(sidx)
	row, err := d.mustGetObject(soid)
	if err != nil {
		return err
	}
	row.Name = name
	return d.putObject(t, soid, row)
}
