package db

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// GetSIndex returns the local index permanently assigned to sid.
func (d *Database) GetSIndex(sid metadata.SID) (metadata.SIndex, bool, error) {
	b, err := d.get(keySIDToSIndex(sid))
	if err != nil || b == nil {
		return 0, false, err
	}
	v, err := decodeVarint(b)
	if err != nil {
		return 0, false, metadata.Invariant("sidx of %s: %v", sid, err)
	}
	return metadata.SIndex(v), true, nil
}

// GetSID returns the store identifier mapped to sidx.
func (d *Database) GetSID(sidx metadata.SIndex) (metadata.SID, bool, error) {
	b, err := d.get(keySIndexToSID(sidx))
	if err != nil || b == nil {
		return metadata.SID{}, false, err
	}
	var sid metadata.SID
	if len(b) != len(sid) {
		return metadata.SID{}, false, metadata.Invariant("corrupt sid of %s: %x", sidx, b)
	}
	copy(sid[:], b)
	return sid, true, nil
}

// AllocateSIndex returns the index mapped to sid, assigning the next free one
// on first use. Mappings are never removed, so a store that is deleted and
// re-created gets its old index back.
func (d *Database) AllocateSIndex(t *trans.Trans, sid metadata.SID) (metadata.SIndex, error) {
	if sidx, ok, err := d.GetSIndex(sid); err != nil || ok {
		return sidx, err
	}

	next := int64(1)
	b, err := d.get(keyNextSIndex())
	if err != nil {
		return 0, err
	}
	if b != nil {
		if next, err = decodeVarint(b); err != nil {
			return 0, metadata.Invariant("next sidx: %v", err)
		}
	}

	sidx := metadata.SIndex(next)
	if err := set(t, keyNextSIndex(), encodeVarint(next+1)); err != nil {
		return 0, err
	}
	if err := set(t, keySIDToSIndex(sid), encodeVarint(next)); err != nil {
		return 0, err
	}
	if err := set(t, keySIndexToSID(sidx), sid.Bytes()); err != nil {
		return 0, err
	}
	return sidx, nil
}

// GetStore returns the store row of sidx, or nil when the store is not
// locally present.
func (d *Database) GetStore(sidx metadata.SIndex) (*StoreRow, error) {
	b, err := d.get(keyStore(sidx))
	if err != nil || b == nil {
		return nil, err
	}
	var row StoreRow
	if err := decodeJSON(b, &row, "store row"); err != nil {
		return nil, metadata.Invariant("store %s: %v", sidx, err)
	}
	return &row, nil
}

// PutStore inserts or overwrites a store row.
func (d *Database) PutStore(t *trans.Trans, sidx metadata.SIndex, row *StoreRow) error {
	b, err := encodeJSON(row, "store row")
	if err != nil {
		return err
	}
	return set(t, keyStore(sidx), b)
}

// DeleteStore removes a store row. The store's other tables are purged
// separately.
func (d *Database) DeleteStore(t *trans.Trans, sidx metadata.SIndex) error {
	return del(t, keyStore(sidx))
}

// ListStores returns every locally present store.
func (d *Database) ListStores() (map[metadata.SIndex]*StoreRow, error) {
	rows, err := d.scan(keyStorePrefix(), false, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[metadata.SIndex]*StoreRow, len(rows))
	for _, r := range rows {
		sidx, err := decodeStoreKey(r.key)
		if err != nil {
			return nil, metadata.Invariant("%v", err)
		}
		var row StoreRow
		if err := decodeJSON(r.value, &row, "store row"); err != nil {
			return nil, metadata.Invariant("store %s: %v", sidx, err)
		}
		out[sidx] = &row
	}
	return out, nil
}
