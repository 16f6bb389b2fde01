package db

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// SchedulePurge records that the per-store tables of sidx must be purged.
func (d *Database) SchedulePurge(t *trans.Trans, sidx metadata.SIndex) error {
	return set(t, keyPurge(sidx), []byte{})
}

// PendingPurges lists the stores awaiting deferred cleanup.
func (d *Database) PendingPurges() ([]metadata.SIndex, error) {
	rows, err := d.scan(keyPurgePrefix(), true, 0)
	if err != nil {
		return nil, err
	}
	out := make([]metadata.SIndex, 0, len(rows))
	for _, r := range rows {
		sidx, err := decodeStoreKey(r.key)
		if err != nil {
			return nil, metadata.Invariant("%v", err)
		}
		out = append(out, sidx)
	}
	return out, nil
}

// CompletePurge clears the pending cleanup marker of sidx.
func (d *Database) CompletePurge(t *trans.Trans, sidx metadata.SIndex) error {
	return del(t, keyPurge(sidx))
}

// PurgeTable deletes up to limit rows of one table belonging to sidx and
// returns how many were deleted. A return below limit means the table is
// empty for that store.
func (d *Database) PurgeTable(t *trans.Trans, table Table, sidx metadata.SIndex, limit int) (int, error) {
	rows, err := d.scan(storePrefix(byte(table), sidx), true, limit)
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := del(t, r.key); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

// CountRows returns the number of rows of one table belonging to sidx.
func (d *Database) CountRows(table Table, sidx metadata.SIndex) (int, error) {
	rows, err := d.scan(storePrefix(byte(table), sidx), true, 0)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
