package db

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// AppendChange appends an entry to the change log of sidx and returns its
// sequence number. Sequence numbers start at 1 and never repeat within a
// store's lifetime.
func (d *Database) AppendChange(t *trans.Trans, sidx metadata.SIndex, entry ChangeRow) (uint64, error) {
	seq := uint64(1)
	b, err := d.get(keyChangeSeq(sidx))
	if err != nil {
		return 0, err
	}
	if b != nil {
		if seq, err = decodeUvarint(b); err != nil {
			return 0, metadata.Invariant("change log sequence of %s: %v", sidx, err)
		}
	}

	entry.Seq = seq
	v, err := encodeJSON(entry, "change row")
	if err != nil {
		return 0, err
	}
	if err := set(t, keyChange(sidx, seq), v); err != nil {
		return 0, err
	}
	if err := set(t, keyChangeSeq(sidx), encodeUvarint(seq+1)); err != nil {
		return 0, err
	}
	return seq, nil
}

// ListChanges returns up to limit entries of the change log of sidx in
// sequence order, starting at from.
func (d *Database) ListChanges(sidx metadata.SIndex, from uint64, limit int) ([]ChangeRow, error) {
	rows, err := d.scan(storePrefix(byte(TableChangeLog), sidx), false, 0)
	if err != nil {
		return nil, err
	}
	var out []ChangeRow
	for _, r := range rows {
		var row ChangeRow
		if err := decodeJSON(r.value, &row, "change row"); err != nil {
			return nil, metadata.Invariant("change log of %s: %v", sidx, err)
		}
		if row.Seq < from {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
