package db

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// GetSyncStatus returns the serialized raw sync status of soid, or nil.
func (d *Database) GetSyncStatus(soid metadata.SOID) ([]byte, error) {
	return d.get(keySyncStatus(soid))
}

// SetSyncStatus stores a serialized raw sync status. An empty value removes
// the row.
func (d *Database) SetSyncStatus(t *trans.Trans, soid metadata.SOID, status []byte) error {
	if len(status) == 0 {
		return del(t, keySyncStatus(soid))
	}
	return set(t, keySyncStatus(soid), status)
}

// GetAggregate returns the aggregation row of a directory, or nil.
func (d *Database) GetAggregate(soid metadata.SOID) (*AggregateRow, error) {
	b, err := d.get(keyAggregate(soid))
	if err != nil || b == nil {
		return nil, err
	}
	row, err := decodeAggregate(b)
	if err != nil {
		return nil, metadata.Invariant("aggregate %s: %v", soid, err)
	}
	return row, nil
}

// SetAggregate stores the aggregation row of a directory. A nil or all-zero
// row removes it.
func (d *Database) SetAggregate(t *trans.Trans, soid metadata.SOID, row *AggregateRow) error {
	if row == nil || row.isZero() {
		return del(t, keyAggregate(soid))
	}
	return set(t, keyAggregate(soid), encodeAggregate(row))
}

func (r *AggregateRow) isZero() bool {
	if r.Count != 0 {
		return false
	}
	for _, c := range r.Counters {
		if c != 0 {
			return false
		}
	}
	return true
}

// GetDeviceBitMap returns the serialized device bit map of a store, or nil.
func (d *Database) GetDeviceBitMap(sidx metadata.SIndex) ([]byte, error) {
	return d.get(keyDeviceBitMap(sidx))
}

// SetDeviceBitMap stores the serialized device bit map of a store.
func (d *Database) SetDeviceBitMap(t *trans.Trans, sidx metadata.SIndex, b []byte) error {
	return set(t, keyDeviceBitMap(sidx), b)
}

// GetEpoch returns the last persisted feed epoch, or 0.
func (d *Database) GetEpoch() (uint64, error) {
	b, err := d.get(keyEpoch())
	if err != nil || b == nil {
		return 0, err
	}
	v, err := decodeUvarint(b)
	if err != nil {
		return 0, metadata.Invariant("epoch: %v", err)
	}
	return v, nil
}

// SetEpoch persists the feed epoch.
func (d *Database) SetEpoch(t *trans.Trans, epoch uint64) error {
	return set(t, keyEpoch(), encodeUvarint(epoch))
}
