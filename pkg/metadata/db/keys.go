package db

import (
	"github.com/jgraettinger/cockroach-encoding/encoding"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/pkg/errors"
)

// Database Key Namespace Design
// ==============================
//
// Badger is a key-value store, so every table is a one-byte tag followed by an
// order-preserving encoding of its compound key. Encoded components are
// self-delimiting, which makes "tag + sidx" an exact prefix of every row of
// one store and "tag + sidx + parent" an exact prefix of every child entry of
// one directory. Per-store tables can therefore be purged, and directories
// listed, with plain prefix scans.
//
// Table                Tag  Key                         Value
// ========================================================================
// Objects              o    sidx, oid                   objectRow (JSON)
// Children index       c    sidx, parent, name          child oid (16 bytes)
// Content branches     a    sidx, oid, kidx             contentRow (JSON)
// FID index            f    sidx, fid                   oid (16 bytes)
// Raw sync status      y    sidx, oid                   bit vector bytes
// Aggregate status     z    sidx, oid                   count + counters (varints)
// Change log           l    sidx, seq                   ChangeRow (JSON)
// Change log sequence  k    sidx                        next seq (uvarint)
// Device bit map       d    sidx                        concatenated DIDs
// Stores               s    sidx                        StoreRow (JSON)
// SID → SIndex         m    sid                         sidx (varint)
// SIndex → SID         i    sidx                        sid (16 bytes)
// Next SIndex          n    -                           sidx (varint)
// Feed epoch           e    -                           epoch (uvarint)
// Pending purges       g    sidx                        empty

// Table identifies one per-store table.
type Table byte

const (
	TableObjects         Table = 'o'
	TableChildren        Table = 'c'
	TableContents        Table = 'a'
	TableFIDs            Table = 'f'
	TableSyncStatus      Table = 'y'
	TableAggregateStatus Table = 'z'
	TableChangeLog       Table = 'l'
	TableChangeLogSeq    Table = 'k'
	TableDeviceBitMap    Table = 'd'
)

const (
	tagStore       = 's'
	tagSIDToSIndex = 'm'
	tagSIndexToSID = 'i'
	tagNextSIndex  = 'n'
	tagEpoch       = 'e'
	tagPurge       = 'g'
)

// StoreTables lists every table whose rows belong to a single store, in the
// order deferred cleanup purges them. Objects go last so that a partially
// purged store never has content rows without their object.
var StoreTables = []Table{
	TableChangeLog,
	TableChangeLogSeq,
	TableContents,
	TableFIDs,
	TableSyncStatus,
	TableAggregateStatus,
	TableDeviceBitMap,
	TableChildren,
	TableObjects,
}

func (t Table) String() string {
	switch t {
	case TableObjects:
		return "objects"
	case TableChildren:
		return "children"
	case TableContents:
		return "contents"
	case TableFIDs:
		return "fids"
	case TableSyncStatus:
		return "sync_status"
	case TableAggregateStatus:
		return "aggregate_status"
	case TableChangeLog:
		return "change_log"
	case TableChangeLogSeq:
		return "change_log_seq"
	case TableDeviceBitMap:
		return "device_bitmap"
	default:
		return string([]byte{byte(t)})
	}
}

func storePrefix(tag byte, sidx metadata.SIndex) []byte {
	return encoding.EncodeVarintAscending([]byte{tag}, int64(sidx))
}

func keyObject(soid metadata.SOID) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableObjects), soid.SIdx), soid.OID[:])
}

func keyChildPrefix(sidx metadata.SIndex, parent metadata.OID) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableChildren), sidx), parent[:])
}

func keyChild(sidx metadata.SIndex, parent metadata.OID, name string) []byte {
	return encoding.EncodeStringAscending(keyChildPrefix(sidx, parent), name)
}

func keyContentPrefix(soid metadata.SOID) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableContents), soid.SIdx), soid.OID[:])
}

func keyContent(soid metadata.SOID, kidx metadata.KIndex) []byte {
	return encoding.EncodeVarintAscending(keyContentPrefix(soid), int64(kidx))
}

func keyFID(sidx metadata.SIndex, fid []byte) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableFIDs), sidx), fid)
}

func keySyncStatus(soid metadata.SOID) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableSyncStatus), soid.SIdx), soid.OID[:])
}

func keyAggregate(soid metadata.SOID) []byte {
	return encoding.EncodeBytesAscending(storePrefix(byte(TableAggregateStatus), soid.SIdx), soid.OID[:])
}

func keyChange(sidx metadata.SIndex, seq uint64) []byte {
	return encoding.EncodeUvarintAscending(storePrefix(byte(TableChangeLog), sidx), seq)
}

func keyChangeSeq(sidx metadata.SIndex) []byte {
	return storePrefix(byte(TableChangeLogSeq), sidx)
}

func keyDeviceBitMap(sidx metadata.SIndex) []byte {
	return storePrefix(byte(TableDeviceBitMap), sidx)
}

func keyStore(sidx metadata.SIndex) []byte {
	return storePrefix(tagStore, sidx)
}

func keyStorePrefix() []byte {
	return []byte{tagStore}
}

func keySIDToSIndex(sid metadata.SID) []byte {
	return encoding.EncodeBytesAscending([]byte{tagSIDToSIndex}, sid[:])
}

func keySIndexToSID(sidx metadata.SIndex) []byte {
	return storePrefix(tagSIndexToSID, sidx)
}

func keyNextSIndex() []byte {
	return []byte{tagNextSIndex}
}

func keyEpoch() []byte {
	return []byte{tagEpoch}
}

func keyPurge(sidx metadata.SIndex) []byte {
	return storePrefix(tagPurge, sidx)
}

func keyPurgePrefix() []byte {
	return []byte{tagPurge}
}

// decodeChildName extracts the child name from a children-index key.
func decodeChildName(key, prefix []byte) (string, error) {
	if len(key) <= len(prefix) {
		return "", errors.Errorf("malformed child key %x", key)
	}
	_, name, err := encoding.DecodeBytesAscending(key[len(prefix):], nil)
	if err != nil {
		return "", errors.Wrapf(err, "decoding child key %x", key)
	}
	return string(name), nil
}

// decodeKIndex extracts the branch index from a content key.
func decodeKIndex(key, prefix []byte) (metadata.KIndex, error) {
	if len(key) <= len(prefix) {
		return 0, errors.Errorf("malformed content key %x", key)
	}
	_, k, err := encoding.DecodeVarintAscending(key[len(prefix):])
	if err != nil {
		return 0, errors.Wrapf(err, "decoding content key %x", key)
	}
	return metadata.KIndex(k), nil
}

// decodeStoreKey extracts the store index from a "tag + sidx" key.
func decodeStoreKey(key []byte) (metadata.SIndex, error) {
	if len(key) < 2 {
		return 0, errors.Errorf("malformed store key %x", key)
	}
	_, v, err := encoding.DecodeVarintAscending(key[1:])
	if err != nil {
		return 0, errors.Wrapf(err, "decoding store key %x", key)
	}
	return metadata.SIndex(v), nil
}
