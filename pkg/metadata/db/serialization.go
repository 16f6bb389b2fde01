package db

import (
	"encoding/json"

	"github.com/jgraettinger/cockroach-encoding/encoding"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/pkg/errors"
)

// ObjectRow is the persisted form of an object.
type ObjectRow struct {
	Parent metadata.OID        `json:"parent"`
	Name   string              `json:"name"`
	Type   metadata.ObjectType `json:"type"`
	Flags  metadata.Flags      `json:"flags"`
	FID    []byte              `json:"fid,omitempty"`
}

// ContentRow is the persisted form of one content branch.
type ContentRow struct {
	Length int64  `json:"length"`
	MTime  int64  `json:"mtime"`
	Hash   []byte `json:"hash,omitempty"`
}

// StoreRow is the persisted form of a locally present store.
type StoreRow struct {
	Kind    int               `json:"kind"`
	Parents []metadata.SIndex `json:"parents"`
}

// AggregateRow is the per-directory aggregation state: the number of
// non-expelled children, and per device position the number of those
// children whose effective status has that device's bit set.
type AggregateRow struct {
	Count    int64
	Counters []int64
}

// ChangeRow is one entry of a store's change log.
type ChangeRow struct {
	Seq  uint64          `json:"seq"`
	OID  metadata.OID    `json:"oid"`
	KIdx metadata.KIndex `json:"kidx"`
	Kind string          `json:"kind"`
}

func encodeJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode %s", what)
	}
	return b, nil
}

func decodeJSON(b []byte, v any, what string) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", what)
	}
	return nil
}

// encodeAggregate packs the count followed by every counter as ascending varints.
func encodeAggregate(row *AggregateRow) []byte {
	b := encoding.EncodeVarintAscending(nil, row.Count)
	b = encoding.EncodeUvarintAscending(b, uint64(len(row.Counters)))
	for _, c := range row.Counters {
		b = encoding.EncodeVarintAscending(b, c)
	}
	return b
}

func decodeAggregate(b []byte) (*AggregateRow, error) {
	b, count, err := encoding.DecodeVarintAscending(b)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode aggregate count")
	}
	b, n, err := encoding.DecodeUvarintAscending(b)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode aggregate length")
	}
	row := &AggregateRow{Count: count, Counters: make([]int64, n)}
	for i := range row.Counters {
		if b, row.Counters[i], err = encoding.DecodeVarintAscending(b); err != nil {
			return nil, errors.Wrapf(err, "failed to decode counter %d", i)
		}
	}
	return row, nil
}

func encodeVarint(v int64) []byte {
	return encoding.EncodeVarintAscending(nil, v)
}

func decodeVarint(b []byte) (int64, error) {
	_, v, err := encoding.DecodeVarintAscending(b)
	return v, errors.Wrap(err, "failed to decode varint")
}

func encodeUvarint(v uint64) []byte {
	return encoding.EncodeUvarintAscending(nil, v)
}

func decodeUvarint(b []byte) (uint64, error) {
	_, v, err := encoding.DecodeUvarintAscending(b)
	return v, errors.Wrap(err, "failed to decode uvarint")
}
