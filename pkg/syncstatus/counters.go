package syncstatus

import (
	"github.com/marmos91/dittosync/pkg/metadata"
)

// CounterVector holds, per device position, how many counted children of a
// directory have that device's bit set in their effective status.
type CounterVector []int64

// Get returns the counter at position i; positions past the end are zero.
func (c CounterVector) Get(i int) int64 {
	if i < len(c) {
		return c[i]
	}
	return 0
}

// Add returns a copy with delta added at position i, growing as needed.
func (c CounterVector) Add(i int, delta int64) CounterVector {
	n := len(c)
	if i >= n {
		n = i + 1
	}
	out := make(CounterVector, n)
	copy(out, c)
	out[i] += delta
	return out
}

// Full returns the positions below devices whose counter equals count: the
// devices on which every counted child is in sync. A directory with no
// counted child is in sync everywhere.
func (c CounterVector) Full(count int64, devices int) BitVector {
	var bits []int
	for i := 0; i < devices; i++ {
		if c.Get(i) == count {
			bits = append(bits, i)
		}
	}
	return NewBitVector(bits...)
}

// IsZero reports whether every counter is zero.
func (c CounterVector) IsZero() bool {
	for _, v := range c {
		if v != 0 {
			return false
		}
	}
	return true
}

// DeviceBitMap assigns bit vector positions to devices within one store.
// Positions are append-only: a device keeps its position forever.
type DeviceBitMap struct {
	dids  []metadata.DID
	index map[metadata.DID]int
}

const didSize = len(metadata.DID{})

func decodeDeviceBitMap(b []byte) (*DeviceBitMap, error) {
	if len(b)%didSize != 0 {
		return nil, metadata.Invariant("device bit map of %d bytes is not a multiple of %d", len(b), didSize)
	}
	m := &DeviceBitMap{index: make(map[metadata.DID]int, len(b)/didSize)}
	for off := 0; off < len(b); off += didSize {
		var did metadata.DID
		copy(did[:], b[off:off+didSize])
		if _, dup := m.index[did]; dup {
			return nil, metadata.Invariant("device %s appears twice in device bit map", did)
		}
		m.index[did] = len(m.dids)
		m.dids = append(m.dids, did)
	}
	return m, nil
}

// Len returns the number of registered devices.
func (m *DeviceBitMap) Len() int {
	return len(m.dids)
}

// Index returns the position of a device.
func (m *DeviceBitMap) Index(did metadata.DID) (int, bool) {
	i, ok := m.index[did]
	return i, ok
}

// DID returns the device at position i.
func (m *DeviceBitMap) DID(i int) (metadata.DID, bool) {
	if i < 0 || i >= len(m.dids) {
		return metadata.DID{}, false
	}
	return m.dids[i], true
}

// DIDs returns the devices whose positions are set in v.
func (m *DeviceBitMap) DIDs(v BitVector) []metadata.DID {
	var out []metadata.DID
	for _, b := range v.Bits() {
		if did, ok := m.DID(b); ok {
			out = append(out, did)
		}
	}
	return out
}

func (m *DeviceBitMap) bytes() []byte {
	b := make([]byte, 0, len(m.dids)*didSize)
	for _, did := range m.dids {
		b = append(b, did[:]...)
	}
	return b
}

// with returns a copy with did appended.
func (m *DeviceBitMap) with(did metadata.DID) *DeviceBitMap {
	out := &DeviceBitMap{
		dids:  append(append([]metadata.DID(nil), m.dids...), did),
		index: make(map[metadata.DID]int, len(m.index)+1),
	}
	for k, v := range m.index {
		out.index[k] = v
	}
	out.index[did] = len(m.dids)
	return out
}
