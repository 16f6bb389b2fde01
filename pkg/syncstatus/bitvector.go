package syncstatus

import (
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"
)

// BitVector is an immutable set of device positions.
type BitVector struct {
	bm *roaring.Bitmap
}

// NewBitVector returns a vector with the given positions set.
func NewBitVector(bits ...int) BitVector {
	bm := roaring.New()
	for _, b := range bits {
		bm.Add(uint32(b))
	}
	return BitVector{bm: bm}
}

// BitVectorFromBytes decodes a vector persisted with Bytes. Empty input is the
// empty vector.
func BitVectorFromBytes(b []byte) (BitVector, error) {
	bm := roaring.New()
	if len(b) == 0 {
		return BitVector{bm: bm}, nil
	}
	if err := bm.UnmarshalBinary(b); err != nil {
		return BitVector{}, errors.Wrap(err, "failed to decode bit vector")
	}
	return BitVector{bm: bm}, nil
}

func (v BitVector) bitmap() *roaring.Bitmap {
	if v.bm == nil {
		return roaring.New()
	}
	return v.bm
}

// Bytes encodes the vector. The empty vector encodes to nil.
func (v BitVector) Bytes() ([]byte, error) {
	if v.IsEmpty() {
		return nil, nil
	}
	b, err := v.bm.ToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode bit vector")
	}
	return b, nil
}

// Test reports whether position i is set.
func (v BitVector) Test(i int) bool {
	return v.bm != nil && v.bm.Contains(uint32(i))
}

// Set returns a copy with position i set.
func (v BitVector) Set(i int) BitVector {
	bm := v.bitmap().Clone()
	bm.Add(uint32(i))
	return BitVector{bm: bm}
}

// Clear returns a copy with position i cleared.
func (v BitVector) Clear(i int) BitVector {
	bm := v.bitmap().Clone()
	bm.Remove(uint32(i))
	return BitVector{bm: bm}
}

func (v BitVector) And(o BitVector) BitVector {
	return BitVector{bm: roaring.And(v.bitmap(), o.bitmap())}
}

func (v BitVector) Or(o BitVector) BitVector {
	return BitVector{bm: roaring.Or(v.bitmap(), o.bitmap())}
}

func (v BitVector) AndNot(o BitVector) BitVector {
	return BitVector{bm: roaring.AndNot(v.bitmap(), o.bitmap())}
}

func (v BitVector) Xor(o BitVector) BitVector {
	return BitVector{bm: roaring.Xor(v.bitmap(), o.bitmap())}
}

// Equal compares two vectors by content.
func (v BitVector) Equal(o BitVector) bool {
	return v.bitmap().Equals(o.bitmap())
}

func (v BitVector) IsEmpty() bool {
	return v.bm == nil || v.bm.IsEmpty()
}

// Bits returns the set positions in ascending order.
func (v BitVector) Bits() []int {
	if v.bm == nil {
		return nil
	}
	arr := v.bm.ToArray()
	out := make([]int, len(arr))
	for i, b := range arr {
		out[i] = int(b)
	}
	return out
}

// String renders the vector as a bit string, lowest position first.
func (v BitVector) String() string {
	bits := v.Bits()
	if len(bits) == 0 {
		return "0"
	}
	var sb strings.Builder
	for i := 0; i <= bits[len(bits)-1]; i++ {
		if v.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
