package metadata

import (
	"fmt"

	"github.com/google/uuid"
)

// SIndex is the local handle of a store.
//
// Store indices are allocated by this device and are stable for the lifetime of
// the metadata database, but they mean nothing to other devices. Use SID when a
// store must be named across devices.
type SIndex int32

func (s SIndex) String() string {
	return fmt.Sprintf("%d", int32(s))
}

// SID is the globally unique identifier of a store (root store or shared folder).
type SID uuid.UUID

// NewSID generates a random store identifier.
func NewSID() SID {
	return SID(uuid.New())
}

// RootSIDForUser derives the identifier of a user's root store.
//
// Every device of the same user derives the same root SID, which is what lets
// them agree on the root of the namespace without coordination.
func RootSIDForUser(userID string) SID {
	return SID(uuid.NewSHA1(rootStoreNamespace, []byte(userID)))
}

// ParseSID parses the canonical UUID text form of a store identifier.
func ParseSID(s string) (SID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SID{}, err
	}
	return SID(u), nil
}

func (s SID) String() string {
	return uuid.UUID(s).String()
}

// Bytes returns the 16-byte binary form.
func (s SID) Bytes() []byte {
	b := make([]byte, len(s))
	copy(b, s[:])
	return b
}

// IsZero reports whether s is the zero SID.
func (s SID) IsZero() bool {
	return s == SID{}
}

// OID identifies an object within a store.
type OID uuid.UUID

var (
	// OIDRoot is the root folder of every store. It is its own parent.
	OIDRoot = OID{}

	// OIDTrash is the folder under OIDRoot holding deleted objects.
	OIDTrash = OID{15: 1}

	// anchorMask maps store identifiers onto anchor object identifiers.
	// XOR keeps the mapping reversible without any lookup table.
	anchorMask = OID{0xa5, 0x5a, 0xa5, 0x5a, 0xa5, 0x5a, 0xa5, 0x5a,
		0xa5, 0x5a, 0xa5, 0x5a, 0xa5, 0x5a, 0xa5, 0x5a}

	rootStoreNamespace = uuid.MustParse("7d6c35a3-2f3f-4a74-8c1b-4f6f1d0b9e21")
)

// NewOID generates a random object identifier.
func NewOID() OID {
	return OID(uuid.New())
}

// ParseOID parses the canonical UUID text form of an object identifier.
func ParseOID(s string) (OID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return OID{}, err
	}
	return OID(u), nil
}

// OIDFromBytes converts a 16-byte slice into an OID.
func OIDFromBytes(b []byte) (OID, error) {
	var o OID
	if len(b) != len(o) {
		return o, fmt.Errorf("invalid OID length: %d", len(b))
	}
	copy(o[:], b)
	return o, nil
}

// AnchorOID returns the OID of the anchor mounting the store sid.
func AnchorOID(sid SID) OID {
	var o OID
	for i := range o {
		o[i] = sid[i] ^ anchorMask[i]
	}
	return o
}

// AnchorSID returns the store mounted by the anchor with the given OID.
// The result is meaningless unless oid belongs to an anchor.
func AnchorSID(oid OID) SID {
	var s SID
	for i := range s {
		s[i] = oid[i] ^ anchorMask[i]
	}
	return s
}

func (o OID) String() string {
	switch o {
	case OIDRoot:
		return "ROOT"
	case OIDTrash:
		return "TRASH"
	}
	return uuid.UUID(o).String()
}

// Bytes returns the 16-byte binary form.
func (o OID) Bytes() []byte {
	b := make([]byte, len(o))
	copy(b, o[:])
	return b
}

// IsRoot reports whether o is the reserved root folder OID.
func (o OID) IsRoot() bool { return o == OIDRoot }

// IsTrash reports whether o is the reserved trash folder OID.
func (o OID) IsTrash() bool { return o == OIDTrash }

// IsReserved reports whether o is ROOT or TRASH.
func (o OID) IsReserved() bool { return o == OIDRoot || o == OIDTrash }

// SOID is the primary key of every object: a store index plus an object ID.
type SOID struct {
	SIdx SIndex
	OID  OID
}

// NewSOID is a convenience constructor.
func NewSOID(sidx SIndex, oid OID) SOID {
	return SOID{SIdx: sidx, OID: oid}
}

// RootSOID returns the SOID of the root folder of store sidx.
func RootSOID(sidx SIndex) SOID {
	return SOID{SIdx: sidx, OID: OIDRoot}
}

// TrashSOID returns the SOID of the trash folder of store sidx.
func TrashSOID(sidx SIndex) SOID {
	return SOID{SIdx: sidx, OID: OIDTrash}
}

func (s SOID) String() string {
	return s.SIdx.String() + ":" + s.OID.String()
}

// KIndex identifies a content branch of a file.
type KIndex int32

// KIndexMaster is the primary, non-conflicting branch.
const KIndexMaster KIndex = 0

// IsMaster reports whether k is the primary branch.
func (k KIndex) IsMaster() bool { return k == KIndexMaster }

// SOKID identifies one branch of one object.
type SOKID struct {
	SOID
	KIdx KIndex
}

func (s SOKID) String() string {
	return fmt.Sprintf("%s:%d", s.SOID, s.KIdx)
}

// DID identifies a device.
type DID uuid.UUID

// NewDID generates a random device identifier.
func NewDID() DID {
	return DID(uuid.New())
}

func (d DID) String() string {
	return uuid.UUID(d).String()
}
