package metadata

import (
	"bytes"
	"fmt"
	"sort"
)

// ObjectType is the kind of an object in the namespace.
type ObjectType int

const (
	// TypeFile is a regular file with content branches
	TypeFile ObjectType = iota

	// TypeDir is a directory
	TypeDir

	// TypeAnchor mounts a child store at its position
	TypeAnchor
)

func (t ObjectType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeAnchor:
		return "anchor"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Valid reports whether t is a known object type.
func (t ObjectType) Valid() bool {
	return t == TypeFile || t == TypeDir || t == TypeAnchor
}

// Flags is the persisted flags word of an object.
type Flags uint32

const (
	// FlagSelfExpelled marks an object the user excluded from sync.
	FlagSelfExpelled Flags = 1 << iota

	// flagInheritedExpelled is computed, never persisted: the object or one of
	// its ancestors is self-expelled.
	flagInheritedExpelled

	// flagValidated marks that flagInheritedExpelled has been computed for this
	// in-memory instance.
	flagValidated
)

// persistentFlags masks flags that are stored in the database.
const persistentFlags = FlagSelfExpelled

// Persistent strips computed bits.
func (f Flags) Persistent() Flags {
	return f & persistentFlags
}

// ContentHash is the digest of one content branch.
type ContentHash []byte

func (h ContentHash) String() string {
	return fmt.Sprintf("%x", []byte(h))
}

// Equal compares two hashes. Two nil hashes are equal.
func (h ContentHash) Equal(o ContentHash) bool {
	return bytes.Equal(h, o)
}

// CA holds the content attributes of one branch.
type CA struct {
	Length int64
	MTime  int64

	// Hash is nil until computed; see DirectoryService.ComputeHashIfMissing.
	Hash ContentHash
}

// OA is an immutable snapshot of one object's attributes.
//
// OA values are handed out by the directory service and are never modified
// after validation; mutations produce a fresh instance. Do not keep an OA
// across a release of the core token: re-fetch it instead.
type OA struct {
	soid   SOID
	parent OID
	name   string
	typ    ObjectType
	flags  Flags
	fid    []byte
	cas    map[KIndex]CA
}

// NewOA builds an unvalidated OA. Only the directory service should call it.
func NewOA(soid SOID, parent OID, name string, typ ObjectType, flags Flags, fid []byte, cas map[KIndex]CA) *OA {
	return &OA{
		soid:   soid,
		parent: parent,
		name:   name,
		typ:    typ,
		flags:  flags.Persistent(),
		fid:    fid,
		cas:    cas,
	}
}

// Validate records the inherited expulsion state. It must be called exactly once
// before the OA is published.
func (oa *OA) Validate(parentExpelled bool) {
	if oa.flags&flagValidated != 0 {
		panic(fmt.Sprintf("OA %s validated twice", oa.soid))
	}
	if parentExpelled || oa.flags&FlagSelfExpelled != 0 {
		oa.flags |= flagInheritedExpelled
	}
	oa.flags |= flagValidated
}

// IsValidated reports whether the inherited expulsion flag has been computed.
func (oa *OA) IsValidated() bool {
	return oa.flags&flagValidated != 0
}

func (oa *OA) SOID() SOID       { return oa.soid }
func (oa *OA) Parent() OID      { return oa.parent }
func (oa *OA) Name() string     { return oa.name }
func (oa *OA) Type() ObjectType { return oa.typ }
func (oa *OA) IsFile() bool     { return oa.typ == TypeFile }
func (oa *OA) IsDir() bool      { return oa.typ == TypeDir }
func (oa *OA) IsAnchor() bool   { return oa.typ == TypeAnchor }

// IsDirOrAnchor reports whether the object can contain other objects, directly
// or through the store it mounts.
func (oa *OA) IsDirOrAnchor() bool { return oa.typ != TypeFile }

// FID returns the physical file identifier, or nil.
func (oa *OA) FID() []byte { return oa.fid }

// Flags returns the persisted flags word.
func (oa *OA) Flags() Flags { return oa.flags.Persistent() }

// IsSelfExpelled reports whether the user excluded this very object.
func (oa *OA) IsSelfExpelled() bool {
	return oa.flags&FlagSelfExpelled != 0
}

// IsExpelled reports whether the object or any ancestor is self-expelled.
// It panics if called on an OA that has not been validated.
func (oa *OA) IsExpelled() bool {
	if oa.flags&flagValidated == 0 {
		panic(fmt.Sprintf("inherited expulsion of %s read before validation", oa.soid))
	}
	return oa.flags&flagInheritedExpelled != 0
}

// CAs returns the content branches in ascending KIndex order. Expelled objects
// and non-files report none.
func (oa *OA) CAs() map[KIndex]CA {
	if oa.typ != TypeFile || oa.IsExpelled() {
		return map[KIndex]CA{}
	}
	out := make(map[KIndex]CA, len(oa.cas))
	for k, v := range oa.cas {
		out[k] = v
	}
	return out
}

// KIndices returns the branch indices in ascending order.
func (oa *OA) KIndices() []KIndex {
	cas := oa.CAs()
	out := make([]KIndex, 0, len(cas))
	for k := range cas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CA returns one branch, or nil when absent or expelled.
func (oa *OA) CA(kidx KIndex) *CA {
	if oa.typ != TypeFile || oa.IsExpelled() {
		return nil
	}
	ca, ok := oa.cas[kidx]
	if !ok {
		return nil
	}
	return &ca
}

// CAMaster returns the MASTER branch, or nil.
func (oa *OA) CAMaster() *CA {
	return oa.CA(KIndexMaster)
}

// CARaw returns a branch ignoring expulsion. Used for teardown only.
func (oa *OA) CARaw(kidx KIndex) *CA {
	ca, ok := oa.cas[kidx]
	if !ok {
		return nil
	}
	return &ca
}

func (oa *OA) String() string {
	return fmt.Sprintf("OA{%s parent=%s name=%q type=%s flags=%#x}",
		oa.soid, oa.parent, oa.name, oa.typ, uint32(oa.flags))
}
