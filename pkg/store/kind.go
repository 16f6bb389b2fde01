package store

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
)

// Kind selects the behavior of a store. It is persisted with the store row.
type Kind int

const (
	// KindPlain stores keep only the current state of their objects.
	KindPlain Kind = iota

	// KindChangeLog stores also journal every content branch mutation.
	KindChangeLog
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindChangeLog:
		return "changelog"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPlain || k == KindChangeLog
}

// ParseKind parses the configuration name of a kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "plain":
		return KindPlain, nil
	case "changelog":
		return KindChangeLog, nil
	default:
		return 0, fmt.Errorf("unknown store kind %q", s)
	}
}

// ChangeLog reads the journal of a change-log store.
type ChangeLog interface {
	// Changes returns up to limit entries starting at sequence number from.
	// A limit of 0 returns every remaining entry.
	Changes(from uint64, limit int) ([]db.ChangeRow, error)
}

// Store is the in-memory handle of a locally present store.
//
// A handle is permanently unusable once the store's persistent data has been
// deleted: every accessor panics.
type Store struct {
	sidx    metadata.SIndex
	sid     metadata.SID
	kind    Kind
	log     ChangeLog
	deleted bool
}

func (s *Store) checkAlive() {
	if s.deleted {
		panic(fmt.Sprintf("use of deleted store %s (%s)", s.sidx, s.sid))
	}
}

// SIndex returns the local index of the store.
func (s *Store) SIndex() metadata.SIndex {
	s.checkAlive()
	return s.sidx
}

// SID returns the store identifier.
func (s *Store) SID() metadata.SID {
	s.checkAlive()
	return s.sid
}

// Kind returns the store kind.
func (s *Store) Kind() Kind {
	s.checkAlive()
	return s.kind
}

// ChangeLog returns the journal of a change-log store.
func (s *Store) ChangeLog() (ChangeLog, bool) {
	s.checkAlive()
	return s.log, s.log != nil
}

// IsDeleted reports whether the store's data has been deleted. It is the only
// method that is valid on a deleted store.
func (s *Store) IsDeleted() bool {
	return s.deleted
}

func (s *Store) markDeleted() {
	s.deleted = true
}

// Factory builds store handles according to their kind.
type Factory struct {
	d       *db.Database
	rootSID metadata.SID
}

// NewFactory creates a factory. rootSID identifies the root store of the
// local user.
func NewFactory(d *db.Database, rootSID metadata.SID) *Factory {
	return &Factory{d: d, rootSID: rootSID}
}

// New builds the handle of a store.
func (f *Factory) New(sidx metadata.SIndex, sid metadata.SID, kind Kind) *Store {
	s := &Store{sidx: sidx, sid: sid, kind: kind}
	if kind == KindChangeLog {
		s.log = &changeLog{d: f.d, sidx: sidx}
	}
	return s
}

type changeLog struct {
	d    *db.Database
	sidx metadata.SIndex
}

func (l *changeLog) Changes(from uint64, limit int) ([]db.ChangeRow, error) {
	return l.d.ListChanges(l.sidx, from, limit)
}
