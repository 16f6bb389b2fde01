package store

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// Change kinds recorded in change logs.
const (
	ChangeContentCreated  = "content_created"
	ChangeContentModified = "content_modified"
	ChangeContentDeleted  = "content_deleted"
)

// Journal appends content branch mutations of change-log stores to their
// change log. Register it as a directory service listener.
type Journal struct {
	metadata.ListenerAdapter

	h *Hierarchy
	d *db.Database
}

// NewJournal creates a journal over the stores of h.
func NewJournal(h *Hierarchy, d *db.Database) *Journal {
	return &Journal{h: h, d: d}
}

func (j *Journal) append(t *trans.Trans, sokid metadata.SOKID, kind string) error {
	s, ok := j.h.Get(sokid.SOID.SIdx)
	if !ok {
		return nil
	}
	if _, journaled := s.ChangeLog(); !journaled {
		return nil
	}
	_, err := j.d.AppendChange(t, sokid.SOID.SIdx, db.ChangeRow{OID: sokid.SOID.OID, KIdx: sokid.KIdx, Kind: kind})
	return err
}

func (j *Journal) ObjectContentCreated(t *trans.Trans, sokid metadata.SOKID, _ metadata.ResolvedPath) error {
	return j.append(t, sokid, ChangeContentCreated)
}

func (j *Journal) ObjectContentModified(t *trans.Trans, sokid metadata.SOKID, _ metadata.ResolvedPath) error {
	return j.append(t, sokid, ChangeContentModified)
}

func (j *Journal) ObjectContentDeleted(t *trans.Trans, sokid metadata.SOKID, _ metadata.ResolvedPath) error {
	return j.append(t, sokid, ChangeContentDeleted)
}
