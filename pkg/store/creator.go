package store

import (
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/physical"
)

// CreationOperator runs in the creating transaction once a store is registered
// and its ROOT and TRASH exist. path is the resolved path of the store ROOT.
type CreationOperator func(t *trans.Trans, s *Store, path metadata.ResolvedPath) error

// Creator creates stores.
type Creator struct {
	d         *db.Database
	ds        *ds.DirectoryService
	h         *Hierarchy
	phy       physical.Storage
	kind      Kind
	operators []CreationOperator
	metrics   metrics.StoreMetrics
}

// NewCreator creates a Creator. New stores get the given kind. m may be nil.
func NewCreator(d *db.Database, dirs *ds.DirectoryService, h *Hierarchy, phy physical.Storage, kind Kind, m metrics.StoreMetrics) *Creator {
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}
	return &Creator{d: d, ds: dirs, h: h, phy: phy, kind: kind, metrics: m}
}

// AddOperator registers an operator run on every store creation, after the
// physical storage has been prepared.
func (c *Creator) AddOperator(op CreationOperator) {
	c.operators = append(c.operators, op)
}

// CreateRootStore creates the root store of the local user.
//
// Returns ErrAlreadyExists if the root store is present.
func (c *Creator) CreateRootStore(t *trans.Trans) (*Store, error) {
	if c.h.HasRoot() {
		return nil, metadata.NewError(metadata.ErrAlreadyExists, "root store %s already exists", c.h.Root())
	}
	sid := c.h.RootSID()
	sidx, err := c.prepare(t, sid, "")
	if err != nil {
		return nil, err
	}
	s, err := c.h.add(t, sidx, sid, c.kind, 0, false)
	if err != nil {
		return nil, err
	}
	return s, c.finish(t, s, metadata.RootResolvedPath(sid))
}

// CreateStoreUnderAnchor makes the store mounted by an existing anchor
// present. If the store is already present, the anchor's store becomes one
// more parent of it.
func (c *Creator) CreateStoreUnderAnchor(t *trans.Trans, anchor metadata.SOID) (*Store, error) {
	oa, err := c.ds.GetOA(anchor)
	if err != nil {
		return nil, err
	}
	if !oa.IsAnchor() {
		return nil, metadata.NewError(metadata.ErrNotExpectedType, "object %s is a %s, not an anchor", anchor, oa.Type())
	}
	if !c.h.IsPresent(anchor.SIdx) {
		return nil, metadata.NewError(metadata.ErrNotFound, "parent store %s is not present", anchor.SIdx)
	}

	sid := metadata.AnchorSID(anchor.OID)
	if sidx, ok := c.h.SIndexOf(sid); ok {
		if err := c.h.addParent(t, sidx, anchor.SIdx); err != nil {
			return nil, err
		}
		c.ds.InvalidateAll()
		s, _ := c.h.Get(sidx)
		return s, nil
	}

	sidx, err := c.prepare(t, sid, oa.Name())
	if err != nil {
		return nil, err
	}
	s, err := c.h.add(t, sidx, sid, c.kind, anchor.SIdx, true)
	if err != nil {
		return nil, err
	}
	// The anchor now resolves to the new ROOT.
	c.ds.InvalidateAll()

	path, err := c.ds.ResolveSOID(metadata.RootSOID(sidx))
	if err != nil {
		return nil, err
	}
	return s, c.finish(t, s, path)
}

// CreateChildStore creates an anchor named name under the directory parent
// and the store it mounts.
func (c *Creator) CreateChildStore(t *trans.Trans, parent metadata.SOID, name string, sid metadata.SID) (*Store, error) {
	anchor := metadata.NewSOID(parent.SIdx, metadata.AnchorOID(sid))
	if err := c.ds.CreateOA(t, parent.SIdx, anchor.OID, parent.OID, name, metadata.TypeAnchor, 0); err != nil {
		return nil, err
	}
	// An anchor watcher may already have made the store present.
	return c.CreateStoreUnderAnchor(t, anchor)
}

// prepare allocates (or recalls) the index of sid, finishes any cleanup left
// over from a previous incarnation and creates ROOT and TRASH.
func (c *Creator) prepare(t *trans.Trans, sid metadata.SID, rootName string) (metadata.SIndex, error) {
	sidx, err := c.d.AllocateSIndex(t, sid)
	if err != nil {
		return 0, err
	}
	if err := c.purgeLeftovers(t, sidx); err != nil {
		return 0, err
	}
	if err := c.ds.CreateOA(t, sidx, metadata.OIDRoot, metadata.OIDRoot, rootName, metadata.TypeDir, 0); err != nil {
		return 0, err
	}
	if err := c.ds.CreateOA(t, sidx, metadata.OIDTrash, metadata.OIDRoot, ds.TrashName, metadata.TypeDir, 0); err != nil {
		return 0, err
	}
	return sidx, nil
}

// purgeLeftovers removes in one go the rows of a recalled index whose
// deferred cleanup has not completed yet.
func (c *Creator) purgeLeftovers(t *trans.Trans, sidx metadata.SIndex) error {
	pending, err := c.d.PendingPurges()
	if err != nil {
		return err
	}
	for _, p := range pending {
		if p != sidx {
			continue
		}
		logger.Debug("Purging leftovers of store %s before re-creation", sidx)
		for _, table := range db.StoreTables {
			if _, err := c.d.PurgeTable(t, table, sidx, 0); err != nil {
				return err
			}
		}
		return c.d.CompletePurge(t, sidx)
	}
	return nil
}

func (c *Creator) finish(t *trans.Trans, s *Store, path metadata.ResolvedPath) error {
	if err := c.phy.CreateStore(t, s.SIndex(), path); err != nil {
		return err
	}
	for _, op := range c.operators {
		if err := op(t, s, path); err != nil {
			return err
		}
	}

	c.metrics.RecordStoreCreated(s.Kind().String())
	c.metrics.SetPresentStores(len(c.h.All()))
	logger.Info("Created %s store %s (%s) at %s", s.Kind(), s.SIndex(), s.SID(), path)
	return nil
}
