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

// MembershipChecker reports whether a store is still referenced by access
// control entries. A store with members survives losing its last parent.
type MembershipChecker interface {
	HasMembers(sidx metadata.SIndex) (bool, error)
}

// NoMembers is the MembershipChecker of single-user deployments.
type NoMembers struct{}

func (NoMembers) HasMembers(metadata.SIndex) (bool, error) { return false, nil }

// DeletionOperator runs in the deleting transaction before a store leaves the
// hierarchy. It must do bounded work only; unbounded cleanup belongs to the
// deferred purge.
type DeletionOperator func(t *trans.Trans, s *Store) error

// Deleter deletes stores.
//
// Deleting a store deletes, depth first, every child store that has no other
// parent, before the store itself. Per-store rows are not removed in the
// deleting transaction: the store is scheduled for deferred purge instead.
type Deleter struct {
	d         *db.Database
	ds        *ds.DirectoryService
	h         *Hierarchy
	phy       physical.Storage
	members   MembershipChecker
	operators []DeletionOperator
	metrics   metrics.StoreMetrics
}

// NewDeleter creates a Deleter. members and m may be nil.
func NewDeleter(d *db.Database, dirs *ds.DirectoryService, h *Hierarchy, phy physical.Storage, members MembershipChecker, m metrics.StoreMetrics) *Deleter {
	if members == nil {
		members = NoMembers{}
	}
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}
	return &Deleter{d: d, ds: dirs, h: h, phy: phy, members: members, metrics: m}
}

// AddOperator registers an immediate operator run on every store deletion.
func (dl *Deleter) AddOperator(op DeletionOperator) {
	dl.operators = append(dl.operators, op)
}

// RemoveParent unlinks sidx from parent. When parent was its last parent and
// no member remains, the store and its orphaned descendants are deleted.
// Calling it for an absent store or link does nothing.
func (dl *Deleter) RemoveParent(t *trans.Trans, sidx, parent metadata.SIndex) error {
	if !dl.h.IsPresent(sidx) {
		return nil
	}
	parents := dl.h.Parents(sidx)
	if !containsSIndex(parents, parent) {
		return nil
	}

	keep := len(parents) > 1
	if !keep {
		hasMembers, err := dl.members.HasMembers(sidx)
		if err != nil {
			return err
		}
		keep = hasMembers
	}
	if keep {
		if err := dl.h.removeParent(t, sidx, parent); err != nil {
			return err
		}
		dl.ds.InvalidateAll()
		return nil
	}
	return dl.deleteRecursively(t, sidx)
}

// deleteRecursively deletes sidx after its children, using an explicit stack.
// Children with another parent or with members are only unlinked.
func (dl *Deleter) deleteRecursively(t *trans.Trans, sidx metadata.SIndex) error {
	type frame struct {
		sidx     metadata.SIndex
		expanded bool
	}
	stack := []frame{{sidx: sidx}}
	seen := map[metadata.SIndex]bool{sidx: true}

	for len(stack) > 0 {
		top := len(stack) - 1
		f := stack[top]

		// An operator may have deleted it through a nested call.
		if !dl.h.IsPresent(f.sidx) {
			stack = stack[:top]
			continue
		}

		if !f.expanded {
			stack[top].expanded = true
			for _, child := range dl.h.Children(f.sidx) {
				if seen[child] {
					return metadata.Invariant("store %s is reachable twice while deleting %s", child, sidx)
				}
				keep := len(dl.h.Parents(child)) > 1
				if !keep {
					hasMembers, err := dl.members.HasMembers(child)
					if err != nil {
						return err
					}
					keep = hasMembers
				}
				if keep {
					if err := dl.h.removeParent(t, child, f.sidx); err != nil {
						return err
					}
					continue
				}
				seen[child] = true
				stack = append(stack, frame{sidx: child})
			}
			continue
		}

		stack = stack[:top]
		if err := dl.deleteOne(t, f.sidx); err != nil {
			return err
		}
	}

	dl.ds.InvalidateAll()
	dl.metrics.SetPresentStores(len(dl.h.All()))
	return nil
}

// deleteOne deletes a store whose children are gone.
func (dl *Deleter) deleteOne(t *trans.Trans, sidx metadata.SIndex) error {
	s, _ := dl.h.Get(sidx)

	path, found, err := dl.ds.ResolveSOIDNullable(metadata.RootSOID(sidx))
	if err != nil {
		return err
	}
	if found {
		if err := dl.phy.DeleteStore(t, sidx, path); err != nil {
			return err
		}
	} else {
		logger.Warn("Store %s has no reachable ROOT, skipping physical deletion", sidx)
	}

	for _, op := range dl.operators {
		if err := op(t, s); err != nil {
			return err
		}
	}
	// A nested call from an operator may have finished the job.
	if !dl.h.IsPresent(sidx) {
		return nil
	}

	if err := dl.d.SchedulePurge(t, sidx); err != nil {
		return err
	}
	if err := dl.h.remove(t, sidx); err != nil {
		return err
	}

	dl.metrics.RecordStoreDeleted()
	logger.Info("Deleted store %s (%s)", sidx, s.SID())
	return nil
}

func containsSIndex(list []metadata.SIndex, sidx metadata.SIndex) bool {
	for _, s := range list {
		if s == sidx {
			return true
		}
	}
	return false
}
