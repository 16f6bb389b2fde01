package store

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// AnchorWatcher keeps store presence in line with anchors: a store is present
// while at least one of its anchors is neither expelled nor in the trash.
// Register it as a directory service listener.
type AnchorWatcher struct {
	metadata.ListenerAdapter

	ds      *ds.DirectoryService
	h       *Hierarchy
	creator *Creator
	deleter *Deleter
}

// NewAnchorWatcher creates an AnchorWatcher.
func NewAnchorWatcher(dirs *ds.DirectoryService, h *Hierarchy, c *Creator, dl *Deleter) *AnchorWatcher {
	return &AnchorWatcher{ds: dirs, h: h, creator: c, deleter: dl}
}

func (w *AnchorWatcher) ObjectCreated(t *trans.Trans, soid metadata.SOID, _ metadata.OID, _ metadata.ResolvedPath) error {
	return w.mount(t, soid)
}

func (w *AnchorWatcher) ObjectAdmitted(t *trans.Trans, soid metadata.SOID, _ metadata.ResolvedPath) error {
	return w.mount(t, soid)
}

func (w *AnchorWatcher) ObjectDeleted(t *trans.Trans, soid metadata.SOID, _ metadata.OID, _ metadata.ResolvedPath) error {
	return w.unmount(t, soid)
}

func (w *AnchorWatcher) ObjectExpelled(t *trans.Trans, soid metadata.SOID, _ metadata.ResolvedPath) error {
	return w.unmount(t, soid)
}

// ObjectMoved follows expulsion inherited through the move: anchors that
// landed under an expelled directory lose their store, anchors that left one
// get it back.
func (w *AnchorWatcher) ObjectMoved(t *trans.Trans, soid metadata.SOID, _, _ metadata.OID, _, _ metadata.ResolvedPath) error {
	anchors, err := w.anchorsUnder(soid)
	if err != nil {
		return err
	}
	for _, a := range anchors {
		if a.IsExpelled() {
			err = w.unmount(t, a.SOID())
		} else {
			err = w.mount(t, a.SOID())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *AnchorWatcher) ObjectObliterated(t *trans.Trans, oa *metadata.OA, _ metadata.ResolvedPath) error {
	if !oa.IsAnchor() {
		return nil
	}
	if target, ok := w.h.SIndexOf(metadata.AnchorSID(oa.SOID().OID)); ok {
		return w.deleter.RemoveParent(t, target, oa.SOID().SIdx)
	}
	return nil
}

// mount creates the missing stores of every admitted anchor under soid.
func (w *AnchorWatcher) mount(t *trans.Trans, soid metadata.SOID) error {
	anchors, err := w.anchorsUnder(soid)
	if err != nil {
		return err
	}
	for _, a := range anchors {
		if a.IsExpelled() {
			continue
		}
		deleted, err := w.ds.IsDeleted(a.SOID())
		if err != nil {
			return err
		}
		if deleted {
			continue
		}
		if target, ok := w.h.SIndexOf(metadata.AnchorSID(a.SOID().OID)); ok && containsSIndex(w.h.Parents(target), a.SOID().SIdx) {
			continue
		}
		if _, err := w.creator.CreateStoreUnderAnchor(t, a.SOID()); err != nil {
			return err
		}
	}
	return nil
}

// unmount removes the link of every anchor under soid to its store.
func (w *AnchorWatcher) unmount(t *trans.Trans, soid metadata.SOID) error {
	anchors, err := w.anchorsUnder(soid)
	if err != nil {
		return err
	}
	for _, a := range anchors {
		target, ok := w.h.SIndexOf(metadata.AnchorSID(a.SOID().OID))
		if !ok {
			continue
		}
		if err := w.deleter.RemoveParent(t, target, a.SOID().SIdx); err != nil {
			return err
		}
	}
	return nil
}

// anchorsUnder returns soid if it is an anchor, or every anchor in the
// subtree of soid within its store.
func (w *AnchorWatcher) anchorsUnder(soid metadata.SOID) ([]*metadata.OA, error) {
	var out []*metadata.OA
	stack := []metadata.SOID{soid}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		oa, err := w.ds.GetOA(cur)
		if err != nil {
			return nil, err
		}
		switch {
		case oa.IsAnchor():
			out = append(out, oa)
		case oa.IsDir():
			children, err := w.ds.ListChildren(cur)
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				stack = append(stack, metadata.NewSOID(cur.SIdx, c))
			}
		}
	}
	return out, nil
}
