// Package syncstatus tracks which devices hold the current version of every
// object, and aggregates that knowledge up the directory tree.
//
// Every object has a raw status: a bit vector over the device positions of its
// store. Every directory keeps, per device position, a counter of its counted
// children whose effective status has that bit, plus the number of counted
// children. A child is counted when it is neither expelled nor in the trash.
//
// The aggregate of a directory is the set of positions whose counter equals
// the child count. The effective status of a file or anchor is its raw
// status; that of a directory is its raw status and its aggregate combined.
// A change to a child becomes a +1/-1 delta on its parent's counters, which
// propagates upwards only while the parent's effective status keeps changing,
// so every update costs O(depth). Aggregation never crosses stores.
package syncstatus

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/ds"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/metrics"
)

// Aggregator maintains raw statuses and directory counters. Register it as a
// directory service listener.
//
// Not safe for concurrent use; callers hold the core token.
type Aggregator struct {
	metadata.ListenerAdapter

	d       *db.Database
	ds      *ds.DirectoryService
	devices map[metadata.SIndex]*DeviceBitMap
	metrics metrics.AggregatorMetrics
}

// NewAggregator creates an Aggregator. m may be nil.
func NewAggregator(d *db.Database, dirs *ds.DirectoryService, m metrics.AggregatorMetrics) *Aggregator {
	if m == nil {
		m = metrics.NewNoopAggregatorMetrics()
	}
	return &Aggregator{
		d:       d,
		ds:      dirs,
		devices: make(map[metadata.SIndex]*DeviceBitMap),
		metrics: m,
	}
}

// Devices returns the device bit map of a store.
func (a *Aggregator) Devices(sidx metadata.SIndex) (*DeviceBitMap, error) {
	if m, ok := a.devices[sidx]; ok {
		return m, nil
	}
	b, err := a.d.GetDeviceBitMap(sidx)
	if err != nil {
		return nil, err
	}
	m, err := decodeDeviceBitMap(b)
	if err != nil {
		return nil, err
	}
	a.devices[sidx] = m
	return m, nil
}

// ForgetStore drops the cached device bit map of a store whose rows are
// going away.
func (a *Aggregator) ForgetStore(sidx metadata.SIndex) {
	delete(a.devices, sidx)
}

// RegisterDevice returns the position of did in the store, assigning the next
// free one on first use.
func (a *Aggregator) RegisterDevice(t *trans.Trans, sidx metadata.SIndex, did metadata.DID) (int, error) {
	m, err := a.Devices(sidx)
	if err != nil {
		return 0, err
	}
	if i, ok := m.Index(did); ok {
		return i, nil
	}
	next := m.with(did)
	if err := a.d.SetDeviceBitMap(t, sidx, next.bytes()); err != nil {
		return 0, err
	}
	a.devices[sidx] = next
	t.OnAbort(func() { delete(a.devices, sidx) })
	i, _ := next.Index(did)
	return i, nil
}

// RawStatus returns the raw status of an object.
func (a *Aggregator) RawStatus(soid metadata.SOID) (BitVector, error) {
	b, err := a.d.GetSyncStatus(soid)
	if err != nil {
		return BitVector{}, err
	}
	v, err := BitVectorFromBytes(b)
	if err != nil {
		return BitVector{}, metadata.Invariant("raw status of %s: %v", soid, err)
	}
	return v, nil
}

func (a *Aggregator) setRaw(t *trans.Trans, soid metadata.SOID, v BitVector) error {
	b, err := v.Bytes()
	if err != nil {
		return err
	}
	return a.d.SetSyncStatus(t, soid, b)
}

func (a *Aggregator) aggregate(soid metadata.SOID) (*db.AggregateRow, error) {
	row, err := a.d.GetAggregate(soid)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &db.AggregateRow{}
	}
	return row, nil
}

func (a *Aggregator) full(sidx metadata.SIndex, row *db.AggregateRow) (BitVector, error) {
	m, err := a.Devices(sidx)
	if err != nil {
		return BitVector{}, err
	}
	return CounterVector(row.Counters).Full(row.Count, m.Len()), nil
}

// AggregateStatus returns the positions on which every counted child of a
// directory is in sync.
func (a *Aggregator) AggregateStatus(soid metadata.SOID) (BitVector, error) {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return BitVector{}, err
	}
	if !oa.IsDir() {
		return BitVector{}, metadata.NewError(metadata.ErrNotDirectory, "object %s is a %s", soid, oa.Type())
	}
	row, err := a.aggregate(soid)
	if err != nil {
		return BitVector{}, err
	}
	return a.full(soid.SIdx, row)
}

// EffectiveStatus returns the status of an object as seen by its parent.
func (a *Aggregator) EffectiveStatus(soid metadata.SOID) (BitVector, error) {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return BitVector{}, err
	}
	return a.effective(oa)
}

func (a *Aggregator) effective(oa *metadata.OA) (BitVector, error) {
	raw, err := a.RawStatus(oa.SOID())
	if err != nil || !oa.IsDir() {
		return raw, err
	}
	row, err := a.aggregate(oa.SOID())
	if err != nil {
		return BitVector{}, err
	}
	agg, err := a.full(oa.SOID().SIdx, row)
	if err != nil {
		return BitVector{}, err
	}
	return raw.And(agg), nil
}

// DevicesInSync returns the devices holding the current version of an object
// and, for directories, of everything counted below it.
func (a *Aggregator) DevicesInSync(soid metadata.SOID) ([]metadata.DID, error) {
	v, err := a.EffectiveStatus(soid)
	if err != nil {
		return nil, err
	}
	m, err := a.Devices(soid.SIdx)
	if err != nil {
		return nil, err
	}
	return m.DIDs(v), nil
}

// isCounted reports whether oa contributes to its parent's counters.
func (a *Aggregator) isCounted(oa *metadata.OA) (bool, error) {
	if oa.SOID().OID.IsReserved() || oa.IsExpelled() {
		return false, nil
	}
	deleted, err := a.ds.IsDeleted(oa.SOID())
	return !deleted, err
}

// SetRawStatus replaces the raw status of an object and propagates the
// change of its effective status.
func (a *Aggregator) SetRawStatus(t *trans.Trans, soid metadata.SOID, v BitVector) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	a.metrics.RecordRawStatusUpdate()

	counted, err := a.isCounted(oa)
	if err != nil {
		return err
	}
	if !counted {
		return a.setRaw(t, soid, v)
	}

	before, err := a.effective(oa)
	if err != nil {
		return err
	}
	if err := a.setRaw(t, soid, v); err != nil {
		return err
	}
	after, err := a.effective(oa)
	if err != nil {
		return err
	}
	if before.Equal(after) {
		return nil
	}
	return a.propagate(t, metadata.NewSOID(soid.SIdx, oa.Parent()), before, after, 0)
}

// propagate applies the change of a child's effective status from before to
// after, and a change of the number of counted children, to parent and then
// to its ancestors for as long as their effective status changes.
func (a *Aggregator) propagate(t *trans.Trans, parent metadata.SOID, before, after BitVector, countDelta int64) error {
	depth := 0
	defer func() { a.metrics.ObservePropagation(depth) }()

	cur := parent
	for {
		depth++
		if depth > maxDepth {
			return metadata.Invariant("propagation from %s does not reach ROOT", parent)
		}

		oa, err := a.ds.GetOA(cur)
		if err != nil {
			return err
		}
		if !oa.IsDir() {
			return metadata.Invariant("parent %s is a %s", cur, oa.Type())
		}
		raw, err := a.RawStatus(cur)
		if err != nil {
			return err
		}
		row, err := a.aggregate(cur)
		if err != nil {
			return err
		}
		oldAgg, err := a.full(cur.SIdx, row)
		if err != nil {
			return err
		}

		row.Count += countDelta
		counters := CounterVector(row.Counters)
		for _, b := range before.Xor(after).Bits() {
			if after.Test(b) {
				counters = counters.Add(b, 1)
			} else {
				counters = counters.Add(b, -1)
			}
			if c := counters.Get(b); c < 0 || c > row.Count {
				return metadata.Invariant("counter %d of %s out of range: %d of %d", b, cur, c, row.Count)
			}
		}
		if row.Count < 0 {
			return metadata.Invariant("negative child count for %s", cur)
		}
		row.Counters = counters
		if err := a.d.SetAggregate(t, cur, row); err != nil {
			return err
		}

		newAgg, err := a.full(cur.SIdx, row)
		if err != nil {
			return err
		}
		oldEffective, newEffective := raw.And(oldAgg), raw.And(newAgg)
		if cur.OID.IsRoot() || oldEffective.Equal(newEffective) {
			return nil
		}
		before, after, countDelta = oldEffective, newEffective, 0
		cur = metadata.NewSOID(cur.SIdx, oa.Parent())
	}
}

// maxDepth bounds upward walks.
const maxDepth = 1 << 16

// add counts oa in its parent.
func (a *Aggregator) add(t *trans.Trans, oa *metadata.OA) error {
	e, err := a.effective(oa)
	if err != nil {
		return err
	}
	return a.propagate(t, metadata.NewSOID(oa.SOID().SIdx, oa.Parent()), BitVector{}, e, 1)
}

// remove stops counting oa in parent.
func (a *Aggregator) remove(t *trans.Trans, oa *metadata.OA, parent metadata.OID) error {
	e, err := a.effective(oa)
	if err != nil {
		return err
	}
	return a.propagate(t, metadata.NewSOID(oa.SOID().SIdx, parent), e, BitVector{}, -1)
}

// subtree returns the counted objects of the subtree of root, root included,
// parents before children. TRASH is skipped.
func (a *Aggregator) subtree(root *metadata.OA) ([]*metadata.OA, error) {
	out := []*metadata.OA{root}
	for i := 0; i < len(out); i++ {
		oa := out[i]
		if !oa.IsDir() {
			continue
		}
		children, err := a.ds.ListChildren(oa.SOID())
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if c.IsTrash() {
				continue
			}
			coa, err := a.ds.GetOA(metadata.NewSOID(oa.SOID().SIdx, c))
			if err != nil {
				return nil, err
			}
			if coa.IsExpelled() {
				continue
			}
			out = append(out, coa)
		}
	}
	return out, nil
}

// rebuild recomputes the counters of every directory of a subtree from its
// children, deepest first.
func (a *Aggregator) rebuild(t *trans.Trans, root *metadata.OA) error {
	nodes, err := a.subtree(root)
	if err != nil {
		return err
	}

	// Every node appears after its parent, so walking backwards finishes the
	// children of a directory before the directory itself.
	rebuilt := 0
	for i := len(nodes) - 1; i >= 0; i-- {
		dir := nodes[i]
		if !dir.IsDir() {
			continue
		}
		children, err := a.ds.ListChildren(dir.SOID())
		if err != nil {
			return err
		}
		row := &db.AggregateRow{}
		var counters CounterVector
		for _, c := range children {
			if c.IsTrash() {
				continue
			}
			coa, err := a.ds.GetOA(metadata.NewSOID(dir.SOID().SIdx, c))
			if err != nil {
				return err
			}
			if coa.IsExpelled() {
				continue
			}
			row.Count++
			e, err := a.effective(coa)
			if err != nil {
				return err
			}
			for _, b := range e.Bits() {
				counters = counters.Add(b, 1)
			}
		}
		row.Counters = counters
		if err := a.d.SetAggregate(t, dir.SOID(), row); err != nil {
			return err
		}
		rebuilt++
	}
	a.metrics.RecordSubtreeRebuild(rebuilt)
	return nil
}

// Rebuild recomputes every counter of a store from raw statuses.
func (a *Aggregator) Rebuild(t *trans.Trans, sidx metadata.SIndex) error {
	root, err := a.ds.GetOA(metadata.RootSOID(sidx))
	if err != nil {
		return err
	}
	return a.rebuild(t, root)
}

// resetRaw marks every counted object of a subtree out of sync.
func (a *Aggregator) resetRaw(t *trans.Trans, root *metadata.OA) error {
	nodes, err := a.subtree(root)
	if err != nil {
		return err
	}
	for _, oa := range nodes {
		if err := a.d.SetSyncStatus(t, oa.SOID(), nil); err != nil {
			return err
		}
	}
	return nil
}

// ObjectCreated counts a new object, or a subtree restored from the trash
// with its statuses intact.
func (a *Aggregator) ObjectCreated(t *trans.Trans, soid metadata.SOID, _ metadata.OID, _ metadata.ResolvedPath) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	if oa.IsExpelled() {
		return nil
	}
	if oa.IsDir() {
		if err := a.rebuild(t, oa); err != nil {
			return err
		}
	}
	return a.add(t, oa)
}

func (a *Aggregator) ObjectDeleted(t *trans.Trans, soid metadata.SOID, oldParent metadata.OID, _ metadata.ResolvedPath) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	counted, err := a.wasCounted(oa, oldParent)
	if err != nil || !counted {
		return err
	}
	return a.remove(t, oa, oldParent)
}

func (a *Aggregator) ObjectMoved(t *trans.Trans, soid metadata.SOID, oldParent, _ metadata.OID, _, _ metadata.ResolvedPath) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	was, err := a.wasCounted(oa, oldParent)
	if err != nil {
		return err
	}
	is := !oa.IsExpelled()

	if was {
		if err := a.remove(t, oa, oldParent); err != nil {
			return err
		}
	}
	if !is {
		return nil
	}
	if !was {
		// Leaving an expelled directory is a readmission.
		if err := a.resetRaw(t, oa); err != nil {
			return err
		}
		if oa.IsDir() {
			if err := a.rebuild(t, oa); err != nil {
				return err
			}
		}
	}
	return a.add(t, oa)
}

// wasCounted tells whether oa was counted under oldParent, which was live.
func (a *Aggregator) wasCounted(oa *metadata.OA, oldParent metadata.OID) (bool, error) {
	if oa.IsSelfExpelled() {
		return false, nil
	}
	poa, err := a.ds.GetOA(metadata.NewSOID(oa.SOID().SIdx, oldParent))
	if err != nil {
		return false, err
	}
	return !poa.IsExpelled(), nil
}

func (a *Aggregator) ObjectExpelled(t *trans.Trans, soid metadata.SOID, _ metadata.ResolvedPath) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	return a.remove(t, oa, oa.Parent())
}

// ObjectAdmitted counts a readmitted subtree. Its objects are out of sync
// until the status feed reports otherwise.
func (a *Aggregator) ObjectAdmitted(t *trans.Trans, soid metadata.SOID, _ metadata.ResolvedPath) error {
	oa, err := a.ds.GetOA(soid)
	if err != nil {
		return err
	}
	if err := a.resetRaw(t, oa); err != nil {
		return err
	}
	if oa.IsDir() {
		if err := a.rebuild(t, oa); err != nil {
			return err
		}
	}
	return a.add(t, oa)
}

// ObjectContentCreated marks a file out of sync when it gets a MASTER branch,
// which is what happens when a readmitted file is downloaded again.
func (a *Aggregator) ObjectContentCreated(t *trans.Trans, sokid metadata.SOKID, _ metadata.ResolvedPath) error {
	if !sokid.KIdx.IsMaster() {
		return nil
	}
	raw, err := a.RawStatus(sokid.SOID)
	if err != nil || raw.IsEmpty() {
		return err
	}
	return a.SetRawStatus(t, sokid.SOID, BitVector{})
}

func (a *Aggregator) ObjectObliterated(t *trans.Trans, oa *metadata.OA, _ metadata.ResolvedPath) error {
	counted, err := a.isCounted(oa)
	if err != nil || !counted {
		return err
	}
	return a.remove(t, oa, oa.Parent())
}
