package metadata

import (
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// Listener receives change notifications from the directory service.
//
// Callbacks run synchronously inside the mutating transaction, before commit,
// in registration order. They observe post-mutation state (caches are already
// invalidated) and may perform further metadata mutations, but must not block
// or try to acquire the core token. A returned error aborts the transaction.
//
// "Deleted" is a move into the trash subtree, not physical removal. Physical
// removal of a row is reported as obliteration.
type Listener interface {
	// ObjectCreated fires when an object appears outside the trash, either
	// by creation or by being moved out of the trash.
	ObjectCreated(t *trans.Trans, soid SOID, parent OID, path ResolvedPath) error

	// ObjectDeleted fires when an object is moved from outside the trash into it.
	// pathFrom is the path before the move.
	ObjectDeleted(t *trans.Trans, soid SOID, oldParent OID, pathFrom ResolvedPath) error

	// ObjectMoved fires on renames and moves between two non-trash parents.
	ObjectMoved(t *trans.Trans, soid SOID, oldParent, newParent OID, pathFrom, pathTo ResolvedPath) error

	// ObjectContentCreated fires when a content branch is added to a file.
	ObjectContentCreated(t *trans.Trans, sokid SOKID, path ResolvedPath) error

	// ObjectContentModified fires when a branch's length or mtime changes.
	ObjectContentModified(t *trans.Trans, sokid SOKID, path ResolvedPath) error

	// ObjectContentDeleted fires when a content branch is removed.
	ObjectContentDeleted(t *trans.Trans, sokid SOKID, path ResolvedPath) error

	// ObjectExpelled fires when an object's effective expulsion turns on.
	ObjectExpelled(t *trans.Trans, soid SOID, path ResolvedPath) error

	// ObjectAdmitted fires when an object's effective expulsion turns off.
	ObjectAdmitted(t *trans.Trans, soid SOID, path ResolvedPath) error

	// ObjectObliterated fires right before an object row is removed.
	// oa is the last state of the object.
	ObjectObliterated(t *trans.Trans, oa *OA, path ResolvedPath) error
}

// ListenerAdapter implements Listener with no-ops. Embed it to implement only
// the callbacks of interest.
type ListenerAdapter struct{}

func (ListenerAdapter) ObjectCreated(*trans.Trans, SOID, OID, ResolvedPath) error { return nil }
func (ListenerAdapter) ObjectDeleted(*trans.Trans, SOID, OID, ResolvedPath) error { return nil }
func (ListenerAdapter) ObjectMoved(*trans.Trans, SOID, OID, OID, ResolvedPath, ResolvedPath) error {
	return nil
}
func (ListenerAdapter) ObjectContentCreated(*trans.Trans, SOKID, ResolvedPath) error  { return nil }
func (ListenerAdapter) ObjectContentModified(*trans.Trans, SOKID, ResolvedPath) error { return nil }
func (ListenerAdapter) ObjectContentDeleted(*trans.Trans, SOKID, ResolvedPath) error  { return nil }
func (ListenerAdapter) ObjectExpelled(*trans.Trans, SOID, ResolvedPath) error         { return nil }
func (ListenerAdapter) ObjectAdmitted(*trans.Trans, SOID, ResolvedPath) error         { return nil }
func (ListenerAdapter) ObjectObliterated(*trans.Trans, *OA, ResolvedPath) error       { return nil }
