// Package physical defines the physical storage collaborator of the metadata
// core and provides an afero-backed implementation.
//
// Physical storage mirrors the namespace on disk: every store owns a folder at
// the path of its anchor (the root store owns the storage root), files live at
// their resolved path, and conflict branches live under an auxiliary folder.
// Destructive operations are deferred to transaction commit so that an abort
// never loses data; creations are undone on abort.
package physical

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
)

// File is a handle on the physical copy of one content branch.
type File interface {
	// Path returns the location of the file within the storage.
	Path() string

	// Hash computes the content hash of the file.
	Hash() (metadata.ContentHash, error)
}

// Storage is the physical storage collaborator.
type Storage interface {
	// CreateStore prepares the folder of a new store located at path.
	CreateStore(t *trans.Trans, sidx metadata.SIndex, path metadata.ResolvedPath) error

	// DeleteStore removes the folder of a store and every auxiliary file it owns.
	DeleteStore(t *trans.Trans, sidx metadata.SIndex, path metadata.ResolvedPath) error

	// DeleteFolderRecursively removes a folder and everything below it.
	DeleteFolderRecursively(t *trans.Trans, path metadata.ResolvedPath) error

	// NewFile returns a handle on the physical file of one branch.
	NewFile(path metadata.ResolvedPath, kidx metadata.KIndex) (File, error)
}
