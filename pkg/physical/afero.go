package physical

import (
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// AuxFolder holds physical data that is not part of the visible namespace.
const AuxFolder = ".aux"

// FS implements Storage on an afero filesystem.
//
// Thread Safety:
// FS is driven by the core under its token and is not safe for concurrent
// use. Deferred removals run from commit listeners on the same thread.
type FS struct {
	fs       afero.Fs
	basePath string
}

// NewFS creates a physical storage rooted at basePath on fs.
//
// The base directory is created with permissions 0755 if missing.
//
// Parameters:
//   - fs: Filesystem to operate on (afero.NewOsFs() or afero.NewMemMapFs())
//   - basePath: Root directory of the root store
//
// Returns:
//   - *FS: Initialized storage
//   - error: Returns error if the base directory cannot be created
func NewFS(fs afero.Fs, basePath string) (*FS, error) {
	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create base directory %s", basePath)
	}
	return &FS{fs: fs, basePath: basePath}, nil
}

// Fs returns the underlying filesystem.
func (s *FS) Fs() afero.Fs {
	return s.fs
}

// getFolderPath returns the location of a folder in the visible namespace.
func (s *FS) getFolderPath(path metadata.ResolvedPath) string {
	return filepath.Join(append([]string{s.basePath}, path.Elements...)...)
}

// getFilePath returns the location of one branch of a file. The MASTER branch
// lives at its visible path; conflict branches live under the auxiliary folder.
func (s *FS) getFilePath(path metadata.ResolvedPath, kidx metadata.KIndex) string {
	if kidx.IsMaster() {
		return s.getFolderPath(path)
	}
	parts := []string{s.basePath, AuxFolder, "conflicts", strconv.Itoa(int(kidx))}
	return filepath.Join(append(parts, path.Elements...)...)
}

// getAuxPath returns the auxiliary folder owned by a store.
func (s *FS) getAuxPath(sidx metadata.SIndex) string {
	return filepath.Join(s.basePath, AuxFolder, "stores", sidx.String())
}

// CreateStore creates the folder of a store and its auxiliary folder. Folders
// that did not exist before are removed again if the transaction aborts.
func (s *FS) CreateStore(t *trans.Trans, sidx metadata.SIndex, path metadata.ResolvedPath) error {
	for _, dir := range []string{s.getFolderPath(path), s.getAuxPath(sidx)} {
		exists, err := afero.DirExists(s.fs, dir)
		if err != nil {
			return errors.Wrapf(err, "failed to stat %s", dir)
		}
		if exists {
			continue
		}
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
		created := dir
		t.OnAbort(func() {
			if err := s.fs.RemoveAll(created); err != nil {
				logger.Warn("Failed to undo creation of %s: %v", created, err)
			}
		})
	}
	logger.Debug("Prepared physical folder of store %s at %s", sidx, path.Relative())
	return nil
}

// DeleteStore schedules removal of a store's folder and auxiliary folder at commit.
func (s *FS) DeleteStore(t *trans.Trans, sidx metadata.SIndex, path metadata.ResolvedPath) error {
	s.removeOnCommit(t, s.getFolderPath(path))
	s.removeOnCommit(t, s.getAuxPath(sidx))
	return nil
}

// DeleteFolderRecursively schedules removal of a folder at commit.
func (s *FS) DeleteFolderRecursively(t *trans.Trans, path metadata.ResolvedPath) error {
	s.removeOnCommit(t, s.getFolderPath(path))
	return nil
}

// removeOnCommit defers RemoveAll to commit. Committed listeners cannot fail,
// so removal errors are logged and left to the next cleanup.
func (s *FS) removeOnCommit(t *trans.Trans, dir string) {
	t.OnCommitted(func() {
		if err := s.fs.RemoveAll(dir); err != nil {
			logger.Error("Failed to remove %s: %v", dir, err)
			return
		}
		logger.Debug("Removed %s", dir)
	})
}

// NewFile returns a handle on the file of one branch.
func (s *FS) NewFile(path metadata.ResolvedPath, kidx metadata.KIndex) (File, error) {
	if path.IsEmpty() {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, "the root folder is not a file")
	}
	return &aferoFile{fs: s.fs, path: s.getFilePath(path, kidx)}, nil
}

type aferoFile struct {
	fs   afero.Fs
	path string
}

func (f *aferoFile) Path() string {
	return f.path
}

// Hash returns the SHA-256 digest of the file content.
func (f *aferoFile) Hash() (metadata.ContentHash, error) {
	file, err := f.fs.Open(f.path)
	if os.IsNotExist(err) {
		return nil, metadata.NewError(metadata.ErrNotFound, "physical file %s not found", f.path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", f.path)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", f.path)
	}
	return metadata.ContentHash(h.Sum(nil)), nil
}
