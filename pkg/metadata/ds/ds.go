// Package ds implements the directory service: the authoritative store of
// object attributes, content branches and change notifications.
//
// Reads go through a Path→SOID cache and an SOID→OA cache. Every mutation
// invalidates the affected cache entries before computing the paths handed to
// listeners, so that listeners observe post-mutation state. Any transaction
// abort blanket-invalidates both caches.
package ds

import (
	"time"

	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/cache"
	"github.com/marmos91/dittosync/pkg/metadata/db"
	"github.com/marmos91/dittosync/pkg/metadata/resolver"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/physical"
)

// TrashName is the name of the TRASH folder under every store ROOT.
const TrashName = ".sync-trash"

// Default cache sizes.
const (
	DefaultPathCacheSize = 10000
	DefaultOACacheSize   = 10000
)

// Database is the subset of the row store used by the directory service.
type Database interface {
	resolver.Source

	TransManager() *trans.Manager
	HasObject(soid metadata.SOID) (bool, error)
	InsertObject(t *trans.Trans, soid metadata.SOID, row *db.ObjectRow) error
	DeleteObject(t *trans.Trans, soid metadata.SOID) error
	ListChildren(sidx metadata.SIndex, parent metadata.OID) ([]metadata.OID, error)
	HasChildren(sidx metadata.SIndex, parent metadata.OID) (bool, error)
	SetParentAndName(t *trans.Trans, soid metadata.SOID, parent metadata.OID, name string) error
	RenameRoot(t *trans.Trans, sidx metadata.SIndex, name string) error
	SetFlags(t *trans.Trans, soid metadata.SOID, flags metadata.Flags) error
	SetFID(t *trans.Trans, soid metadata.SOID, fid []byte) error
	GetOIDByFID(sidx metadata.SIndex, fid []byte) (metadata.OID, bool, error)
	GetContents(soid metadata.SOID) (map[metadata.KIndex]db.ContentRow, error)
	PutContent(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex, row db.ContentRow) error
	DeleteContent(t *trans.Trans, soid metadata.SOID, kidx metadata.KIndex) error
	ReplaceOID(t *trans.Trans, sidx metadata.SIndex, oldOID, newOID metadata.OID) error
}

// FileProvider gives access to physical files for lazy hashing.
type FileProvider interface {
	NewFile(path metadata.ResolvedPath, kidx metadata.KIndex) (physical.File, error)
}

// Options configures a DirectoryService.
type Options struct {
	// PathCacheSize bounds the Path→SOID cache. Default: DefaultPathCacheSize.
	PathCacheSize int

	// OACacheSize bounds the SOID→OA cache. Default: DefaultOACacheSize.
	OACacheSize int

	// Files is used by ComputeHashIfMissing. May be nil.
	Files FileProvider

	// Metrics may be nil.
	Metrics metrics.MetadataMetrics
}

// DirectoryService is the object metadata store.
//
// It is not safe for concurrent use; callers hold the core token.
type DirectoryService struct {
	db        Database
	tm        *trans.Manager
	stores    resolver.Stores
	resolver  *resolver.Resolver
	files     FileProvider
	cache     *cache.Compound
	listeners []metadata.Listener
	metrics   metrics.MetadataMetrics
}

// New creates a directory service over d. stores gives the view of locally
// present stores used to cross anchors.
func New(d Database, stores resolver.Stores, opts Options) *DirectoryService {
	if opts.PathCacheSize <= 0 {
		opts.PathCacheSize = DefaultPathCacheSize
	}
	if opts.OACacheSize <= 0 {
		opts.OACacheSize = DefaultOACacheSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopMetadataMetrics()
	}

	s := &DirectoryService{
		db:       d,
		tm:       d.TransManager(),
		stores:   stores,
		resolver: resolver.New(d, stores),
		files:    opts.Files,
		cache:    cache.NewCompound(opts.PathCacheSize, opts.OACacheSize, opts.Metrics),
		metrics:  opts.Metrics,
	}
	s.tm.AddListener(abortInvalidator{s})
	return s
}

// abortInvalidator drops every cache entry when a transaction aborts: entries
// loaded or kept during the transaction may reflect discarded writes.
type abortInvalidator struct {
	s *DirectoryService
}

func (abortInvalidator) Committing(*trans.Trans) error { return nil }
func (abortInvalidator) Committed(*trans.Trans)        {}
func (a abortInvalidator) Aborted(*trans.Trans)        { a.s.InvalidateAll() }

// AddListener registers a change listener. Listeners are notified in
// registration order.
func (s *DirectoryService) AddListener(l metadata.Listener) {
	s.listeners = append(s.listeners, l)
}

// InvalidateAll drops every cached path and OA. Components that change how
// paths resolve without going through the directory service, such as store
// creation and deletion, call it.
func (s *DirectoryService) InvalidateAll() {
	s.cache.InvalidateAll()
}

// CacheStats returns the counters of the path and OA caches.
func (s *DirectoryService) CacheStats() (paths, oas cache.Stats) {
	return s.cache.Paths.Stats(), s.cache.OAs.Stats()
}

// Resolver returns the uncached resolver over the same rows.
func (s *DirectoryService) Resolver() *resolver.Resolver {
	return s.resolver
}

func (s *DirectoryService) record(operation string, start time.Time, err *error) {
	s.metrics.RecordOperation(operation, time.Since(start), *err)
}
