package ds

import (
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/pkg/errors"
)

// Notification kinds, as reported to metrics.
const (
	kindCreated         = "created"
	kindDeleted         = "deleted"
	kindMoved           = "moved"
	kindContentCreated  = "content_created"
	kindContentModified = "content_modified"
	kindContentDeleted  = "content_deleted"
	kindExpelled        = "expelled"
	kindAdmitted        = "admitted"
	kindObliterated     = "obliterated"
)

// notify calls fn for every listener in registration order and stops at the
// first error, which the caller must treat as fatal to the transaction.
func (s *DirectoryService) notify(kind string, fn func(l metadata.Listener) error) error {
	s.metrics.RecordNotification(kind)
	for _, l := range s.listeners {
		if err := fn(l); err != nil {
			return errors.WithMessagef(err, "%s listener failed", kind)
		}
	}
	return nil
}
