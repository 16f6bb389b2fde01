// Package db implements the durable row tables backing the metadata layer.
//
// Every table lives in one badger database under a one-byte tag (see keys.go).
// Reads go through the transaction manager so that they observe the writes of
// the open transaction; writes require a *trans.Trans.
package db

import (
	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metadata"
	"github.com/marmos91/dittosync/pkg/metadata/trans"
	"github.com/pkg/errors"
)

// Options configures how the badger database is opened.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the database entirely in memory.
	InMemory bool
}

// Open opens the badger database described by opts.
func Open(opts Options) (*badger.DB, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("database path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open badger database at %q", opts.Path)
	}
	logger.Debug("Opened metadata database (in_memory=%v path=%s)", opts.InMemory, opts.Path)
	return db, nil
}

// Database provides typed access to every metadata table.
type Database struct {
	tm *trans.Manager
}

// New creates a Database reading and writing through tm.
func New(tm *trans.Manager) *Database {
	return &Database{tm: tm}
}

// TransManager returns the transaction manager the database reads through.
func (d *Database) TransManager() *trans.Manager {
	return d.tm
}

// get returns a copy of the value at key, or nil when the key is absent.
func (d *Database) get(key []byte) ([]byte, error) {
	var out []byte
	err := d.tm.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, metadata.NewError(metadata.ErrIOError, "read %x: %v", key, err)
	}
	return out, nil
}

func (d *Database) has(key []byte) (bool, error) {
	var found bool
	err := d.tm.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, metadata.NewError(metadata.ErrIOError, "read %x: %v", key, err)
	}
	return found, nil
}

func set(t *trans.Trans, key, value []byte) error {
	if err := t.Txn().Set(key, value); err != nil {
		return metadata.NewError(metadata.ErrIOError, "write %x: %v", key, err)
	}
	return nil
}

func del(t *trans.Trans, key []byte) error {
	if err := t.Txn().Delete(key); err != nil {
		return metadata.NewError(metadata.ErrIOError, "delete %x: %v", key, err)
	}
	return nil
}

type kv struct {
	key   []byte
	value []byte
}

// scan collects up to limit rows under prefix (all rows when limit <= 0).
// Results are copied and the iterator closed before returning: badger allows
// a single iterator per read-write transaction.
func (d *Database) scan(prefix []byte, keysOnly bool, limit int) ([]kv, error) {
	var out []kv
	err := d.tm.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = !keysOnly
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			row := kv{key: item.KeyCopy(nil)}
			if !keysOnly {
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				row.value = v
			}
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, metadata.NewError(metadata.ErrIOError, "scan %x: %v", prefix, err)
	}
	return out, nil
}

// deletePrefix removes every row under prefix.
func (d *Database) deletePrefix(t *trans.Trans, prefix []byte) error {
	rows, err := d.scan(prefix, true, 0)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := del(t, r.key); err != nil {
			return err
		}
	}
	return nil
}

func oidFromValue(b []byte) (metadata.OID, error) {
	oid, err := metadata.OIDFromBytes(b)
	if err != nil {
		return metadata.OID{}, metadata.Invariant("corrupt oid value %x: %v", b, err)
	}
	return oid, nil
}
