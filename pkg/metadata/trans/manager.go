package trans

import (
	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// ErrNested is returned by Begin while another transaction is open.
var ErrNested = errors.New("trans: a transaction is already open")

// Manager hands out transactions over one badger database.
//
// Manager is not safe for concurrent use: callers serialize through the core
// token.
type Manager struct {
	db        *badger.DB
	current   *Trans
	listeners []Listener
	nextID    uint64
}

// NewManager creates a transaction manager over db.
func NewManager(db *badger.DB) *Manager {
	return &Manager{db: db, nextID: 1}
}

// DB returns the underlying database.
func (m *Manager) DB() *badger.DB {
	return m.db
}

// AddListener registers a listener notified of every transaction's outcome.
// Global listeners run before per-transaction listeners on commit, and after
// them on abort.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Begin opens a read-write transaction.
func (m *Manager) Begin() (*Trans, error) {
	if m.current != nil {
		return nil, ErrNested
	}
	t := &Trans{
		m:   m,
		txn: m.db.NewTransaction(true),
		id:  m.nextID,
	}
	m.nextID++
	m.current = t
	return t, nil
}

// Current returns the open transaction, or nil.
func (m *Manager) Current() *Trans {
	return m.current
}

// View runs fn against the open transaction when there is one, so reads
// observe uncommitted writes, or against a fresh read-only view otherwise.
func (m *Manager) View(fn func(txn *badger.Txn) error) error {
	if m.current != nil {
		return fn(m.current.txn)
	}
	return m.db.View(fn)
}

// Run executes fn in a new transaction and commits it when fn succeeds.
func (m *Manager) Run(fn func(t *Trans) error) error {
	t, err := m.Begin()
	if err != nil {
		return err
	}
	defer t.End()

	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}
