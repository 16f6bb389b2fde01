// Package trans provides the transaction manager every metadata mutation runs under.
//
// A Trans wraps one read-write badger transaction and carries listeners that
// let in-memory structures follow the fate of the durable writes: Committing
// callbacks may still write, Committed callbacks run after the data is durable,
// and Aborted callbacks undo in-memory side effects in reverse registration
// order.
//
// The core is single-threaded: at most one transaction is open at a time.
package trans

import (
	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Listener observes the outcome of a transaction.
type Listener interface {
	// Committing runs before the durable commit and may perform further writes.
	// Returning an error aborts the transaction.
	Committing(t *Trans) error

	// Committed runs after the durable commit succeeded.
	Committed(t *Trans)

	// Aborted runs after the transaction was discarded.
	Aborted(t *Trans)
}

// ListenerAdapter implements Listener with no-ops.
type ListenerAdapter struct{}

func (ListenerAdapter) Committing(*Trans) error { return nil }
func (ListenerAdapter) Committed(*Trans)        {}
func (ListenerAdapter) Aborted(*Trans)          {}

type funcListener struct {
	ListenerAdapter
	onCommitted func()
	onAborted   func()
}

func (l funcListener) Committed(*Trans) {
	if l.onCommitted != nil {
		l.onCommitted()
	}
}

func (l funcListener) Aborted(*Trans) {
	if l.onAborted != nil {
		l.onAborted()
	}
}

type state int

const (
	stateOpen state = iota
	stateCommitted
	stateAborted
)

// Trans is one open read-write transaction.
type Trans struct {
	m         *Manager
	txn       *badger.Txn
	id        uint64
	state     state
	listeners []Listener
}

// ID returns a process-unique, monotonically increasing transaction number.
func (t *Trans) ID() uint64 {
	return t.id
}

// Txn returns the underlying badger transaction. It panics once the
// transaction has ended.
func (t *Trans) Txn() *badger.Txn {
	if t.state != stateOpen {
		panic("trans: use of ended transaction")
	}
	return t.txn
}

// IsOpen reports whether the transaction has neither committed nor aborted.
func (t *Trans) IsOpen() bool {
	return t.state == stateOpen
}

// AddListener registers a listener for this transaction only.
func (t *Trans) AddListener(l Listener) {
	t.listeners = append(t.listeners, l)
}

// OnAbort registers an undo hook.
func (t *Trans) OnAbort(fn func()) {
	t.AddListener(funcListener{onAborted: fn})
}

// OnCommitted registers a hook that runs once the writes are durable.
func (t *Trans) OnCommitted(fn func()) {
	t.AddListener(funcListener{onCommitted: fn})
}

func (t *Trans) allListeners() []Listener {
	all := make([]Listener, 0, len(t.m.listeners)+len(t.listeners))
	all = append(all, t.m.listeners...)
	return append(all, t.listeners...)
}

// Commit makes the transaction durable. On failure the transaction is aborted
// and the error returned.
func (t *Trans) Commit() error {
	if t.state != stateOpen {
		return errors.New("trans: commit of ended transaction")
	}

	// Committing listeners may register further listeners; iterate by index.
	for i := 0; i < len(t.m.listeners)+len(t.listeners); i++ {
		var l Listener
		if i < len(t.m.listeners) {
			l = t.m.listeners[i]
		} else {
			l = t.listeners[i-len(t.m.listeners)]
		}
		if err := l.Committing(t); err != nil {
			t.abort()
			return errors.WithMessage(err, "trans: committing listener failed")
		}
	}

	if err := t.txn.Commit(); err != nil {
		t.abort()
		return errors.Wrap(err, "trans: commit failed")
	}

	t.state = stateCommitted
	t.m.current = nil
	for _, l := range t.allListeners() {
		l.Committed(t)
	}
	return nil
}

// End discards the transaction unless it has committed. It is safe to defer
// End right after Begin and to call it more than once.
func (t *Trans) End() {
	if t.state != stateOpen {
		return
	}
	t.abort()
}

func (t *Trans) abort() {
	t.txn.Discard()
	t.state = stateAborted
	t.m.current = nil

	all := t.allListeners()
	for i := len(all) - 1; i >= 0; i-- {
		all[i].Aborted(t)
	}
}
