package core

import "sync"

// Token is the single coordinating lock of the core. Every metadata mutation
// runs with the token held.
type Token struct {
	mu sync.Mutex
}

func (tk *Token) Lock()   { tk.mu.Lock() }
func (tk *Token) Unlock() { tk.mu.Unlock() }

// ReleaseDuring releases the token, runs fn, and reacquires the token before
// returning. The caller must hold the token. Anything read before the call may
// be stale afterwards.
func (tk *Token) ReleaseDuring(fn func() error) error {
	tk.mu.Unlock()
	defer tk.mu.Lock()
	return fn()
}
