// Package epoch implements a spinlock-backed mutex that exposes its
// internal generation count to callers.
//
// The counter doubles as a seqlock-style epoch: it is even while unlocked
// and odd while locked, so a reader that only needs a best-effort
// consistency check can sample Epoch() without taking the lock at all.
package epoch

import (
	"runtime"
	"sync/atomic"
)

// Mutex is a mutual-exclusion primitive built on a single atomic word.
// It is not fair and provides no notification; waiters spin.
//
// The zero value is an unlocked Mutex.
type Mutex struct {
	word atomic.Uint64
}

// Locked reports whether m is currently held by some caller.
//
// This cannot be used to test whether the current goroutine holds the
// lock, only whether anyone does.
func (m *Mutex) Locked() bool {
	return m.Epoch()&1 == 1
}

// Epoch returns the current generation count of m.
func (m *Mutex) Epoch() uint64 {
	return m.word.Load()
}

// Lock blocks until m is acquired, bumping the epoch by one.
func (m *Mutex) Lock() {
	for {
		old := m.word.Load()
		if old&1 == 0 && m.word.CompareAndSwap(old, old+1) {
			return
		}
		for m.Locked() {
			runtime.Gosched()
		}
	}
}

// Unlock releases m. The caller must currently hold the lock.
func (m *Mutex) Unlock() {
	m.word.Add(1)
}
