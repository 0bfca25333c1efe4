// Package boottime accumulates per-phase wall-clock timing during boot
// (bump-allocator staging, paging setup, tracker seeding, and so on) so
// the boot log can report how long each stage took.
package boottime

import "sync"

// Phase records the accumulated duration of one named boot stage.
type Phase struct {
	Name string
	// Nanos is the accumulated duration in nanoseconds. Boot runs single-
	// threaded until interrupts are armed, but Add can legitimately be
	// called from a deferred cleanup path, so updates go through the
	// embedded mutex rather than a bare add.
	Nanos int64
	mu    sync.Mutex
}

// Add adds delta nanoseconds to the phase's accumulated time.
func (p *Phase) Add(delta int64) {
	p.mu.Lock()
	p.Nanos += delta
	p.mu.Unlock()
}

// Timer tracks every named phase observed during one boot.
type Timer struct {
	phases []*Phase
}

// Phase returns the named phase, creating it if this is the first time
// it has been seen.
func (t *Timer) Phase(name string) *Phase {
	for _, p := range t.phases {
		if p.Name == name {
			return p
		}
	}
	p := &Phase{Name: name}
	t.phases = append(t.phases, p)
	return p
}

// Phases returns every phase recorded so far, in first-seen order.
func (t *Timer) Phases() []*Phase {
	return t.phases
}

// Now is the clock boot timing is measured against. now is a parameter
// rather than a direct time.Now() call since early boot, before the
// LAPIC timer and any RTC driver are armed, has no working clock source;
// callers wire in whatever monotonic counter they have (for instance
// apic.Ticks, scaled to nanoseconds).
type Now func() int64

// Track wraps a start/stop pair around fn, adding the elapsed time (per
// now) to phase.
func Track(phase *Phase, now Now, fn func()) {
	start := now()
	fn()
	phase.Add(now() - start)
}
