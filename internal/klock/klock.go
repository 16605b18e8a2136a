// Package klock implements the three lock flavors spec.md §4.6 specifies
// (Spin, IRQSpin, Ticket) and the lock hand-off slot used across a
// context switch. Ground: biscuit relies on the unmodified sync.Mutex its
// forked runtime still provides (see mem.Physmem_t's embedded
// sync.Mutex); a freestanding kernel has no runtime-backed mutex to rely
// on, so these are hand-rolled atomic spinlocks instead — the one
// component of this expansion that cannot reuse a teacher package
// directly (see DESIGN.md).
package klock

import (
	"runtime"
	"sync/atomic"

	"rvkernel/internal/irq"
)

// Debug toggles recursive-acquisition detection and holder tracking,
// mirroring biscuit's `const Stats = false`-style always-inlinable debug
// toggle (stats/stats.go) rather than a build tag, so the same binary can
// flip it at init for tests.
var Debug = false

// Spin is a ticketless compare-and-swap spinlock.
type Spin struct {
	locked atomic.Bool
	holder int32 // hart ID of current holder, valid only when Debug
}

// Lock busy-waits until the lock is acquired.
func (s *Spin) Lock() { s.LockHart(0) }

// LockHart is Lock with an explicit hart ID, used by Debug-mode
// recursive-acquisition detection; production callers on the single
// supported hart may just call Lock.
func (s *Spin) LockHart(hart int32) {
	for !s.locked.CompareAndSwap(false, true) {
		if Debug && atomic.LoadInt32(&s.holder) == hart+1 {
			panic("dead lock occur")
		}
		runtime.Gosched() // stands in for a PAUSE/WFI hint on real hardware
	}
	if Debug {
		atomic.StoreInt32(&s.holder, hart+1)
	}
}

// Unlock releases the lock.
func (s *Spin) Unlock() {
	if Debug {
		atomic.StoreInt32(&s.holder, 0)
	}
	s.locked.Store(false)
}

// TryLock attempts to acquire the lock without blocking.
func (s *Spin) TryLock() bool {
	return s.locked.CompareAndSwap(false, true)
}

// IRQSpin wraps a Spin with an irq.Guard for the whole critical section,
// as spec.md §4.6 requires of any lock shared with interrupt handlers
// (heap, frame allocator, scheduler queues, syscall table).
type IRQSpin struct {
	inner Spin
	guard *irq.Guard
}

// Lock disables interrupts, then acquires the underlying spinlock.
func (l *IRQSpin) Lock() {
	g := irq.DisableNested()
	l.inner.Lock()
	l.guard = g
}

// Unlock releases the spinlock, then restores the interrupt state the
// matching Lock observed.
func (l *IRQSpin) Unlock() {
	g := l.guard
	l.guard = nil
	l.inner.Unlock()
	g.Restore()
}

// Ticket is the FIFO-fair IRQ lock spec.md §4.6 mandates for the heap
// allocator, to prevent writer starvation under contention.
type Ticket struct {
	next   atomic.Uint64
	living atomic.Uint64 // "now serving"
	guard  *irq.Guard
}

// Lock disables interrupts, draws a ticket, and waits for it to be served.
func (t *Ticket) Lock() {
	g := irq.DisableNested()
	my := t.next.Add(1) - 1
	for t.living.Load() != my {
		runtime.Gosched()
	}
	t.guard = g
}

// Unlock serves the next ticket and restores interrupts.
func (t *Ticket) Unlock() {
	g := t.guard
	t.guard = nil
	t.living.Add(1)
	g.Restore()
}

// HandoffGuard is the type a task's inner lock Lock()/Unlock() normally
// return; it is the payload a HandoffSlot stores across a context switch.
type HandoffGuard interface {
	Unlock()
}

// HandoffSlot is the single-cell guard holder described in spec.md §4.6:
// a running task about to switch away stores its TCB-inner guard here
// instead of calling Unlock, and the next task chosen to run (which may
// be a different goroutine-equivalent entirely) calls Take to drop it.
// This is deliberately NOT a sync primitive of its own — it owns no lock,
// it only extends one guard's lifetime across the assembly-level switch
// boundary, exactly as spec.md describes.
type HandoffSlot struct {
	g HandoffGuard
}

// Store places g in the slot. It panics if the slot is already occupied:
// every Store must be matched by exactly one Take before the next Store
// on the same slot (spec.md §8 invariant 7).
func (s *HandoffSlot) Store(g HandoffGuard) {
	if s.g != nil {
		panic("klock: HandoffSlot already occupied")
	}
	s.g = g
}

// Take removes and unlocks the stored guard. It panics if the slot is
// empty.
func (s *HandoffSlot) Take() {
	if s.g == nil {
		panic("klock: HandoffSlot.Take with nothing stored")
	}
	g := s.g
	s.g = nil
	g.Unlock()
}

// Occupied reports whether a guard is currently stored, used by
// cmd/checklocks-style tests asserting the hand-off discipline.
func (s *HandoffSlot) Occupied() bool { return s.g != nil }
