// Package pmm implements the physical frame allocator: a cursor over
// [current, end) physical page numbers with a free-stack for recycled
// frames, guarded by one IRQ-aware lock (spec.md §4.2).
//
// Ground: biscuit's mem.Physmem_t free-list-by-index design
// (_phys_new/_phys_put walk a singly linked free list threaded through
// the page array itself, see mem/mem.go). This package drops biscuit's
// refcounting and per-CPU free-list caching: spec.md's Non-goals exclude
// SMP and COW, so neither a refcount above 1 nor a per-hart cache has any
// caller that could produce it, and carrying them would be speculative
// generality the instructions governing this expansion forbid.
package pmm

import (
	"rvkernel/internal/addr"
	"rvkernel/internal/klock"
)

// Allocator is the frame allocator's package-global state.
type Allocator struct {
	mu      klock.IRQSpin
	current addr.PhysPageNum
	end     addr.PhysPageNum
	free    []addr.PhysPageNum // recycled frames, LIFO
}

// Global is the kernel's single physical memory allocator instance.
var Global Allocator

// Init sets the allocatable range to [l, r) and clears the free stack.
// Must be called exactly once, after the kernel memory set's extent
// ([ekernel, PHYSTOP)) is known.
func Init(l, r addr.PhysPageNum) {
	Global.mu.Lock()
	defer Global.mu.Unlock()
	Global.current = l
	Global.end = r
	Global.free = Global.free[:0]
}

// Alloc reserves one physical frame, preferring a recycled frame over
// advancing the cursor, and reports false if none remain.
func Alloc() (addr.PhysPageNum, bool) {
	Global.mu.Lock()
	defer Global.mu.Unlock()
	if n := len(Global.free); n > 0 {
		ppn := Global.free[n-1]
		Global.free = Global.free[:n-1]
		return ppn, true
	}
	if Global.current >= Global.end {
		return 0, false
	}
	ppn := Global.current
	Global.current++
	return ppn, true
}

// Dealloc returns ppn to the free stack. It panics on a double free or on
// a frame that was never handed out by Alloc, matching the fatal-kernel-
// invariant policy spec.md §7/§8 specify.
func Dealloc(ppn addr.PhysPageNum) {
	Global.mu.Lock()
	defer Global.mu.Unlock()
	if ppn >= Global.current {
		panic("pmm: dealloc of frame never allocated")
	}
	for _, f := range Global.free {
		if f == ppn {
			panic("pmm: double free")
		}
	}
	Global.free = append(Global.free, ppn)
}

// FreeCount reports the number of frames currently recycled on the free
// stack, used by tests to assert invariant 3 of spec.md §8
// ("frame_alloc(); drop leaves the free stack ... unchanged").
func FreeCount() int {
	Global.mu.Lock()
	defer Global.mu.Unlock()
	return len(Global.free)
}
