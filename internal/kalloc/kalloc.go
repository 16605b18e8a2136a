// Package kalloc implements the kernel heap: a fixed-size byte arena
// served by a buddy allocator, guarded by an IRQ-aware ticket lock so
// allocation from interrupt context is safe (spec.md §4.3).
//
// Ground: gopher-os's kernel/mem/physical/allocator.go buddy allocator,
// adapted from a *physical-page* buddy allocator (bitmap-per-order, over
// fixed-size 4KiB pages) to a *byte-heap* buddy allocator serving
// variably-sized kernel objects. A bitmap records only whether a block
// is free, which is enough when every block at a given order has the
// same identity (a page frame); a heap block additionally needs to
// remember *which* address it is once handed out, so this package
// keeps a free-list-per-order (one slice of free block offsets)
// in place of gopher-os's freeBitmap, while keeping its freeCount-per-
// order early-exit idea (orderHasFree) to avoid scanning empty orders.
package kalloc

import (
	"unsafe"

	"rvkernel/internal/klock"
)

// MinBlockShift and MaxOrder bound the buddy tree: the smallest block is
// 1<<MinBlockShift bytes, and the heap is split into at most
// 1<<MaxOrder multiples of that size.
const (
	MinBlockShift = 5 // 32-byte minimum block
	MinBlockSize  = 1 << MinBlockShift
	MaxOrder      = 20 // caps a single heap at 32 MiB
)

// Heap is one buddy-managed byte arena. The zero value is not usable;
// construct with Init.
type Heap struct {
	mu    klock.Ticket
	arena []byte
	// free[order] is the list of offsets (into arena) of free blocks of
	// size MinBlockSize<<order, kept in a Go slice per order; the
	// allocator never writes into the free blocks themselves.
	free     [MaxOrder + 1][]uint64
	order    int // heap size is MinBlockSize << order
	inUse    map[uint64]int // offset -> order, for blocks currently allocated
}

// Init prepares h to serve allocations out of arena, capped at
// MinBlockSize<<MaxOrder. arena need not itself be a power-of-two
// length: Init takes the largest power-of-two prefix of arena as the
// heap and leaves any remainder untouched, the same "round down, don't
// fail" treatment board.Board.KernelHeapSize gets (it is a round
// number of MiB, not necessarily a power of two). The whole usable
// arena starts as a single free block.
func Init(h *Heap, arena []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	order := 0
	for MinBlockSize<<(order+1) <= len(arena) && order < MaxOrder {
		order++
	}
	h.arena = arena[:MinBlockSize<<order]
	h.inUse = make(map[uint64]int)
	for i := range h.free {
		h.free[i] = nil
	}
	h.order = order
	h.free[order] = append(h.free[order], 0)
}

// orderFor returns the smallest order whose block size is >= n bytes.
func orderFor(n int) int {
	order := 0
	for MinBlockSize<<order < n {
		order++
	}
	return order
}

// Alloc reserves a block of at least n bytes and returns it. It panics
// if the heap cannot satisfy the request — heap exhaustion is a fatal
// kernel error per spec.md §4.3 ("allocation failure is fatal").
func (h *Heap) Alloc(n int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	want := orderFor(n)
	if want > h.order {
		panic("kalloc: allocation larger than the heap")
	}

	order := want
	for order <= h.order && len(h.free[order]) == 0 {
		order++
	}
	if order > h.order {
		panic("kalloc: heap exhausted")
	}

	// Split the found block down to the requested order, pushing each
	// upper half onto its own free list as we go.
	off := h.popFree(order)
	for order > want {
		order--
		buddy := off + MinBlockSize<<order
		h.free[order] = append(h.free[order], buddy)
	}
	h.inUse[off] = want
	return h.arena[off : off+uint64(MinBlockSize<<want) : off+uint64(MinBlockSize<<want)]
}

// Free returns a block previously obtained from Alloc, merging with its
// buddy repeatedly while the buddy is also free.
func (h *Heap) Free(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	off := h.offsetOf(b)
	order, ok := h.inUse[off]
	if !ok {
		panic("kalloc: Free of a block not currently allocated")
	}
	delete(h.inUse, off)

	for order < h.order {
		buddy := off ^ (MinBlockSize << order)
		idx := h.indexOfFree(order, buddy)
		if idx < 0 {
			break
		}
		h.free[order] = append(h.free[order][:idx], h.free[order][idx+1:]...)
		if buddy < off {
			off = buddy
		}
		order++
	}
	h.free[order] = append(h.free[order], off)
}

func (h *Heap) offsetOf(b []byte) uint64 {
	if len(b) == 0 {
		panic("kalloc: Free of an empty slice")
	}
	base := uintptr(unsafe.Pointer(&h.arena[0]))
	ptr := uintptr(unsafe.Pointer(&b[0]))
	return uint64(ptr - base)
}

func (h *Heap) popFree(order int) uint64 {
	list := h.free[order]
	off := list[len(list)-1]
	h.free[order] = list[:len(list)-1]
	return off
}

func (h *Heap) indexOfFree(order int, off uint64) int {
	for i, v := range h.free[order] {
		if v == off {
			return i
		}
	}
	return -1
}
