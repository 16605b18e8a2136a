// dmap.go gives the kernel a way to read/zero a physical frame's bytes.
// Because the kernel memory set identity-maps [ekernel, PHYSTOP) (spec.md
// §4.4 — unlike biscuit's x86-64 kernel, which maps all of physical
// memory through a separate high "direct map" window, see mem/dmap.go's
// Vdirect/Dmaplen), a physical address in that range is also a valid
// kernel virtual address once the kernel memory set is active: casting
// PhysPageNum.Addr() straight to a pointer is the whole trick.
//
// frameBytesFn is a function variable, not a plain function, following
// the override seam gopher-os uses for every hardware-only primitive
// (kernel/mem/vmm/pdt.go's activePDTFn/mapFn/switchPDTFn) so that
// `go test` can run pmm's and pagetable's logic against an in-process
// byte arena instead of real physical memory.
package pmm

import (
	"unsafe"

	"rvkernel/internal/addr"
	"rvkernel/internal/board"
)

var frameBytesFn = identityMapBytes

// identityMapBytes is the production implementation: it is only safe to
// call once the kernel memory set's identity mapping of physical memory
// is active.
func identityMapBytes(ppn addr.PhysPageNum) *[board.PageSize]byte {
	return (*[board.PageSize]byte)(unsafe.Pointer(uintptr(ppn.Addr())))
}

// Bytes returns the kernel-addressable contents of the frame ppn.
func Bytes(ppn addr.PhysPageNum) *[board.PageSize]byte {
	return frameBytesFn(ppn)
}

// SetFrameBytesFunc installs a replacement for the frame-bytes accessor
// and returns a function that restores the previous one. It exists so
// that other packages' tests (pagetable, memset) can exercise real
// page-table logic without real physical memory or an identity-mapped
// address space to run against — see internal/pmm/pmmtest.
func SetFrameBytesFunc(fn func(addr.PhysPageNum) *[board.PageSize]byte) (restore func()) {
	prev := frameBytesFn
	frameBytesFn = fn
	return func() { frameBytesFn = prev }
}

// FrameTracker is the ownership token for one physical page described in
// spec.md §3: the page is zeroed on creation, and returned to the free
// pool when the tracker is dropped. A *FrameTracker must never be copied;
// callers hold it behind a pointer exactly as they would an RAII guard.
type FrameTracker struct {
	PPN     addr.PhysPageNum
	dropped bool
}

// NewFrameTracker allocates a frame, zeroes it, and returns an owning
// tracker. It reports false if the allocator is exhausted.
func NewFrameTracker() (*FrameTracker, bool) {
	ppn, ok := Alloc()
	if !ok {
		return nil, false
	}
	bytes := Bytes(ppn)
	for i := range bytes {
		bytes[i] = 0
	}
	return &FrameTracker{PPN: ppn}, true
}

// Drop returns the frame to the free pool. It panics if called twice on
// the same tracker (a double free is a fatal kernel bug, spec.md §7).
func (f *FrameTracker) Drop() {
	if f.dropped {
		panic("pmm: FrameTracker dropped twice")
	}
	f.dropped = true
	Dealloc(f.PPN)
}
