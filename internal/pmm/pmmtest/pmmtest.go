// Package pmmtest gives other packages' tests a host-backed stand-in for
// physical memory, since go test cannot identity-map real frames. It is
// the cross-package counterpart of gopher-os's in-package override seam
// (kernel/mem/vmm/pdt.go's activePDTFn/mapFn) applied to internal/pmm's
// frame-bytes accessor.
package pmmtest

import (
	"testing"

	"rvkernel/internal/addr"
	"rvkernel/internal/board"
	"rvkernel/internal/pmm"
)

// UseHostArena installs an in-process byte arena as the backing store
// for every PhysPageNum used during t, restoring the previous accessor
// when t finishes. It also re-initializes the frame allocator's
// [lo, hi) range.
func UseHostArena(t *testing.T, lo, hi addr.PhysPageNum) {
	t.Helper()
	arena := map[addr.PhysPageNum]*[board.PageSize]byte{}
	restore := pmm.SetFrameBytesFunc(func(ppn addr.PhysPageNum) *[board.PageSize]byte {
		pg, ok := arena[ppn]
		if !ok {
			pg = new([board.PageSize]byte)
			arena[ppn] = pg
		}
		return pg
	})
	t.Cleanup(restore)
	pmm.Init(lo, hi)
}
