// Package pagetable implements the Sv39 three-level page-table walker
// (spec.md §4.1): PTE encoding, map/unmap/translate, SATP token
// conversion, and the copy-in/copy-out helpers used to move bytes
// between kernel and user address spaces.
//
// Ground: biscuit's vm/as.go walks an x86-64 4-level, non-canonical page
// table with the same "lock, look up, fault or translate" shape
// (Userdmap8_inner, Lockassert_pmap); this package keeps that shape while
// switching to Sv39's 3-level, canonical-VA scheme and to spec.md's
// simpler ownership model (a PageTable owns every intermediate frame it
// allocated, no refcounting — see internal/pmm's header for why
// biscuit's refcounting is dropped).
package pagetable

import (
	"unsafe"

	"rvkernel/internal/addr"
	"rvkernel/internal/defs"
	"rvkernel/internal/pmm"
	"rvkernel/internal/util"
)

// PTEFlags is the 10-bit flag set of an Sv39 page-table entry.
type PTEFlags uint16

const (
	V   PTEFlags = 1 << 0 // valid
	R   PTEFlags = 1 << 1 // readable
	W   PTEFlags = 1 << 2 // writable
	X   PTEFlags = 1 << 3 // executable
	U   PTEFlags = 1 << 4 // user accessible
	G   PTEFlags = 1 << 5 // global
	A   PTEFlags = 1 << 6 // accessed
	D   PTEFlags = 1 << 7 // dirty
	RW0 PTEFlags = 1 << 8 // reserved for software
	RW1 PTEFlags = 1 << 9 // reserved for software
)

const (
	ppnShift = 10
	ppnMask  = (uint64(1) << 44) - 1
	flagMask = uint64(1)<<10 - 1
)

// PTE is one 64-bit Sv39 page-table entry.
type PTE uint64

// NewPTE packs a physical page number and flag set into a PTE.
func NewPTE(ppn addr.PhysPageNum, flags PTEFlags) PTE {
	return PTE(uint64(ppn)<<ppnShift | uint64(flags)&flagMask)
}

// Flags returns the flag bits of the entry.
func (p PTE) Flags() PTEFlags { return PTEFlags(uint64(p) & flagMask) }

// PPN returns the physical page number the entry names.
func (p PTE) PPN() addr.PhysPageNum { return addr.PhysPageNum((uint64(p) >> ppnShift) & ppnMask) }

// IsValid reports whether V is set.
func (p PTE) IsValid() bool { return p.Flags()&V != 0 }

// IsLeaf reports whether any of R, W, X is set — a leaf maps a frame
// rather than pointing at the next table level.
func (p PTE) IsLeaf() bool { return p.Flags()&(R|W|X) != 0 }

// satpModeSv39 is the SATP MODE field value for Sv39, per spec.md §4.1
// ("mode=8 in high nibble | root PPN").
const satpModeSv39 = uint64(8) << 60

// PageTable is the per-address-space page table: a root physical page
// plus the set of intermediate frames it owns. Its lifetime is the
// address space (MemorySet) that owns it.
type PageTable struct {
	root   addr.PhysPageNum
	frames []*pmm.FrameTracker
	// borrowed is true for a PageTable built with FromToken: it owns no
	// frames and must never allocate, matching spec.md §4.1's
	// "construct a read-only walker from a root PPN (no frame
	// ownership); used for cross-address-space reads by the kernel."
	borrowed bool
}

// New allocates a fresh root frame and returns an owning PageTable.
func New() (*PageTable, bool) {
	root, ok := pmm.NewFrameTracker()
	if !ok {
		return nil, false
	}
	return &PageTable{root: root.PPN, frames: []*pmm.FrameTracker{root}}, true
}

// FromToken builds a read-only walker over the page table named by an
// SATP-format token, owning no frames.
func FromToken(token uint64) *PageTable {
	return &PageTable{root: addr.PhysPageNum(token & ppnMask), borrowed: true}
}

// Token returns the SATP-format token for this page table (spec.md §4.1).
func (pt *PageTable) Token() uint64 {
	return satpModeSv39 | uint64(pt.root)
}

func tableEntries(ppn addr.PhysPageNum) *[512]PTE {
	bytes := pmm.Bytes(ppn)
	return (*[512]PTE)(unsafe.Pointer(bytes))
}

// findPTE walks the three Sv39 levels for vpn. If create is true, it
// allocates zeroed frames for any missing intermediate table and returns
// nil only if such an allocation fails; otherwise it stops and returns nil
// at the first invalid non-leaf entry.
func (pt *PageTable) findPTE(vpn addr.VirtPageNum, create bool) *PTE {
	idx := vpn.Indexes()
	ppn := pt.root
	var result *PTE
	for level := 0; level < 3; level++ {
		table := tableEntries(ppn)
		pte := &table[idx[level]]
		if level == 2 {
			result = pte
			break
		}
		if !pte.IsValid() {
			if !create {
				return nil
			}
			if pt.borrowed {
				panic("pagetable: cannot allocate through a borrowed (FromToken) walker")
			}
			frame, ok := pmm.NewFrameTracker()
			if !ok {
				return nil
			}
			pt.frames = append(pt.frames, frame)
			*pte = NewPTE(frame.PPN, V)
		}
		ppn = pte.PPN()
	}
	return result
}

// Map installs ppn at vpn with the given flags (V is added automatically).
// It is a fatal kernel bug to Map an already-valid leaf — spec.md §8
// ("PageTable::map on an already-valid VPN panics").
func (pt *PageTable) Map(vpn addr.VirtPageNum, ppn addr.PhysPageNum, flags PTEFlags) {
	pte := pt.findPTE(vpn, true)
	if pte == nil {
		panic("pagetable: Map failed to allocate intermediate tables")
	}
	if pte.IsValid() {
		panic("pagetable: Map of an already-valid VPN")
	}
	*pte = NewPTE(ppn, flags|V)
}

// Unmap clears the leaf PTE for vpn. It is a fatal kernel bug to Unmap an
// invalid entry — spec.md §8 ("PageTable::unmap on an invalid VPN panics").
func (pt *PageTable) Unmap(vpn addr.VirtPageNum) {
	pte := pt.findPTE(vpn, false)
	if pte == nil || !pte.IsValid() {
		panic("pagetable: Unmap of an invalid VPN")
	}
	*pte = 0
}

// Translate returns a copy of the leaf PTE for vpn, or false if any level
// of the walk is invalid.
func (pt *PageTable) Translate(vpn addr.VirtPageNum) (PTE, bool) {
	pte := pt.findPTE(vpn, false)
	if pte == nil || !pte.IsValid() {
		return 0, false
	}
	return *pte, true
}

// TranslateVA translates the page containing va and recombines the page
// offset, or returns false if the containing page is unmapped.
func (pt *PageTable) TranslateVA(va addr.VirtAddr) (addr.PhysAddr, bool) {
	pte, ok := pt.Translate(va.Floor())
	if !ok {
		return 0, false
	}
	base := pte.PPN().Addr()
	return addr.PhysAddr(uint64(base) + va.PageOffset()), true
}

// CopyFromUser copies len(dst) bytes from the user virtual address srcUA
// in the address space named by token into dst, walking page by page.
// It fails with a PageNotMapped MemError on the first unmapped page and
// performs no partial write to dst beyond the bytes already copied from
// fully mapped pages (spec.md §8's boundary behavior).
func CopyFromUser(token uint64, dst []byte, srcUA addr.VirtAddr) error {
	pt := FromToken(token)
	off := 0
	va := srcUA
	for off < len(dst) {
		pa, ok := pt.TranslateVA(va)
		if !ok {
			return defs.New(defs.PageNotMapped)
		}
		page := pmm.Bytes(pa.Floor())
		start := pa.PageOffset()
		n := uint64(len(dst)-off)
		room := uint64(len(page)) - start
		if n > room {
			n = room
		}
		copy(dst[off:uint64(off)+n], page[start:start+n])
		off += int(n)
		va = addr.VirtAddr(uint64(va) + n)
	}
	return nil
}

// CopyToUser is CopyFromUser's mirror image: it copies src into the user
// address space named by token starting at dstUA.
func CopyToUser(token uint64, dstUA addr.VirtAddr, src []byte) error {
	pt := FromToken(token)
	off := 0
	va := dstUA
	for off < len(src) {
		pa, ok := pt.TranslateVA(va)
		if !ok {
			return defs.New(defs.PageNotMapped)
		}
		page := pmm.Bytes(pa.Floor())
		start := pa.PageOffset()
		n := uint64(len(src)-off)
		room := uint64(len(page)) - start
		if n > room {
			n = room
		}
		copy(page[start:start+n], src[off:uint64(off)+n])
		off += int(n)
		va = addr.VirtAddr(uint64(va) + n)
	}
	return nil
}

// TranslatedByteBuffers returns a lazy sequence of kernel-addressable
// byte slices covering [va, va+length) in the address space named by
// token, one slice per touched page, for callers that want to perform
// scatter I/O without copying through an intermediate buffer (spec.md
// §4.1).
func TranslatedByteBuffers(token uint64, va addr.VirtAddr, length int) ([][]byte, error) {
	pt := FromToken(token)
	var out [][]byte
	remaining := length
	cur := va
	for remaining > 0 {
		pa, ok := pt.TranslateVA(cur)
		if !ok {
			return nil, defs.New(defs.PageNotMapped)
		}
		page := pmm.Bytes(pa.Floor())
		start := pa.PageOffset()
		room := int(uint64(len(page)) - start)
		n := util.Min(remaining, room)
		out = append(out, page[start:start+uint64(n)])
		remaining -= n
		cur = addr.VirtAddr(uint64(cur) + uint64(n))
	}
	return out, nil
}
