// Package memset implements a per-address-space MemorySet: a page table
// plus an ordered list of map areas, with builder-style construction
// (spec.md §4.4).
//
// Ground: biscuit's Vm_t/Vmregion_t in vm/as.go holds the same
// "lock + page table + list of regions" shape; this package keeps that
// shape while dropping Vm_t's copy-on-write bookkeeping (PTE_COW,
// pgfltaken) since spec.md's Non-goals exclude COW and SMP. ELF loading
// follows biscuit's kernel/chentry.go precedent of using the standard
// library debug/elf reader rather than a hand-rolled parser.
package memset

import (
	"debug/elf"
	"fmt"

	"rvkernel/internal/addr"
	"rvkernel/internal/board"
	"rvkernel/internal/defs"
	"rvkernel/internal/klock"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/pmm"
)

// MapType distinguishes an area whose VPNs equal their backing PPNs from
// one backed by freshly allocated frames.
type MapType int

const (
	Identical MapType = iota
	Framed
)

// MapPermission is the area permission set, a PTEFlags subset carrying
// only R, W, X, U (spec.md §3 — "Map area ... a permission set {R,W,X,U}").
type MapPermission = pagetable.PTEFlags

const (
	PermR = pagetable.R
	PermW = pagetable.W
	PermX = pagetable.X
	PermU = pagetable.U
)

// MapArea is a half-open range of virtual pages sharing one map type and
// permission set. A Framed area owns one FrameTracker per VPN.
type MapArea struct {
	startVPN, endVPN addr.VirtPageNum
	mapType          MapType
	perm             MapPermission
	frames           map[addr.VirtPageNum]*pmm.FrameTracker
}

// NewIdenticalArea builds an area whose pages map VPN=PPN.
func NewIdenticalArea(start, end addr.VirtPageNum, perm MapPermission) *MapArea {
	return &MapArea{startVPN: start, endVPN: end, mapType: Identical, perm: perm}
}

// NewFramedArea builds an area whose pages are backed by freshly
// allocated frames, populated lazily as the area is mapped.
func NewFramedArea(start, end addr.VirtPageNum, perm MapPermission) *MapArea {
	return &MapArea{
		startVPN: start, endVPN: end, mapType: Framed, perm: perm,
		frames: make(map[addr.VirtPageNum]*pmm.FrameTracker),
	}
}

// StartVPN reports the area's first page.
func (a *MapArea) StartVPN() addr.VirtPageNum { return a.startVPN }

// EndVPN reports the area's one-past-last page.
func (a *MapArea) EndVPN() addr.VirtPageNum { return a.endVPN }

func (a *MapArea) mapOne(pt *pagetable.PageTable, vpn addr.VirtPageNum) {
	var ppn addr.PhysPageNum
	switch a.mapType {
	case Identical:
		ppn = addr.PhysPageNum(vpn)
	case Framed:
		frame, ok := pmm.NewFrameTracker()
		if !ok {
			panic("memset: out of physical frames")
		}
		a.frames[vpn] = frame
		ppn = frame.PPN
	}
	pt.Map(vpn, ppn, a.perm)
}

func (a *MapArea) unmapOne(pt *pagetable.PageTable, vpn addr.VirtPageNum) {
	pt.Unmap(vpn)
	if a.mapType == Framed {
		if frame, ok := a.frames[vpn]; ok {
			frame.Drop()
			delete(a.frames, vpn)
		}
	}
}

func (a *MapArea) mapAll(pt *pagetable.PageTable) {
	for vpn := a.startVPN; vpn < a.endVPN; vpn++ {
		a.mapOne(pt, vpn)
	}
}

func (a *MapArea) unmapAll(pt *pagetable.PageTable) {
	for vpn := a.startVPN; vpn < a.endVPN; vpn++ {
		a.unmapOne(pt, vpn)
	}
}

// copyData writes data page by page into the area's framed pages,
// starting at the area's first VPN. It is only meaningful for Framed
// areas (spec.md §4.4: "copying bytes into a framed area is defined
// only for pages it owns").
func (a *MapArea) copyData(pt *pagetable.PageTable, data []byte) {
	if a.mapType != Framed {
		panic("memset: Push with data on a non-Framed area")
	}
	vpn := a.startVPN
	off := 0
	for off < len(data) {
		frame := a.frames[vpn]
		page := pmm.Bytes(frame.PPN)
		n := len(data) - off
		if n > len(page) {
			n = len(page)
		}
		copy(page[:n], data[off:off+n])
		off += n
		vpn++
	}
}

// MemorySet is a page table plus its ordered list of map areas.
type MemorySet struct {
	mu    klock.IRQSpin
	pt    *pagetable.PageTable
	areas []*MapArea
}

// NewBare returns an empty memory set with a fresh, otherwise-unmapped
// page table.
func NewBare() (*MemorySet, bool) {
	pt, ok := pagetable.New()
	if !ok {
		return nil, false
	}
	return &MemorySet{pt: pt}, true
}

// trampolineFrame is the single physical frame the TRAMPOLINE code lives
// in. Every memory set maps it at the same fixed virtual address with
// R|X, independent of the ordinary area list, and it is never unmapped
// or owned by any area (spec.md §4.4).
var trampolineFrame addr.PhysPageNum

// SetTrampolineFrame records the physical frame holding the trampoline
// code, established once during boot before any memory set is built.
func SetTrampolineFrame(ppn addr.PhysPageNum) { trampolineFrame = ppn }

// MapTrampoline installs the TRAMPOLINE mapping.
func (ms *MemorySet) MapTrampoline() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.pt.Map(addr.VirtAddr(board.TRAMPOLINE).Floor(), trampolineFrame, PermR|PermX)
}

// Push maps every VPN of area and, if data is supplied, copies it page
// by page into a Framed area's freshly allocated frames.
func (ms *MemorySet) Push(area *MapArea, data []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	area.mapAll(ms.pt)
	if data != nil {
		area.copyData(ms.pt, data)
	}
	ms.areas = append(ms.areas, area)
}

// InsertFramedArea is a convenience wrapper building and pushing a
// Framed area covering [startVA, endVA).
func (ms *MemorySet) InsertFramedArea(startVA, endVA addr.VirtAddr, perm MapPermission) {
	area := NewFramedArea(startVA.Floor(), endVA.Ceil(), perm)
	ms.Push(area, nil)
}

// RemoveAreaWithStartVPN finds the area starting at vpn, unmaps all its
// pages, and drops it, releasing any frames it owned.
func (ms *MemorySet) RemoveAreaWithStartVPN(vpn addr.VirtPageNum) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for i, a := range ms.areas {
		if a.startVPN == vpn {
			a.unmapAll(ms.pt)
			ms.areas = append(ms.areas[:i], ms.areas[i+1:]...)
			return true
		}
	}
	return false
}

// GrowArea extends the framed area whose range currently ends at vpn up
// to newEnd, mapping the newly covered pages on demand. This is the
// mmap-shaped brk/grow operation used by the data-segment area FromELF
// creates; it changes no other area's extent or permissions.
//
// Ground: biscuit's Vmregion_t area lookup-by-address style in
// vm/as.go, adapted to look up by end-VPN instead of containing-address
// since a brk-style grow always extends the area that currently ends
// where the new allocation begins.
func (ms *MemorySet) GrowArea(vpn, newEnd addr.VirtPageNum) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, a := range ms.areas {
		if a.endVPN != vpn || a.mapType != Framed {
			continue
		}
		if newEnd <= a.endVPN {
			return defs.New(defs.InvalidEntry)
		}
		for p := a.endVPN; p < newEnd; p++ {
			a.mapOne(ms.pt, p)
		}
		a.endVPN = newEnd
		return nil
	}
	return defs.New(defs.InvalidEntry)
}

// Activate writes the page table's SATP token and fences the TLB.
func (ms *MemorySet) Activate() {
	activateFn(ms.pt.Token())
}

// activateFn performs the hardware-facing half of Activate (writing
// SATP and issuing sfence.vma); it is a function variable so tests can
// run Activate without real CSR access, following the same override
// seam as internal/irq's enableFn/disableFn.
var activateFn = func(token uint64) {}

// SetActivateFunc installs a replacement for the hardware-facing half of
// Activate and returns a function restoring the previous one.
func SetActivateFunc(fn func(token uint64)) (restore func()) {
	prev := activateFn
	activateFn = fn
	return func() { activateFn = prev }
}

// Token returns the memory set's SATP-format token.
func (ms *MemorySet) Token() uint64 { return ms.pt.Token() }

// Translate delegates to the page table.
func (ms *MemorySet) Translate(vpn addr.VirtPageNum) (pagetable.PTE, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.pt.Translate(vpn)
}

func permFromELFFlags(flags elf.ProgFlag) MapPermission {
	var p MapPermission
	if flags&elf.PF_R != 0 {
		p |= PermR
	}
	if flags&elf.PF_W != 0 {
		p |= PermW
	}
	if flags&elf.PF_X != 0 {
		p |= PermX
	}
	return p | PermU
}

// FromELF parses an ELF executable and builds a user memory set from
// its LOAD segments. It returns the memory set, the VPN just past the
// highest mapped page (the caller places the user stack above a guard
// page starting there), and the entry point.
func FromELF(data []byte) (ms *MemorySet, userStackBase addr.VirtPageNum, entry addr.VirtAddr, err error) {
	f, perr := elf.NewFile(bytesReaderAt(data))
	if perr != nil {
		return nil, 0, 0, fmt.Errorf("memset: parsing ELF: %w", perr)
	}

	ms, ok := NewBare()
	if !ok {
		return nil, 0, 0, defs.New(defs.OutOfMemory)
	}
	ms.MapTrampoline()

	var maxEnd addr.VirtPageNum
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		startVA := addr.VirtAddr(prog.Vaddr)
		endVA := addr.VirtAddr(prog.Vaddr + prog.Filesz)
		area := NewFramedArea(startVA.Floor(), endVA.Ceil(), permFromELFFlags(prog.Flags))
		segData := make([]byte, prog.Filesz)
		if _, rerr := prog.ReadAt(segData, 0); rerr != nil {
			return nil, 0, 0, fmt.Errorf("memset: reading LOAD segment: %w", rerr)
		}
		ms.Push(area, segData)
		if area.endVPN > maxEnd {
			maxEnd = area.endVPN
		}
	}
	return ms, maxEnd, addr.VirtAddr(f.Entry), nil
}

// NewKernel identity-maps the kernel's text/rodata/data/bss, the frame
// pool range [ekernel, PHYSTOP), and every MMIO window, then installs
// TRAMPOLINE.
func NewKernel(layout KernelLayout, b *board.Board) (*MemorySet, bool) {
	ms, ok := NewBare()
	if !ok {
		return nil, false
	}
	ms.MapTrampoline()
	ms.Push(NewIdenticalArea(layout.Text.Floor(), layout.TextEnd.Ceil(), PermR|PermX), nil)
	ms.Push(NewIdenticalArea(layout.Rodata.Floor(), layout.RodataEnd.Ceil(), PermR), nil)
	ms.Push(NewIdenticalArea(layout.Data.Floor(), layout.DataEnd.Ceil(), PermR|PermW), nil)
	ms.Push(NewIdenticalArea(layout.Bss.Floor(), layout.BssEnd.Ceil(), PermR|PermW), nil)
	ms.Push(NewIdenticalArea(layout.EKernel.Floor(), addr.VirtAddr(b.PhysTop).Ceil(), PermR|PermW), nil)
	for _, w := range b.MMIO {
		ms.Push(NewIdenticalArea(addr.VirtAddr(w.Start).Floor(), addr.VirtAddr(w.End).Ceil(), PermR|PermW), nil)
	}
	return ms, true
}

// KernelLayout carries the linker-provided section boundaries NewKernel
// identity-maps. In a real boot these come from linker symbols; tests
// and cmd/kernel supply them explicitly.
type KernelLayout struct {
	Text, TextEnd     addr.VirtAddr
	Rodata, RodataEnd addr.VirtAddr
	Data, DataEnd     addr.VirtAddr
	Bss, BssEnd       addr.VirtAddr
	EKernel           addr.VirtAddr
}

// FromOtherUser deep-clones a user memory set: parallel framed areas are
// created and their page contents copied, and TRAMPOLINE is
// re-installed (spec.md §4.4).
func FromOtherUser(other *MemorySet) (*MemorySet, bool) {
	other.mu.Lock()
	defer other.mu.Unlock()

	ms, ok := NewBare()
	if !ok {
		return nil, false
	}
	ms.MapTrampoline()
	for _, a := range other.areas {
		clone := NewFramedArea(a.startVPN, a.endVPN, a.perm)
		ms.areas = append(ms.areas, clone)
		clone.mapAll(ms.pt)
		for vpn := a.startVPN; vpn < a.endVPN; vpn++ {
			srcFrame := a.frames[vpn]
			dstFrame := clone.frames[vpn]
			copy(pmm.Bytes(dstFrame.PPN)[:], pmm.Bytes(srcFrame.PPN)[:])
		}
	}
	return ms, true
}

// bytesReaderAt adapts a []byte to io.ReaderAt for debug/elf.NewFile.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, fmt.Errorf("memset: ReadAt out of range at offset %d", off)
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("memset: short read at offset %d", off)
	}
	return n, nil
}
