package memset

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"rvkernel/internal/addr"
	"rvkernel/internal/pmm"
	"rvkernel/internal/pmm/pmmtest"
)

func TestPushFramedAreaCopiesData(t *testing.T) {
	pmmtest.UseHostArena(t, 1000, 1100)
	SetTrampolineFrame(1099)

	ms, ok := NewBare()
	if !ok {
		t.Fatal("NewBare failed")
	}
	area := NewFramedArea(0, 2, PermR|PermW|PermU)
	data := bytes.Repeat([]byte("x"), 4096+10)
	ms.Push(area, data)

	pte, ok := ms.Translate(0)
	if !ok || !pte.IsValid() {
		t.Fatal("Translate(0) not valid after Push")
	}
	if pte.Flags() != PermR|PermW|PermU|1 { // |V
		t.Fatalf("Flags() = %#x", pte.Flags())
	}
	// The last 10 bytes of data spill into the area's second page.
	next, ok := ms.Translate(1)
	if !ok {
		t.Fatal("Translate(1) not valid after Push")
	}
	if got := pmm.Bytes(next.PPN())[9]; got != 'x' {
		t.Fatalf("second page byte 9 = %q, want 'x'", got)
	}
}

func TestRemoveAreaUnmapsAndDropsFrames(t *testing.T) {
	pmmtest.UseHostArena(t, 2000, 2100)
	SetTrampolineFrame(2099)
	ms, _ := NewBare()
	area := NewFramedArea(5, 7, PermR|PermW)
	ms.Push(area, nil)

	if !ms.RemoveAreaWithStartVPN(5) {
		t.Fatal("RemoveAreaWithStartVPN returned false")
	}
	if _, ok := ms.Translate(5); ok {
		t.Fatal("page still translates after area removal")
	}
}

func TestGrowAreaExtendsAndMapsNewPages(t *testing.T) {
	pmmtest.UseHostArena(t, 3000, 3100)
	SetTrampolineFrame(3099)
	ms, _ := NewBare()
	area := NewFramedArea(0, 2, PermR|PermW)
	ms.Push(area, nil)

	if err := ms.GrowArea(2, 4); err != nil {
		t.Fatalf("GrowArea() error = %v", err)
	}
	if _, ok := ms.Translate(3); !ok {
		t.Fatal("newly grown page does not translate")
	}
}

func TestGrowAreaUnknownEndFails(t *testing.T) {
	pmmtest.UseHostArena(t, 3500, 3600)
	SetTrampolineFrame(3599)
	ms, _ := NewBare()
	if err := ms.GrowArea(99, 101); err == nil {
		t.Fatal("expected error growing a non-existent area")
	}
}

func buildTestELF(t *testing.T) []byte {
	t.Helper()
	// A minimal valid ET_EXEC riscv64 ELF with a single PT_LOAD segment
	// covering its own header plus a small code blob, enough for
	// debug/elf to parse program headers and segment bytes.
	const (
		ehsize  = 64
		phsize  = 56
		vaddr   = 0x10000
		entry   = vaddr
		codeLen = 16
	)
	total := ehsize + phsize + codeLen
	buf := make([]byte, total)

	le := binary.LittleEndian
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	le.PutUint16(buf[16:18], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:20], uint16(elf.EM_RISCV))
	le.PutUint32(buf[20:24], 1) // EV_CURRENT
	le.PutUint64(buf[24:32], uint64(entry))
	le.PutUint64(buf[32:40], uint64(ehsize)) // phoff
	le.PutUint16(buf[52:54], uint16(ehsize))
	le.PutUint16(buf[54:56], uint16(phsize))
	le.PutUint16(buf[56:58], 1) // phnum

	ph := buf[ehsize : ehsize+phsize]
	le.PutUint32(ph[0:4], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:8], uint32(elf.PF_R|elf.PF_X))
	le.PutUint64(ph[8:16], uint64(ehsize+phsize)) // offset
	le.PutUint64(ph[16:24], uint64(vaddr))        // vaddr
	le.PutUint64(ph[24:32], uint64(vaddr))        // paddr
	le.PutUint64(ph[32:40], uint64(codeLen))      // filesz
	le.PutUint64(ph[40:48], uint64(codeLen))      // memsz
	le.PutUint64(ph[48:56], 4096)                 // align

	code := buf[ehsize+phsize:]
	copy(code, []byte("RISCVCODEBLOCK!!"))
	return buf
}

func TestFromELFMapsLoadSegment(t *testing.T) {
	pmmtest.UseHostArena(t, 4000, 4200)
	SetTrampolineFrame(4199)

	raw := buildTestELF(t)
	ms, stackBase, entry, err := FromELF(raw)
	if err != nil {
		t.Fatalf("FromELF() error = %v", err)
	}
	if entry != 0x10000 {
		t.Fatalf("entry = %#x, want 0x10000", entry)
	}
	if stackBase <= addr.VirtAddr(0x10000).Floor() {
		t.Fatalf("stackBase = %d, want it past the loaded segment", stackBase)
	}
	pte, ok := ms.Translate(addr.VirtAddr(0x10000).Floor())
	if !ok {
		t.Fatal("loaded segment does not translate")
	}
	if pte.Flags()&PermX == 0 {
		t.Fatal("loaded segment missing exec permission from PF_X")
	}
}
