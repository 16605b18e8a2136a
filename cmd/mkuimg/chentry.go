package main

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// chkELF validates that eh describes a little-endian riscv64 executable,
// the same checks kernel/chentry.go runs before it will touch a
// binary's entry point, adapted from x86-64 to this kernel's ISA.
func chkELF(eh *elf.FileHeader) error {
	if eh.Ident[elf.EI_DATA] != elf.ELFDATA2LSB {
		return fmt.Errorf("mkuimg: not little-endian")
	}
	if eh.Type != elf.ET_EXEC {
		return fmt.Errorf("mkuimg: not an executable ELF")
	}
	if eh.Machine != elf.EM_RISCV {
		return fmt.Errorf("mkuimg: not a riscv64 ELF")
	}
	if eh.Class != elf.ELFCLASS64 {
		return fmt.Errorf("mkuimg: not a 64-bit ELF")
	}
	return nil
}

// elfHeaderOf parses just enough of data to return its ELF file
// header, for binaries that need validation but no entry-point patch.
func elfHeaderOf(data []byte) (*elf.FileHeader, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mkuimg: parsing ELF: %w", err)
	}
	return &f.FileHeader, nil
}

// patchEntry rewrites the entry-point field of a raw ELF image's
// header in place and returns the patched bytes, the same operation
// kernel/chentry.go performs on a file on disk, done here in memory so
// it can run inside an errgroup goroutine per binary.
func patchEntry(data []byte, entry uint64) ([]byte, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mkuimg: parsing ELF: %w", err)
	}
	if err := chkELF(&f.FileHeader); err != nil {
		return nil, err
	}
	out := append([]byte(nil), data...)
	// e_entry sits at a fixed 64-bit-ELF header offset (0x18); debug/elf
	// does not expose a header writer, so the patch is applied directly
	// to the raw bytes exactly where elf.NewFile read it from, matching
	// chentry.go's own seek-and-binary.Write approach.
	const entryOffset = 0x18
	putUint64LE(out[entryOffset:entryOffset+8], entry)
	return out, nil
}

func putUint64LE(b []byte, v uint64) {
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}
