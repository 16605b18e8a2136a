// Package board carries the compile-time constants spec.md §6 lists
// (page/address widths, stack/heap sizes, the TRAMPOLINE and
// TRAP_CONTEXT_START virtual addresses) for each supported target. Both
// supported boards (QEMU virt and the Kendryte K210) are compiled in as
// package variables; cmd/kernel selects one in its own source, and the
// host tool cmd/mkuimg resolves one by name or from a YAML board manifest,
// the same way biscuit's mkfs picks a layout from its own command-line
// flags rather than #ifdef'd constants.
package board

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Sv scheme in use. spec.md allows Sv39 (39-bit VA) or Sv48 (48-bit VA);
// only Sv39 is wired up by this kernel, matching the teacher's own
// single-scheme build.
const (
	PageSize  = 4096
	PageShift = 12
	VAWidth   = 39
	PAWidth   = 56

	// TRAMPOLINE is the fixed Sv39 virtual address of the trampoline page,
	// a page-aligned address in the high (sign-extended) half of the
	// address space.
	TRAMPOLINE uint64 = 0xFFFF_FFFF_BFFF_F000
	// TrapContextStart anchors per-task trap-context pages just below
	// TRAMPOLINE, one page per task ID, descending.
	TrapContextStart uint64 = TRAMPOLINE - PageSize
)

// MMIOWindow names one physical MMIO range that must be identity-mapped
// RW into the kernel memory set.
type MMIOWindow struct {
	Name  string `yaml:"name"`
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

// Board collects the per-target constants spec.md §6 calls out, plus the
// MMIO windows spec.md §4.4's NewKernel maps identity RW.
type Board struct {
	Name            string       `yaml:"name"`
	PhysTop         uint64       `yaml:"phys_top"`
	KernelHeapSize  uint64       `yaml:"kernel_heap_size"`
	KernelStackSize uint64       `yaml:"kernel_stack_size"`
	UserStackSize   uint64       `yaml:"user_stack_size"`
	GuardPageSize   uint64       `yaml:"guard_page_size"`
	MMIO            []MMIOWindow `yaml:"mmio"`
}

// QEMU is the QEMU `virt` machine board, biscuit's/xux-core's primary
// development target.
var QEMU = Board{
	Name:            "qemu-virt",
	PhysTop:         0x8800_0000,
	KernelHeapSize:  0x0030_0000,
	KernelStackSize: 8 * PageSize,
	UserStackSize:   8 * PageSize,
	GuardPageSize:   PageSize,
	MMIO: []MMIOWindow{
		{Name: "virtio-mmio", Start: 0x1000_1000, End: 0x1000_2000},
		{Name: "clint", Start: 0x0200_0000, End: 0x0201_0000},
	},
}

// K210 is the Kendryte K210 board.
var K210 = Board{
	Name:            "k210",
	PhysTop:         0x8060_0000,
	KernelHeapSize:  0x0020_0000,
	KernelStackSize: 4 * PageSize,
	UserStackSize:   4 * PageSize,
	GuardPageSize:   PageSize,
	MMIO: []MMIOWindow{
		{Name: "uarths", Start: 0x3800_0000, End: 0x3800_1000},
		{Name: "gpiohs", Start: 0x3800_1000, End: 0x3800_2000},
		{Name: "clint", Start: 0x0200_0000, End: 0x0201_0000},
	},
}

// ByName resolves a board by its manifest name.
func ByName(name string) (Board, error) {
	switch name {
	case "qemu-virt", "qemu", "":
		return QEMU, nil
	case "k210":
		return K210, nil
	default:
		return Board{}, fmt.Errorf("board: unknown target %q", name)
	}
}

// Load reads a board manifest from a YAML file, overlaying any fields the
// manifest sets onto the named base board. cmd/mkuimg calls it when its
// build manifest names a board manifest; cmd/kernel does not call it and
// uses a compiled-in Board instead.
func Load(path string) (Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Board{}, err
	}
	var overlay Board
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Board{}, fmt.Errorf("board: parse %s: %w", path, err)
	}
	base, err := ByName(overlay.Name)
	if err != nil {
		return Board{}, err
	}
	if overlay.PhysTop != 0 {
		base.PhysTop = overlay.PhysTop
	}
	if overlay.KernelHeapSize != 0 {
		base.KernelHeapSize = overlay.KernelHeapSize
	}
	if overlay.KernelStackSize != 0 {
		base.KernelStackSize = overlay.KernelStackSize
	}
	if overlay.UserStackSize != 0 {
		base.UserStackSize = overlay.UserStackSize
	}
	if overlay.GuardPageSize != 0 {
		base.GuardPageSize = overlay.GuardPageSize
	}
	if len(overlay.MMIO) != 0 {
		base.MMIO = overlay.MMIO
	}
	return base, nil
}
