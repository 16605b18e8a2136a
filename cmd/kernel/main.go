// Command kernel is rust_main's Go equivalent: it wires every
// internal/ package into a bootable whole. Ground: original_source's
// os/src/main.rs's rust_main — init the heap, install the trap
// vector, load init, enable the timer, and fall into the scheduler's
// own loop, never returning.
//
// This binary is freestanding (no os, no filesystem, no network: it
// is everything underneath those things), so — per SPEC_FULL's DOMAIN
// STACK note that a freestanding kernel package cannot import any
// third-party module before its own heap and trap vector exist — it
// imports only the standard library and rvkernel's own internal/
// packages. Getting _start's boot assembly to actually call Boot, and
// baking kernelLayout/trampolineFrame's real values in, is the boot
// assembly/linker-symbol layer spec.md §1 names as out of scope;
// cmd/mkuimg's manifest patch step is where those values would be
// filled in for a real image.
package main

import (
	"rvkernel/internal/addr"
	"rvkernel/internal/blockdev"
	"rvkernel/internal/board"
	"rvkernel/internal/console"
	"rvkernel/internal/irq"
	"rvkernel/internal/kalloc"
	"rvkernel/internal/klog"
	"rvkernel/internal/memset"
	"rvkernel/internal/pmm"
	"rvkernel/internal/sbi"
	"rvkernel/internal/sched"
	"rvkernel/internal/syscall"
	"rvkernel/internal/task"
	"rvkernel/internal/trap"
)

// selectedBoard picks the target board compiled into this image.
// cmd/mkuimg's build manifest (kernel_version / board name) is what
// would select between board.QEMU and board.K210 on a real build; this
// binary hardcodes QEMU, the teacher's own primary development target.
var selectedBoard = &board.QEMU

// kernelLayout carries the linker-provided section boundaries
// memset.NewKernel identity-maps. A real `ld.lld` link step fills
// these from `stext`/`etext`/etc; that step is the boot-assembly/
// linker-symbol layer named out of scope, so the values here are
// placeholders a real build's linker script overwrites.
var kernelLayout = memset.KernelLayout{
	Text:      0x8020_0000,
	TextEnd:   0x8020_0000,
	Rodata:    0x8020_0000,
	RodataEnd: 0x8020_0000,
	Data:      0x8020_0000,
	DataEnd:   0x8020_0000,
	Bss:       0x8020_0000,
	BssEnd:    0x8020_0000,
	EKernel:   0x8020_0000,
}

// trampolineFrame is the physical frame backing the trampoline code
// page; on a real link this is the linker-resolved physical address
// of strampoline, the same way board.TRAMPOLINE is its fixed VA.
const trampolineFrame = 0x8020_0000 >> board.PageShift

// trapHandlerVA and newUserTaskStartVA are the two kernel-side
// entries __alltraps/__switch hand control to: trap_handler's
// assembly wrapper (which calls trap.Handler) and the stub every
// freshly created task's TaskContext.RA points at on its first
// switch-in (which calls task.NewUserTaskStart). A real link resolves
// both from the kernel's own symbol table; placeholders here mark the
// same out-of-scope boundary as kernelLayout.
const (
	trapHandlerVA      = 0x8020_1000
	newUserTaskStartVA = 0x8020_2000
)

// tickInterval is the number of `time` CSR ticks between preemption
// points, matching original_source's timer::set_next_trigger
// interval convention of one-hundredth of the platform's reported
// timebase frequency; QEMU's virt machine reports 10_000_000 Hz.
const tickInterval = 100_000

func main() {
	Boot(selectedBoard, nil)
}

// Boot performs the rust_main sequence: bring up the frame allocator,
// the kernel's own address space, the SBI/trap/IRQ hardware bindings,
// load init from initDevice (if non-nil; a nil device leaves the
// ready queue empty, useful for the scenario fixtures in
// internal/trap's tests), and fall into the scheduler loop. It never
// returns.
func Boot(b *board.Board, initDevice blockdev.Device) {
	pmm.Init(addr.PhysAddr(kernelLayout.EKernel).Floor(), addr.PhysAddr(b.PhysTop).Ceil())

	memset.SetTrampolineFrame(trampolineFrame)
	kernelMemSet, ok := memset.NewKernel(kernelLayout, b)
	if !ok {
		panic("kernel: failed to build the kernel memory set")
	}
	task.KernelMemSet = kernelMemSet
	kernelMemSet.Activate()

	kalloc.InitGlobal(make([]byte, b.KernelHeapSize))

	sbi.Current = sbi.HSM{}
	klog.SetSink(console.Console{})
	klog.SetLevel(klog.Info)
	klog.Infof("rvkernel booting on %s", b.Name)

	irq.UseRealCSRs()
	trap.SetHardwareFuncs(irq.GlobalEnable, irq.GlobalDisable, programNextTick, trap.JumpToRestore)
	// internal/syscall's handler files self-register via init(); importing
	// the package (above) is what runs them, so by the time Dispatch is
	// wired here the table is already populated.
	trap.DispatchFunc = syscall.Dispatch
	trap.YieldFunc = sched.YieldCurrent
	trap.ExitCurrentFunc = sched.ExitCurrent

	task.SetBootParams(b, trapHandlerVA, newUserTaskStartVA)

	if initDevice != nil {
		initELF := readWholeDevice(initDevice)
		initTask, err := task.NewFromELF("init", initELF, b, trapHandlerVA, newUserTaskStartVA)
		if err != nil {
			panic("kernel: loading init failed: " + err.Error())
		}
		sched.AddTask(initTask)
	}

	programNextTick()
	sched.Loop(irq.GlobalEnable, nil)
}

// programNextTick reprograms the platform timer tickInterval ticks
// ahead of now, the Go-side equivalent of original_source's
// timer::set_next_trigger.
func programNextTick() {
	sbi.Current.SetTimer(sbi.ReadTime() + tickInterval)
}

// readWholeDevice reads every block off dev into one contiguous
// buffer: the simplest possible init-loading convention for a device
// that (per the block-device Non-goal) holds exactly one ELF image
// with no superblock of its own. cmd/mkuimg pads the image to a whole
// number of blocks so this never needs a trailing-length header.
func readWholeDevice(dev blockdev.Device) []byte {
	bs := dev.BlockSize()
	var out []byte
	buf := make([]byte, bs)
	for block := 0; ; block++ {
		if err := dev.ReadBlock(block, buf); err != nil {
			break
		}
		out = append(out, buf...)
	}
	return out
}
