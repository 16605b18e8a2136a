// Package trap implements the trap pipeline (spec.md §4.11): the fixed
// TrapContext layout assembly reads and writes, the TRAMPOLINE page
// that hosts the user<->kernel entry/exit stubs, and the Go-side
// trap_handler/trap_return dispatch.
//
// Ground: there is no RISC-V trap-vector precedent in the retrieved
// corpus (biscuit's equivalent is x86-64 IDT/GDT setup in
// kernel/trap_amd64.s, a different exception model entirely), so
// __alltraps/__restore/__alltraps_kernel are written directly from
// spec.md's description, in the same "Go stub declares the symbol,
// .s file implements it" shape internal/swtch uses for __switch.
// trap_handler's dispatch table and the Dispatch-function override seam
// follow the override-seam idiom used throughout this kernel
// (internal/irq's enableFn, internal/pmm's frameBytesFn) so that the
// handler logic is exercisable under go test without real scause/stval
// CSRs or a live syscall table.
package trap

import (
	"fmt"

	"rvkernel/internal/board"
	"rvkernel/internal/klog"
)

// TrapContext is the fixed layout matched by __alltraps/__restore
// (spec.md §3): the saved user register file plus the kernel-side
// resources trap entry must install.
type TrapContext struct {
	X           [32]uint64 // general-purpose integer registers
	Sstatus     uint64     // supervisor status, carries SPP
	Sepc        uint64     // return address
	KernelSatp  uint64
	KernelSp    uint64
	KernelTp    uint64
	TrapHandler uint64 // VA of trap_handler's assembly entry wrapper
}

// NewTrapContext builds the initial TrapContext a freshly created task
// is given (spec.md §4.8 step 5): SPP=User (sstatus bit 8 clear),
// sepc=entry, sp (x[2])=userStackTop.
func NewTrapContext(entry, userStackTop, kernelSatp, kernelSp, kernelTp, trapHandlerVA uint64) TrapContext {
	tc := TrapContext{
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		KernelTp:    kernelTp,
		TrapHandler: trapHandlerVA,
	}
	tc.X[2] = userStackTop // sp
	return tc
}

// Scause/Stval cause codes this kernel recognizes (spec.md §4.11). The
// numeric values mirror the RISC-V privileged spec's scause encoding;
// Interrupt causes have the top bit set, modeled here with a separate
// IsInterrupt flag since scause's sign bit does not fit cleanly in an
// exported Go constant set.
type Cause int

const (
	CauseUserEnvCall Cause = iota
	CauseLoadFault
	CauseLoadPageFault
	CauseStoreFault
	CauseStorePageFault
	CauseIllegalInstruction
	CauseSupervisorTimer
	CauseOther
)

// DispatchFunc is the syscall dispatcher trap_handler invokes for
// CauseUserEnvCall. It is wired by boot code (cmd/kernel) to
// internal/syscall's Dispatch, rather than imported directly, so that
// internal/trap never needs to import internal/syscall (internal/task
// imports internal/trap for TrapContext, and internal/syscall imports
// internal/task to manipulate the current task, so a trap->syscall
// import would close a cycle).
var DispatchFunc func(num int64, args [6]uint64) int64

// YieldFunc is called for CauseSupervisorTimer, wired to
// internal/sched's YieldCurrent for the same reason DispatchFunc is
// injected rather than imported.
var YieldFunc func()

// ExitCurrentFunc is called when a fault or illegal instruction forces
// the current task to exit, wired to internal/sched's ExitCurrent.
var ExitCurrentFunc func(code int)

// installUserTrapVectorFunc and installKernelTrapVectorFunc point
// STVEC at the user (__alltraps, at TRAMPOLINE) or kernel
// (__alltraps_kernel) vector respectively. They are function variables
// because writing STVEC has no meaning under go test.
var (
	installUserTrapVectorFunc   = func() {}
	installKernelTrapVectorFunc = func() {}
)

// SetTrapVectorFuncs installs replacements for both STVEC-writing
// hooks and returns a function restoring the previous ones.
func SetTrapVectorFuncs(installUser, installKernel func()) (restore func()) {
	prevUser, prevKernel := installUserTrapVectorFunc, installKernelTrapVectorFunc
	installUserTrapVectorFunc, installKernelTrapVectorFunc = installUser, installKernel
	return func() {
		installUserTrapVectorFunc, installKernelTrapVectorFunc = prevUser, prevKernel
	}
}

// currentTrapContextFunc returns the trap-context page of the task
// presently running on this hart, and currentUserTokenFunc its SATP
// token; both are wired by boot code to internal/sched's bookkeeping
// of the hart's current task, again via function variables rather than
// an import of internal/task (trap_return must work without knowing
// the task package's TCB type).
var (
	currentTrapContextFunc func() *TrapContext
	currentUserTokenFunc   func() uint64
)

// SetCurrentTaskFuncs installs the accessors trap_handler/trap_return
// use to reach the running task's trap context and SATP token.
func SetCurrentTaskFuncs(trapContext func() *TrapContext, userToken func() uint64) {
	currentTrapContextFunc = trapContext
	currentUserTokenFunc = userToken
}

// Handler runs in S-mode with the kernel SATP active, dispatching on
// the trap cause exactly as spec.md §4.11 describes.
func Handler(cause Cause, stval uint64) {
	installKernelTrapVectorFunc()
	tc := currentTrapContextFunc()

	switch cause {
	case CauseUserEnvCall:
		tc.Sepc += 4
		enableInterruptsFunc()
		num := int64(tc.X[17]) // a7
		var args [6]uint64
		copy(args[:], tc.X[10:16]) // a0..a5
		ret := DispatchFunc(num, args)
		// Re-fetch the pointer: exec (when implemented) can relocate the
		// trap-context page, so tc must not be reused across the call.
		tc = currentTrapContextFunc()
		tc.X[10] = uint64(ret)

	case CauseLoadFault, CauseLoadPageFault, CauseStoreFault, CauseStorePageFault:
		klog.Errorf("trap: page fault or access fault, stval=%#x", stval)
		ExitCurrentFunc(-1)

	case CauseIllegalInstruction:
		klog.Errorf("trap: Illegal instruction, stval=%#x", stval)
		ExitCurrentFunc(-1)

	case CauseSupervisorTimer:
		programNextTickFunc()
		YieldFunc()

	default:
		panic(fmt.Sprintf("trap: unhandled cause %d stval=%#x", cause, stval))
	}

	Return()
}

// Return installs the user trap vector and jumps to __restore with the
// current task's trap-context VA and user SATP token (spec.md §4.11).
func Return() {
	disableInterruptsFunc()
	installUserTrapVectorFunc()
	token := currentUserTokenFunc()
	trapCtxVA := TrapContextVA()
	restoreVA := board.TRAMPOLINE + restoreOffset
	jumpToRestoreFunc(restoreVA, trapCtxVA, token)
}

// TrapContextVA returns the fixed per-task VA the running task's
// trap-context page lives at. Boot code sets currentTaskIDFunc so this
// can compute TrapContextStart - id*PageSize without importing
// internal/task.
var currentTaskIDFunc func() int

// SetCurrentTaskIDFunc installs the accessor TrapContextVA uses.
func SetCurrentTaskIDFunc(fn func() int) { currentTaskIDFunc = fn }

func TrapContextVA() uint64 {
	id := uint64(currentTaskIDFunc())
	return board.TrapContextStart - id*board.PageSize
}

// restoreOffset is the byte offset of __restore from __alltraps within
// the single trampoline code page; both stubs are assembled into
// trampoline_riscv64.s so the linker fixes this distance at build time. It is
// a variable, not a linker-resolved constant, because this kernel's
// build does not run a custom link step; cmd/mkuimg patches it in the
// final image (see cmd/mkuimg's grounding in DESIGN.md).
var restoreOffset uint64

// SetRestoreOffset records __restore's byte offset from __alltraps.
func SetRestoreOffset(off uint64) { restoreOffset = off }

// The following hooks reach actual hardware/assembly on a real boot and
// are no-ops (or panic stand-ins) until cmd/kernel wires them; tests
// override them individually.
var (
	enableInterruptsFunc  = func() {}
	disableInterruptsFunc = func() {}
	programNextTickFunc   = func() {}
	jumpToRestoreFunc     = func(restoreVA, trapCtxVA, token uint64) {}
)

// SetHardwareFuncs installs boot code's CSR-level bindings for sie
// enable/disable, timer reprogramming, and the final trampoline jump
// back to user mode. A real boot calls this once before handing off to
// sched.Loop; go test exercises Handler/Return with its own narrower
// overrides of the individual vars instead.
func SetHardwareFuncs(enableInterrupts, disableInterrupts, programNextTick func(), jumpToRestore func(restoreVA, trapCtxVA, token uint64)) {
	enableInterruptsFunc = enableInterrupts
	disableInterruptsFunc = disableInterrupts
	programNextTickFunc = programNextTick
	jumpToRestoreFunc = jumpToRestore
}
