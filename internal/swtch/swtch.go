// Package swtch implements the kernel-side context switch: the
// callee-saved register set that lets one kernel stack suspend itself
// and resume another (spec.md §4.10).
//
// Ground: there is no RISC-V assembly anywhere in the retrieved
// example corpus to imitate line for line (biscuit's equivalent is
// x86-64 Go assembly in vm/vm_amd64.s / runtime asm, not applicable to
// this ISA), so Switch is written directly against the Go assembler's
// own calling convention for a Plan 9 .s file implementing a Go
// function signature, the way every architecture-specific primitive in
// the Go runtime itself is declared: a Go stub with //go:noescape and
// a hand-written .s body.
package swtch

// TaskContext is the fixed layout Switch's assembly (swtch_riscv64.s)
// reads and writes, matched field-for-field against the
// register set __switch must preserve across a RISC-V supervisor-mode
// function call boundary — ra, sp, and the twelve callee-saved
// registers s0..s11 (spec.md §3). Nothing else needs saving because
// Switch is called like an ordinary function: the caller's caller-saved
// registers are already on its own stack frame.
type TaskContext struct {
	RA uint64
	SP uint64
	S  [12]uint64
}

// NewTaskContext builds a context that, when switched to for the first
// time, resumes execution at entry with the given stack pointer and all
// saved registers zero (spec.md §4.8 step 6: "ra=new_user_task_start,
// sp=kernel_stack_top, saved registers zero").
func NewTaskContext(entry, sp uint64) TaskContext {
	return TaskContext{RA: entry, SP: sp}
}

// Switch saves the caller's callee-saved registers into save, restores
// load's, and returns into load's saved ra on the new stack. Control
// returns to this function's caller only when some later Switch call
// is given this same save as its load argument.
//
//go:noescape
func Switch(save, load *TaskContext)
