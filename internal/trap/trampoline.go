package trap

// alltraps, restore, and alltrapsKernel are implemented in
// trampoline_riscv64.s; these declarations exist only so the Go
// toolchain assigns them addresses cmd/mkuimg can read back to compute
// restoreOffset and so boot code can install them as STVEC targets.
// They are never called as ordinary Go functions — hardware jumps to
// them directly — hence no arguments and no Go body.
func alltraps()
func restore()
func alltrapsKernel()

// trapFromKernel handles a trap taken while the kernel itself was
// running (spec.md §4.11's __alltraps_kernel calls this). A fault here
// means a kernel invariant broke; there is no task to blame it on, so
// it is always fatal.
func trapFromKernel() {
	panic("trap: fault while running in kernel mode")
}
