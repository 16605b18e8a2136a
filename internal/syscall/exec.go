package syscall

import "rvkernel/internal/defs"

func init() { Register(defs.SysExec, sysExec) }

// sysExec reserves syscall 221's slot (spec.md §9) without implementing
// it: replacing a running task's address space in place is out of this
// kernel's scope, so the registered handler only ensures number 221
// fails for the documented reason — unimplemented — rather than
// falling through Dispatch's generic unregistered-number path.
func sysExec(args [6]uint64) int64 {
	return defs.ENOSYS.Neg()
}
