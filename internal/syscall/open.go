package syscall

import (
	"rvkernel/internal/console"
	"rvkernel/internal/defs"
)

func init() { Register(defs.SysOpen, sysOpen) }

// sysOpen installs a new console-backed fd. The path at args[0] and
// the flags in args[1] are accepted but not inspected: this kernel's
// Non-goals exclude a real filesystem, so every path names the same
// console device a fresh task's stdin/stdout/stderr already occupy
// slots for.
func sysOpen(args [6]uint64) int64 {
	tcb := currentTask()
	if tcb == nil {
		return defs.EFAULT.Neg()
	}
	inner := tcb.Lock()
	res := inner.Resources
	if res == nil {
		tcb.Unlock()
		return defs.EFAULT.Neg()
	}
	fds := &res.Group.Fds
	tcb.Unlock()

	fd := fds.Install(console.Console{})
	return int64(fd)
}
