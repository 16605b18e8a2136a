package syscall

import "rvkernel/internal/defs"

func init() { Register(defs.SysClose, sysClose) }

func sysClose(args [6]uint64) int64 {
	fd := int(args[0])

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

	if err := fds.Close(fd); err != nil {
		return defs.EBADF.Neg()
	}
	return 0
}
