package syscall

import (
	"rvkernel/internal/addr"
	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
)

func init() { Register(defs.SysRead, sysRead) }

// sysRead reads up to len(args[2]) bytes from fd args[0] into the
// user buffer at args[1], through a bounded kernel-side scratch
// buffer so a single read never allocates more than one page's worth
// of kernel memory regardless of how large the user requested length
// is (spec.md §4.12's "no syscall copies directly between user
// address spaces" boundary).
func sysRead(args [6]uint64) int64 {
	fd := int(args[0])
	dstVA := addr.VirtAddr(args[1])
	length := int(args[2])
	if length < 0 {
		return defs.EFAULT.Neg()
	}

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
	fdops, ok := res.Group.Fds.Get(fd)
	token := res.MemSet.Token()
	tcb.Unlock()
	if !ok {
		return defs.EBADF.Neg()
	}

	if length > readScratchSize {
		length = readScratchSize
	}
	var scratch [readScratchSize]byte
	n, err := fdops.Read(scratch[:length])
	if n == 0 && err != nil {
		return 0
	}
	if n < 0 {
		return defs.EFAULT.Neg()
	}
	if err := pagetable.CopyToUser(token, dstVA, scratch[:n]); err != nil {
		return defs.EFAULT.Neg()
	}
	return int64(n)
}

// readScratchSize bounds a single read's kernel-side buffer to one
// page, matching internal/board.PageSize.
const readScratchSize = 4096
