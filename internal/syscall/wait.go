package syscall

import (
	"encoding/binary"

	"rvkernel/internal/addr"
	"rvkernel/internal/defs"
	"rvkernel/internal/pagetable"
	"rvkernel/internal/task"
)

func init() { Register(defs.SysWaitpid, sysWaitpid) }

// sysWaitpid reaps a Zombie child matching pid (-1 for any child),
// writing its exit code to the user address at args[1] (skipped if
// that address is 0) and returning the child's task ID. It returns
// -2, the rCore-lineage convention for "a matching child exists but
// has not exited yet", rather than blocking — this kernel's minimum
// handler set has no task-blocking primitive for a caller to wait on
// (SPEC_FULL §9's open question, recorded as a deliberate decision
// rather than an oversight).
func sysWaitpid(args [6]uint64) int64 {
	pid := int(int64(args[0]))
	statusVA := args[1]

	tcb := currentTask()
	if tcb == nil {
		return defs.EFAULT.Neg()
	}

	childID, exitCode, status := tcb.Reap(pid)
	switch status {
	case task.ReapNoChild:
		return defs.ECHILD.Neg()
	case task.ReapNotExited:
		return -2
	}

	if statusVA != 0 {
		inner := tcb.Lock()
		res := inner.Resources
		if res == nil {
			tcb.Unlock()
			return defs.EFAULT.Neg()
		}
		token := res.MemSet.Token()
		tcb.Unlock()

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(exitCode)))
		if err := pagetable.CopyToUser(token, addr.VirtAddr(statusVA), buf[:]); err != nil {
			return defs.EFAULT.Neg()
		}
	}
	return int64(childID)
}
