package syscall

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/sched"
)

func init() { Register(defs.SysFork, sysFork) }

// sysFork clones the calling task and enqueues the child on the ready
// queue, returning the child's task ID to the parent; the child's own
// trap context already carries a0=0, baked in by task.TCB.Fork.
func sysFork(args [6]uint64) int64 {
	tcb := currentTask()
	if tcb == nil {
		return defs.EFAULT.Neg()
	}
	child, err := tcb.Fork()
	if err != nil {
		return defs.ENOMEM.Neg()
	}
	sched.AddTask(child)
	return int64(child.ID())
}
