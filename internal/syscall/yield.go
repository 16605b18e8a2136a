package syscall

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/sched"
)

func init() { Register(defs.SysYield, sysYield) }

func sysYield(args [6]uint64) int64 {
	sched.YieldCurrent()
	return 0
}
