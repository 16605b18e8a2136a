package syscall

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/sched"
)

func init() { Register(defs.SysExit, sysExit) }

// sysExit never returns to its caller in a real boot: sched.ExitCurrent
// switches away to the schedule loop before Dispatch's return statement
// would run. It is still shaped as an ordinary handler, returning the
// exit code back up through Dispatch, so tests can call it directly
// without a real context switch.
func sysExit(args [6]uint64) int64 {
	code := int(int64(args[0]))
	sched.ExitCurrent(code)
	return int64(code)
}
