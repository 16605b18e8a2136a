// Package syscall implements the syscall registry and dispatcher
// (spec.md §4.12): a 512-slot table handlers self-register into via
// init(), and Dispatch, the single entry point trap.DispatchFunc is
// wired to.
//
// Ground: biscuit's own syscall front door (syscall/syscall.go's
// Syscall switch) dispatches on a7 into a flat set of handler
// functions; this package keeps that flat shape but replaces the
// switch with a registration table, the same "table indexed by a
// numeric code, each entry installed by the package that owns it"
// idiom the standard library uses for sql.Register and
// image.RegisterFormat, since spec.md's minimum handler set and its
// fork/waitpid supplement are naturally split one file per syscall.
package syscall

import (
	"rvkernel/internal/defs"
	"rvkernel/internal/hart"
	"rvkernel/internal/klock"
	"rvkernel/internal/stats"
	"rvkernel/internal/task"
)

// Stats holds this package's counters, named the way biscuit's own
// stats.go fields are: one Counter per event of interest, snapshotted
// by stats.Snapshot and rendered by cmd/kprof into a pprof profile
// (see SPEC_FULL's DOMAIN STACK section on internal/stats).
var Stats struct {
	Dispatched stats.Counter
	ENOSYS     stats.Counter
	Cycles     stats.Cycles
}

// numSyscalls bounds the registry; spec.md §6 lists numbers up into
// the 260s (waitpid) and a vendor test number at 511, so the table is
// sized to the highest number the registry needs to address.
const numSyscalls = 512

// HandlerFunc is the signature every syscall handler registers under.
// args holds a0..a5 exactly as trap.Handler extracts them from the
// trap context; the return value is placed back into a0 verbatim,
// either an non-negative result or a negative defs.Errno.
type HandlerFunc func(args [6]uint64) int64

// table is the 512-slot registry. It uses a klock.IRQSpin because it
// is read by trap_handler, which can run with interrupts disabled
// inside another syscall's slow path (spec.md §4.6 names "the syscall
// table" as one of IRQSpin's required users).
var table struct {
	mu    klock.IRQSpin
	slots [numSyscalls]HandlerFunc
}

// Register installs fn as the handler for syscall number num. It is
// meant to be called from each handler file's own init(), never at
// runtime from a running task; a duplicate registration is a
// programming error, not a recoverable condition, so it panics.
func Register(num int, fn HandlerFunc) {
	if num < 0 || num >= numSyscalls {
		panic("syscall: Register number out of range")
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	if table.slots[num] != nil {
		panic("syscall: duplicate Register for the same number")
	}
	table.slots[num] = fn
}

// Dispatch looks up num's handler and invokes it with args, returning
// ENOSYS for an unregistered or out-of-range number. The table's lock
// is held only long enough to read the slot; it is released before
// the handler runs so a handler that itself blocks or reschedules
// never holds the table lock across that call (spec.md §5's
// deadlock-avoidance note).
func Dispatch(num int64, args [6]uint64) int64 {
	start := stats.Rdtsc()
	defer Stats.Cycles.Add(start)

	if num < 0 || num >= numSyscalls {
		Stats.ENOSYS.Inc()
		return defs.ENOSYS.Neg()
	}
	table.mu.Lock()
	fn := table.slots[num]
	table.mu.Unlock()
	if fn == nil {
		Stats.ENOSYS.Inc()
		return defs.ENOSYS.Neg()
	}
	Stats.Dispatched.Inc()
	return fn(args)
}

// currentTask returns the TCB running on this hart, or nil if none
// (which should not happen while handling a user syscall trap, but
// handlers check anyway rather than trusting the cast).
func currentTask() *task.TCB {
	tcb, _ := hart.Current().CurrentTask.(*task.TCB)
	return tcb
}
