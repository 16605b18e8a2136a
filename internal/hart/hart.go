// Package hart models the per-hart processor state spec.md §4.7
// describes: a flat structure reachable via the `tp` register on real
// hardware, holding the hart's current task, its schedule-loop context,
// and its interrupt-nesting bookkeeping.
//
// Ground: biscuit's tinfo.Current()/SetCurrent() (tinfo/tinfo.go) reach
// per-thread state through a modified runtime Gptr register rather than
// a plain package variable; this kernel's runtime is unmodified stock
// Go, and spec.md's Non-goals exclude SMP, so Current simply indexes a
// fixed-size array at the one supported hart — the *shape* of
// biscuit's "one authoritative accessor, panics if misused" idiom is
// kept, the register-reachability mechanism is not.
package hart

import "rvkernel/internal/swtch"

// MaxHarts bounds the per-hart array. Only hart 0 is ever used — spec.md
// Non-goals exclude multi-hart scheduling — but the array is sized for
// the hardware's actual hart count so Current's indexing matches what a
// multi-hart build would do.
const MaxHarts = 1

// Task is the minimal view hart needs of a running task; internal/task's
// *TCB satisfies it. Keeping this as a narrow interface, rather than
// importing internal/task directly, avoids a hart<->task import cycle
// (task's creation path does not need to know which hart it will run on).
type Task interface {
	ID() int
}

// Processor is one hart's fixed block of scheduler-owned state.
type Processor struct {
	HartID int

	// CurrentTask is read by syscalls running on this hart in addition
	// to the owning hart itself (spec.md §4.7).
	CurrentTask Task

	// ScheduleLoopContext is the TaskContext __switch jumps back to
	// whenever the running task yields or exits.
	ScheduleLoopContext swtch.TaskContext

	// IRQNest and IRQSavedState back internal/irq's per-hart nesting
	// counter; irq keeps its own package-level copy for the single
	// supported hart today, but a Processor carries the fields spec.md
	// §4.7 names so a future multi-hart irq package has somewhere to
	// put them without restructuring Processor.
	IRQNest       int
	IRQSavedState bool
}

var processors [MaxHarts]Processor

// Current returns the calling hart's Processor block. On real hardware
// this would decode `tp`; the single-hart build always returns hart 0's
// block.
func Current() *Processor {
	return &processors[0]
}

// ByID returns the Processor block for a specific hart, for boot code
// that initializes every hart's block before secondary harts are
// parked (today, a loop of one iteration).
func ByID(id int) *Processor {
	if id < 0 || id >= MaxHarts {
		panic("hart: ByID out of range")
	}
	return &processors[id]
}
