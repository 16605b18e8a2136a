// Package sched implements the single FIFO ready queue, the
// yield/exit/schedule primitives, and the schedule loop itself (spec.md
// §4.9). Ground: biscuit's msi.Msivecs_t recycling-pool shape (already
// adapted in internal/task for ID allocation) and the
// oommsg.OomCh channel-notification idiom (adapted in internal/task's
// ExitNotifications, consumed here indirectly through TCB.Exit).
package sched

import (
	"runtime"

	"rvkernel/internal/hart"
	"rvkernel/internal/klock"
	"rvkernel/internal/swtch"
	"rvkernel/internal/task"
)

// readyQueue is the single per-hart FIFO ready queue, IRQ-spin guarded
// because it is shared with interrupt handlers (spec.md §4.6).
type readyQueue struct {
	mu    klock.IRQSpin
	tasks []*task.TCB
}

var ready readyQueue

// switchFunc is the override seam for swtch.Switch: the real assembly
// primitive cannot run in a hosted test binary (there is no second
// kernel stack for it to land on), so tests install a fake that just
// records the call, the same override-seam idiom internal/irq,
// internal/pmm, and internal/trap already use for their own
// hardware-only primitives.
var switchFunc = swtch.Switch

// SetSwitchFunc overrides switchFunc for the duration of a test,
// returning a function that restores the previous one.
func SetSwitchFunc(fn func(save, load *swtch.TaskContext)) (restore func()) {
	prev := switchFunc
	switchFunc = fn
	return func() { switchFunc = prev }
}

// AddTask pushes tcb to the back of the ready queue.
func AddTask(tcb *task.TCB) {
	ready.mu.Lock()
	defer ready.mu.Unlock()
	ready.tasks = append(ready.tasks, tcb)
}

// FetchTask pops the task at the front of the ready queue, if any.
func FetchTask() (*task.TCB, bool) {
	ready.mu.Lock()
	defer ready.mu.Unlock()
	if len(ready.tasks) == 0 {
		return nil, false
	}
	tcb := ready.tasks[0]
	ready.tasks = ready.tasks[1:]
	return tcb, true
}

// Schedule implements spec.md §4.9's schedule(guard): tcb's inner lock
// must already be held (inner is the pointer Lock() returned) and its
// state must not be Running. It saves the hart's interrupt-nest state,
// hands the guard off through tcb's HandOff slot, and switches from
// tcb's TaskContext to the hart's schedule-loop context. Control returns
// here only the next time the scheduler chooses tcb to run again; at
// that point the saved interrupt-nest state is restored and the
// hand-off guard is dropped.
func Schedule(tcb *task.TCB, inner *task.Inner) {
	if inner.State == task.Running {
		panic("sched: Schedule called with the task still Running")
	}
	h := hart.Current()
	savedNest, savedEnabled := h.IRQNest, h.IRQSavedState

	tcb.HandOff.Store(tcb)
	switchFunc(&inner.Context, &h.ScheduleLoopContext)

	h.IRQNest, h.IRQSavedState = savedNest, savedEnabled
	tcb.HandOff.Take()
}

// currentTCB narrows the hart's opaque CurrentTask back to a *task.TCB,
// or nil if nothing is running (the idle schedule loop itself calling
// YieldCurrent would be a bug, hence the nil check rather than a panic).
func currentTCB() *task.TCB {
	h := hart.Current()
	tcb, _ := h.CurrentTask.(*task.TCB)
	return tcb
}

// YieldCurrent implements spec.md §4.9's yield_current(): take the
// current task's inner lock, set it Ready, re-enqueue it (before the
// hand-off, so a concurrent fetch_task on another hart could never see
// it as both queued and mid-switch), then schedule away.
func YieldCurrent() {
	tcb := currentTCB()
	if tcb == nil {
		return
	}
	inner := tcb.Lock()
	inner.State = task.Ready
	AddTask(tcb)
	Schedule(tcb, inner)
}

// ExitCurrent implements spec.md §4.9's exit_current(code), delegating
// the three TCB-owned destruction steps to task.TCB.Exit and handling
// only the final step here: schedule() with the now-Zombie TCB's guard,
// so control returns to the scheduler loop which drops the guard (and
// the TCB, once nothing else references it) per spec.md §4.8 step 4.
func ExitCurrent(code int) {
	tcb := currentTCB()
	if tcb == nil {
		return
	}
	inner := tcb.Exit(code)
	Schedule(tcb, inner)
}

// Loop runs the schedule loop spec.md §4.9 describes: the kernel's
// outermost user-space scheduler activity, executing on the hart's boot
// stack. enableInterrupts is injected rather than imported to keep sched
// independent of the irq package's CSR-level details; boot code wires it
// to irq.GlobalEnable. Loop never returns when stopAfter is nil; a
// non-nil stopAfter is checked on every idle iteration and after every
// task switches back, purely to let tests terminate it.
func Loop(enableInterrupts func(), stopAfter func() bool) {
	for {
		enableInterrupts()
		next, ok := FetchTask()
		if !ok {
			if stopAfter != nil && stopAfter() {
				return
			}
			runtime.Gosched()
			continue
		}

		inner := next.Lock()
		if inner.State != task.Ready {
			panic("sched: fetched a task that was not Ready")
		}
		inner.State = task.Running

		h := hart.Current()
		h.CurrentTask = next
		next.HandOff.Store(next)

		switchFunc(&h.ScheduleLoopContext, &inner.Context)

		// ---- execution resumes here only when the running task yields or exits ----
		// HandOff.Take() below drops the lock next's own yield/exit path
		// stored before switching away; the inner state it protected is
		// read just before that drop, same as the loop pseudocode's
		// "match guard.state" happening before "drop(guard)".
		state := inner.State
		next.HandOff.Take()
		h.CurrentTask = nil

		switch state {
		case task.Ready:
			AddTask(next)
		case task.Zombie:
			// The TCB's remaining owning references (parent/children/group
			// lists) were already dropped by task.TCB.Exit; once the ready
			// queue's reference (never taken, since Exit bypasses
			// re-enqueue) and this local one go out of scope, the TCB and
			// its trailing resources are collected.
		default:
			panic("sched: task returned to the scheduler in an unexpected state")
		}

		if stopAfter != nil && stopAfter() {
			return
		}
	}
}
