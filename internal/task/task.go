// Package task implements the task control block and the resources a
// live user task owns: its memory set, kernel/user stacks, trap-context
// page, fd table, and per-task accounting (spec.md §4.8).
//
// Ground: biscuit's Tnote_t/Tcache patterns in tinfo/tinfo.go for the
// "immutable header + locked inner state" split, fd.Fd_t/Cwd_t in
// fd/fd.go for the fd table, accnt.Accnt_t in accnt/accnt.go for
// per-task CPU accounting (SPEC_FULL §4.8.1), and msi.Msivecs_t in
// msi/msi.go for the "stack of freed IDs, fresh counter otherwise"
// shape of the task/kernel-stack/user-stack ID allocators spec.md §3
// calls for.
package task

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"rvkernel/internal/addr"
	"rvkernel/internal/board"
	"rvkernel/internal/console"
	"rvkernel/internal/defs"
	"rvkernel/internal/hart"
	"rvkernel/internal/klock"
	"rvkernel/internal/memset"
	"rvkernel/internal/pmm"
	"rvkernel/internal/swtch"
	"rvkernel/internal/trap"
)

// idAllocator is the recycling integer allocator spec.md §3 specifies
// for task IDs, kernel-stack IDs, and user-stack IDs: a stack of freed
// IDs, a fresh monotonic counter otherwise. Ground: msi.Msivecs_t's
// map-based pool generalized from a fixed vector of MSI numbers to an
// unbounded counter, since task/stack IDs have no hardware-imposed
// ceiling the way MSI vectors do.
type idAllocator struct {
	mu    klock.Spin
	next  int
	freed []int
}

func (a *idAllocator) alloc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.freed); n > 0 {
		id := a.freed[n-1]
		a.freed = a.freed[:n-1]
		return id
	}
	id := a.next
	a.next++
	return id
}

func (a *idAllocator) free(id int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freed = append(a.freed, id)
}

var (
	taskIDs   idAllocator
	kstackIDs idAllocator
)

// AllocTaskID draws a fresh or recycled task ID.
func AllocTaskID() defs.TaskID { return defs.TaskID(taskIDs.alloc()) }

// FreeTaskID returns a task ID to the pool.
func FreeTaskID(id defs.TaskID) { taskIDs.free(int(id)) }

// AllocKstackID draws a fresh or recycled kernel-stack ID.
func AllocKstackID() defs.KstackID { return defs.KstackID(kstackIDs.alloc()) }

// FreeKstackID returns a kernel-stack ID to the pool.
func FreeKstackID(id defs.KstackID) { kstackIDs.free(int(id)) }

// State is a task's lifecycle state (spec.md §3).
type State int

const (
	Ready State = iota
	Running
	Blocking
	Zombie
	Dead
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocking:
		return "Blocking"
	case Zombie:
		return "Zombie"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// Fdops is the contract a file-like object must satisfy to occupy a fd
// slot (ground: biscuit's fdops.Fdops_i, narrowed to the operations
// spec.md's minimum syscall set actually drives — read, write, close).
type Fdops interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// FdTable is a per-task-group table of open file descriptors (ground:
// fd.Fd_t — an Fdops plus permission bits — collected into a slice the
// way biscuit's process struct holds []*Fd_t).
type FdTable struct {
	mu  klock.Spin
	fds []Fdops // nil entries are closed/unused slots
}

// Install places f in the lowest free slot and returns its descriptor
// number.
func (t *FdTable) Install(f Fdops) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.fds {
		if existing == nil {
			t.fds[i] = f
			return i
		}
	}
	t.fds = append(t.fds, f)
	return len(t.fds) - 1
}

// Get returns the Fdops at fd, or false if the slot is closed or out of
// range.
func (t *FdTable) Get(fd int) (Fdops, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.fds) || t.fds[fd] == nil {
		return nil, false
	}
	return t.fds[fd], true
}

// Close closes and clears the slot at fd.
func (t *FdTable) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.fds) || t.fds[fd] == nil {
		return defs.New(defs.InvalidEntry)
	}
	err := t.fds[fd].Close()
	t.fds[fd] = nil
	return err
}

// Accnt accumulates per-task CPU accounting (SPEC_FULL §4.8.1). Ground:
// accnt.Accnt_t, narrowed to the two counters this kernel actually
// reports (no rusage serialization — there is no rusage syscall in
// spec.md's minimum set).
type Accnt struct {
	UserNanos int64
	SysNanos  int64
}

// AddUser adds delta nanoseconds to the user-time counter.
func (a *Accnt) AddUser(delta int64) { atomic.AddInt64(&a.UserNanos, delta) }

// AddSys adds delta nanoseconds to the system-time counter.
func (a *Accnt) AddSys(delta int64) { atomic.AddInt64(&a.SysNanos, delta) }

// Group is the set of tasks created by the same initial fork, sharing
// an fd table and a per-group user-stack-ID allocator. The leader owns
// the group's lifetime.
type Group struct {
	mu         klock.Spin
	Leader     *TCB
	Members    []*TCB
	Fds        FdTable
	userStacks idAllocator
}

// AllocUserStackID draws a fresh or recycled user-stack ID scoped to
// this group.
func (g *Group) AllocUserStackID() int { return g.userStacks.alloc() }

// FreeUserStackID returns a user-stack ID to this group's pool.
func (g *Group) FreeUserStackID(id int) { g.userStacks.free(id) }

// memberCount reports how many tasks remain in the group.
func (g *Group) memberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Members)
}

// removeMember drops t from the group's member list.
func (g *Group) removeMember(t *TCB) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.Members {
		if m == t {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

// UserResources is present on every live user task (spec.md §4.8): the
// shared memory set, stack/trap-context guards, entry point, and the
// ownership edges to parent/children/group.
type UserResources struct {
	MemSet          *memset.MemorySet
	UserStackID     int
	UserStackGuard  addr.VirtPageNum // guard page VPN just below the stack
	TrapContextVPN  addr.VirtPageNum
	Entry           addr.VirtAddr

	// Parent and GroupLeader are weak (non-owning) references up the
	// tree, per spec.md §9. Children and Group are owning references
	// down.
	Parent      *TCB
	GroupLeader *TCB
	Children    []*TCB
	Group       *Group

	Accnt Accnt
}

// Inner is the TCB's locked, mutable state.
type Inner struct {
	State     State
	ExitCode  int // valid once State == Zombie
	Context   swtch.TaskContext
	Resources *UserResources // nil for a kernel-only task
}

// TCB is the task control block.
type TCB struct {
	id        defs.TaskID
	name      string
	isLeader  bool
	kstackID  defs.KstackID
	kstackTop addr.VirtAddr

	mu    klock.IRQSpin
	inner Inner

	HandOff klock.HandoffSlot
}

// ID returns the task's ID, satisfying internal/hart's Task interface.
func (t *TCB) ID() int { return int(t.id) }

// Name returns the task's name.
func (t *TCB) Name() string { return t.name }

// IsLeader reports whether this task is its group's leader.
func (t *TCB) IsLeader() bool { return t.isLeader }

// KstackTop returns the kernel stack's top VA, installed as the trap
// context's kernel_sp.
func (t *TCB) KstackTop() addr.VirtAddr { return t.kstackTop }

// Lock acquires the TCB's inner lock and returns it for direct field
// access. Callers must Unlock (or, around a context switch, Store it in
// the HandOff slot instead — see spec.md §4.6).
func (t *TCB) Lock() *Inner {
	t.mu.Lock()
	return &t.inner
}

// Unlock releases the TCB's inner lock.
func (t *TCB) Unlock() { t.mu.Unlock() }

// ExitNotice is sent on ExitNotifications when a task becomes a Zombie —
// the parent-notify stub spec.md §4.8's destruction step 3 calls for.
// Ground: biscuit's oommsg.OomCh channel-notification idiom, adapted
// from "notify on low memory" to "notify on child exit".
type ExitNotice struct {
	TaskID defs.TaskID
	Code   int
}

// ExitNotifications carries one ExitNotice per exiting task. It is
// buffered so Exit never blocks on a slow or absent reader; a full
// channel silently drops the notice, matching a best-effort stub.
var ExitNotifications = make(chan ExitNotice, 64)

// Exit runs the first three of spec.md §4.8's four destruction steps:
// if t is its group's leader, wait for every other member to drain;
// release the user memory set and this task's group membership; set
// state to Zombie(code) and notify the parent. It returns the locked
// Inner (still held, exactly as yield_current hands a locked Inner to
// the scheduler) so the caller can hand it to sched.Schedule without a
// second lock acquisition.
//
// The leader-drain wait is a busy spin, the interim choice recorded for
// spec.md §9's open question: this single-hart build never runs another
// task's code while the loop spins, so the spin only terminates once
// every member has already exited through this same path on a prior
// scheduling pass.
func (t *TCB) Exit(code int) *Inner {
	inner := t.Lock()
	if t.isLeader && inner.Resources != nil {
		if g := inner.Resources.Group; g != nil {
			for g.memberCount() > 1 {
				runtime.Gosched()
			}
		}
	}
	if inner.Resources != nil {
		inner.Resources.MemSet = nil
		if g := inner.Resources.Group; g != nil {
			g.removeMember(t)
		}
	}
	inner.State = Zombie
	inner.ExitCode = code
	select {
	case ExitNotifications <- ExitNotice{TaskID: t.id, Code: code}:
	default:
	}
	return inner
}

// KernelMemSet is the single kernel memory set every kernel stack is
// mapped into. It is set once by boot code before any task is created.
var KernelMemSet *memset.MemorySet

// bootBoard, trapHandlerVA and newUserTaskStartVA mirror the three
// values NewFromELF's callers pass explicitly, recorded separately so
// Fork — invoked deep inside a running task's syscall handling, with
// none of boot's parameters in hand — can reuse them.
var (
	bootBoard          *board.Board
	trapHandlerVA      uint64
	newUserTaskStartVA uint64
)

// SetBootParams records the board and the two trampoline-entry
// addresses every task creation path needs. Boot code calls this once
// with the same values it passes to the init task's NewFromELF call.
func SetBootParams(b *board.Board, trapHandler, newUserTaskStart uint64) {
	bootBoard = b
	trapHandlerVA = trapHandler
	newUserTaskStartVA = newUserTaskStart
}

// currentTCB narrows the hart's opaque CurrentTask back to a *TCB, or
// nil if nothing is running on it.
func currentTCB() *TCB {
	tcb, _ := hart.Current().CurrentTask.(*TCB)
	return tcb
}

// NewUserTaskStart is the kernel-side entry spec.md §4.8 names
// (new_user_task_start, lines 182/185): every freshly created task's
// TaskContext.RA — set by NewFromELF and Fork — points here, and its
// only job on first switch-in is to drop the lock-hand-off guard
// Schedule/Loop stored before switching to this task, then fall into
// trap_return to enter user mode for the first time. Like
// trapHandlerVA, the raw virtual address a fresh TaskContext.RA
// actually carries is a linker-resolved symbol outside this exercise's
// scope (cmd/mkuimg's manifest patch step is where a real image would
// fill it in, pointing at wherever the linker placed this function's
// machine code); NewUserTaskStart itself is the real Go-side body that
// address would jump to, not a placeholder.
func NewUserTaskStart() {
	tcb := currentTCB()
	if tcb == nil {
		panic("task: NewUserTaskStart run with no current task installed")
	}
	tcb.HandOff.Take()
	trap.Return()
}

// kstackRange computes the [bottom, top) VA range kernel-stack id
// occupies in the kernel memory set: stacks descend from TRAMPOLINE,
// each separated from its neighbour by one guard page, exactly as
// spec.md §3 describes ("placed at a deterministic offset indexed by
// kernel-stack ID, separated from the neighbour by a guard page").
func kstackRange(id defs.KstackID, stackSize, guardSize uint64) (bottom, top addr.VirtAddr) {
	stride := stackSize + guardSize
	top = addr.VirtAddr(board.TRAMPOLINE - uint64(id)*stride - guardSize)
	bottom = addr.VirtAddr(uint64(top) - stackSize)
	return bottom, top
}

// ustackRange computes the [bottom, top) VA range user-stack id
// occupies above base, the VPN FromELF returned as the highest mapped
// page, each stack separated by a guard page (spec.md §3).
func ustackRange(base addr.VirtPageNum, id int, stackSize, guardSize uint64) (bottom, top addr.VirtAddr) {
	baseVA := base.Addr()
	stride := stackSize + guardSize
	bottom = addr.VirtAddr(uint64(baseVA) + uint64(id)*stride + guardSize)
	top = addr.VirtAddr(uint64(bottom) + stackSize)
	return bottom, top
}

// NewFromELF builds a fresh task from an ELF image, following the
// seven-step creation sequence spec.md §4.8 specifies. trapHandlerVA is
// the virtual address trap_handler's assembly entry wrapper lives at
// (the same in every address space, since it is reached only through
// the TRAMPOLINE page); newUserTaskStartVA is the kernel-side entry
// every freshly created task's TaskContext.RA points at.
func NewFromELF(name string, elfBytes []byte, b *board.Board, trapHandlerVA, newUserTaskStartVA uint64) (*TCB, error) {
	if KernelMemSet == nil {
		panic("task: NewFromELF called before KernelMemSet is set")
	}

	id := AllocTaskID()
	kid := AllocKstackID()

	kBottom, kTop := kstackRange(kid, b.KernelStackSize, b.GuardPageSize)
	KernelMemSet.InsertFramedArea(kBottom, kTop, memset.PermR|memset.PermW)

	userMemSet, userStackBase, entry, err := memset.FromELF(elfBytes)
	if err != nil {
		FreeTaskID(id)
		FreeKstackID(kid)
		return nil, err
	}

	group := &Group{}
	// stdin, stdout, stderr all name the console, the only device this
	// kernel's fd table can hold without a real filesystem.
	group.Fds.Install(console.Console{})
	group.Fds.Install(console.Console{})
	group.Fds.Install(console.Console{})
	uid := group.AllocUserStackID()
	uBottom, uTop := ustackRange(userStackBase, uid, b.UserStackSize, b.GuardPageSize)
	userMemSet.InsertFramedArea(uBottom, uTop, memset.PermR|memset.PermW|memset.PermU)

	trapCtxVPN := addr.VirtAddr(board.TrapContextStart - uint64(id)*board.PageSize).Floor()
	userMemSet.InsertFramedArea(trapCtxVPN.Addr(), addr.VirtAddr(uint64(trapCtxVPN.Addr())+board.PageSize), memset.PermR|memset.PermW)

	tcb := &TCB{id: id, name: name, isLeader: true, kstackID: kid, kstackTop: kTop}
	tcb.inner.State = Ready
	tcb.inner.Context = swtch.NewTaskContext(newUserTaskStartVA, uint64(kTop))
	tcb.inner.Resources = &UserResources{
		MemSet:         userMemSet,
		UserStackID:    uid,
		UserStackGuard: uBottom.Floor() - 1,
		TrapContextVPN: trapCtxVPN,
		Entry:          entry,
		GroupLeader:    tcb,
		Group:          group,
	}

	group.Leader = tcb
	group.Members = append(group.Members, tcb)

	tc := trap.NewTrapContext(uint64(entry), uint64(uTop), KernelMemSet.Token(), uint64(kTop), 0, trapHandlerVA)
	tcPTE, ok := userMemSet.Translate(trapCtxVPN)
	if !ok {
		panic("task: trap-context page missing its own translation right after mapping")
	}
	page := pmm.Bytes(tcPTE.PPN())
	*(*trap.TrapContext)(unsafe.Pointer(&page[0])) = tc

	return tcb, nil
}

// Fork implements SPEC_FULL §4.12.1's fork supplement: clone t's user
// memory set and trap context into a brand new task joined to t's
// group, with the child's trap-context a0 set to 0 (the fork() return
// value convention every child process observes), and enqueue no
// state of its own — the caller (internal/syscall's fork handler)
// adds the child to the scheduler's ready queue. The kernel stack is
// the one piece of state Fork cannot simply clone: it is a slot in
// the shared KernelMemSet indexed by kernel-stack ID, so Fork draws a
// fresh ID and maps a fresh range exactly as NewFromELF does.
//
// Ground: SPEC_FULL §4.12.1, adapted from original_source/os/src/
// task/mod.rs's TaskControlBlock::fork, which likewise clones the
// parent's MemorySet and TrapContext and clears the child's a0.
func (t *TCB) Fork() (*TCB, error) {
	if bootBoard == nil {
		panic("task: Fork called before SetBootParams")
	}

	parentInner := t.Lock()
	parentRes := parentInner.Resources
	if parentRes == nil {
		t.Unlock()
		return nil, defs.New(defs.InvalidEntry)
	}
	parentMemSet := parentRes.MemSet
	parentTrapVPN := parentRes.TrapContextVPN
	userStackID := parentRes.UserStackID
	userStackGuard := parentRes.UserStackGuard
	entry := parentRes.Entry
	groupLeader := parentRes.GroupLeader
	group := parentRes.Group
	t.Unlock()

	childMemSet, ok := memset.FromOtherUser(parentMemSet)
	if !ok {
		return nil, defs.New(defs.OutOfMemory)
	}

	id := AllocTaskID()
	kid := AllocKstackID()
	kBottom, kTop := kstackRange(kid, bootBoard.KernelStackSize, bootBoard.GuardPageSize)
	KernelMemSet.InsertFramedArea(kBottom, kTop, memset.PermR|memset.PermW)

	child := &TCB{id: id, name: t.name, isLeader: false, kstackID: kid, kstackTop: kTop}
	child.inner.State = Ready
	child.inner.Context = swtch.NewTaskContext(newUserTaskStartVA, uint64(kTop))
	child.inner.Resources = &UserResources{
		MemSet:         childMemSet,
		UserStackID:    userStackID,
		UserStackGuard: userStackGuard,
		TrapContextVPN: parentTrapVPN,
		Entry:          entry,
		Parent:         t,
		GroupLeader:    groupLeader,
		Group:          group,
	}

	tcPTE, ok := childMemSet.Translate(parentTrapVPN)
	if !ok {
		panic("task: Fork's cloned memory set lost its trap-context translation")
	}
	page := pmm.Bytes(tcPTE.PPN())
	tc := (*trap.TrapContext)(unsafe.Pointer(&page[0]))
	tc.KernelSatp = KernelMemSet.Token()
	tc.KernelSp = uint64(kTop)
	tc.X[10] = 0 // a0: the fork() return value convention the child observes

	group.mu.Lock()
	group.Members = append(group.Members, child)
	group.mu.Unlock()

	parentInner = t.Lock()
	if parentInner.Resources != nil {
		parentInner.Resources.Children = append(parentInner.Resources.Children, child)
	}
	t.Unlock()

	return child, nil
}

// ReapStatus reports what Reap found.
type ReapStatus int

const (
	// ReapOK means a matching Zombie child was found and released.
	ReapOK ReapStatus = iota
	// ReapNotExited means a matching child exists but has not yet
	// become a Zombie — the waitpid caller's conventional signal to
	// try again.
	ReapNotExited
	// ReapNoChild means pid names none of t's children at all.
	ReapNoChild
)

// releaseKernelStack unmaps t's slot in KernelMemSet and returns its
// kernel-stack ID to the pool, the one piece of a task's footprint
// Exit does not already release (Exit only drops the user memory set
// and group membership; the kernel stack survives until a parent
// actually reaps the zombie, since trap_return still needs it live
// right up until the task's last switch away).
func (t *TCB) releaseKernelStack() {
	kBottom, _ := kstackRange(t.kstackID, bootBoard.KernelStackSize, bootBoard.GuardPageSize)
	KernelMemSet.RemoveAreaWithStartVPN(kBottom.Floor())
	FreeKstackID(t.kstackID)
}

// Reap implements SPEC_FULL §4.12.1's waitpid supplement: it looks
// for a child of t matching pid (-1 matches any child) that has
// already become a Zombie, removes it from t's children list, frees
// its kernel stack and task ID, and returns its exit code. Ground:
// original_source/os/src/task/mod.rs's TaskControlBlockInner::children
// scan, adapted to this kernel's locked-Inner/UserResources split.
func (t *TCB) Reap(pid int) (childID int, exitCode int, status ReapStatus) {
	inner := t.Lock()
	res := inner.Resources
	if res == nil {
		t.Unlock()
		return 0, 0, ReapNoChild
	}
	foundAny := false
	for i, c := range res.Children {
		if pid != -1 && c.ID() != pid {
			continue
		}
		foundAny = true
		cInner := c.Lock()
		if cInner.State != Zombie {
			c.Unlock()
			continue
		}
		code := cInner.ExitCode
		c.Unlock()
		res.Children = append(res.Children[:i], res.Children[i+1:]...)
		t.Unlock()
		c.releaseKernelStack()
		FreeTaskID(c.id)
		return int(c.id), code, ReapOK
	}
	t.Unlock()
	if foundAny {
		return 0, 0, ReapNotExited
	}
	return 0, 0, ReapNoChild
}
