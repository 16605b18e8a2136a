package task

import (
	"debug/elf"
	"encoding/binary"
	"testing"
	"unsafe"

	"rvkernel/internal/board"
	"rvkernel/internal/hart"
	"rvkernel/internal/memset"
	"rvkernel/internal/pmm"
	"rvkernel/internal/pmm/pmmtest"
	"rvkernel/internal/trap"
)

func TestIDAllocatorRecyclesFreedIDs(t *testing.T) {
	var a idAllocator
	id1 := a.alloc()
	id2 := a.alloc()
	if id1 == id2 {
		t.Fatal("alloc returned duplicate IDs")
	}
	a.free(id1)
	id3 := a.alloc()
	if id3 != id1 {
		t.Fatalf("alloc() = %d, want recycled %d", id3, id1)
	}
}

func TestFdTableInstallGetClose(t *testing.T) {
	var tbl FdTable
	f := &fakeFdops{}
	fd := tbl.Install(f)
	got, ok := tbl.Get(fd)
	if !ok || got != f {
		t.Fatal("Get did not return the installed Fdops")
	}
	if err := tbl.Close(fd); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !f.closed {
		t.Fatal("Close did not call through to Fdops.Close")
	}
	if _, ok := tbl.Get(fd); ok {
		t.Fatal("Get succeeded on a closed slot")
	}
}

func TestFdTableInstallReusesClosedSlot(t *testing.T) {
	var tbl FdTable
	a := tbl.Install(&fakeFdops{})
	tbl.Close(a)
	b := tbl.Install(&fakeFdops{})
	if a != b {
		t.Fatalf("Install() = %d, want reused slot %d", b, a)
	}
}

type fakeFdops struct{ closed bool }

func (f *fakeFdops) Read(p []byte) (int, error)  { return 0, nil }
func (f *fakeFdops) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeFdops) Close() error                { f.closed = true; return nil }

func TestAccntAddIsCumulative(t *testing.T) {
	var a Accnt
	a.AddUser(100)
	a.AddUser(50)
	a.AddSys(7)
	if a.UserNanos != 150 {
		t.Fatalf("UserNanos = %d, want 150", a.UserNanos)
	}
	if a.SysNanos != 7 {
		t.Fatalf("SysNanos = %d, want 7", a.SysNanos)
	}
}

func buildMinimalELF() []byte {
	const (
		ehsize  = 64
		phsize  = 56
		vaddr   = 0x10000
		codeLen = 16
	)
	total := ehsize + phsize + codeLen
	buf := make([]byte, total)
	le := binary.LittleEndian

	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4], buf[5], buf[6] = 2, 1, 1
	le.PutUint16(buf[16:18], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:20], uint16(elf.EM_RISCV))
	le.PutUint32(buf[20:24], 1)
	le.PutUint64(buf[24:32], vaddr)
	le.PutUint64(buf[32:40], ehsize)
	le.PutUint16(buf[52:54], ehsize)
	le.PutUint16(buf[54:56], phsize)
	le.PutUint16(buf[56:58], 1)

	ph := buf[ehsize : ehsize+phsize]
	le.PutUint32(ph[0:4], uint32(elf.PT_LOAD))
	le.PutUint32(ph[4:8], uint32(elf.PF_R|elf.PF_X))
	le.PutUint64(ph[8:16], uint64(ehsize+phsize))
	le.PutUint64(ph[16:24], vaddr)
	le.PutUint64(ph[24:32], vaddr)
	le.PutUint64(ph[32:40], codeLen)
	le.PutUint64(ph[40:48], codeLen)
	le.PutUint64(ph[48:56], 4096)

	copy(buf[ehsize+phsize:], []byte("RISCVCODEBLOCK!!"))
	return buf
}

func TestNewFromELFBuildsRunnableTask(t *testing.T) {
	pmmtest.UseHostArena(t, 10000, 10500)
	memset.SetTrampolineFrame(10499)

	kms, ok := memset.NewBare()
	if !ok {
		t.Fatal("NewBare for kernel memory set failed")
	}
	kms.MapTrampoline()
	KernelMemSet = kms
	t.Cleanup(func() { KernelMemSet = nil })

	b := board.QEMU
	tcb, err := NewFromELF("init", buildMinimalELF(), &b, 0xffffffffbfff0000, 0xffffffffbffe0000)
	if err != nil {
		t.Fatalf("NewFromELF() error = %v", err)
	}

	inner := tcb.Lock()
	defer tcb.Unlock()
	if inner.State != Ready {
		t.Fatalf("State = %v, want Ready", inner.State)
	}
	if inner.Resources == nil {
		t.Fatal("Resources is nil for a freshly created user task")
	}
	if inner.Context.SP != uint64(tcb.KstackTop()) {
		t.Fatalf("Context.SP = %#x, want kernel stack top %#x", inner.Context.SP, tcb.KstackTop())
	}

	pte, ok := inner.Resources.MemSet.Translate(inner.Resources.TrapContextVPN)
	if !ok {
		t.Fatal("trap-context VPN does not translate")
	}
	page := pmm.Bytes(pte.PPN())
	tc := *(*trap.TrapContext)(unsafe.Pointer(&page[0]))
	if tc.Sepc != uint64(inner.Resources.Entry) {
		t.Fatalf("TrapContext.Sepc = %#x, want entry %#x", tc.Sepc, inner.Resources.Entry)
	}
	if tc.KernelSatp != KernelMemSet.Token() {
		t.Fatal("TrapContext.KernelSatp does not match the kernel memory set's token")
	}
	if tc.KernelSp != uint64(tcb.KstackTop()) {
		t.Fatal("TrapContext.KernelSp does not match the kernel stack top")
	}
	if tc.TrapHandler != 0xffffffffbfff0000 {
		t.Fatal("TrapContext.TrapHandler does not match the handler VA passed to NewFromELF")
	}
}

// TestNewUserTaskStartDropsHandOffAndReturnsToUser exercises the path
// spec.md §4.8 lines 182/185 names: a freshly created task's
// TaskContext.RA lands here on its first switch-in, with the hart's
// CurrentTask and the TCB's own HandOff slot set up exactly as
// sched.Loop (sched.go:140-158) leaves them just before switchFunc
// "returns" into this function instead of back into Loop.
func TestNewUserTaskStartDropsHandOffAndReturnsToUser(t *testing.T) {
	tcb := &TCB{id: 7}

	inner := tcb.Lock()
	inner.State = Running
	tcb.HandOff.Store(tcb)

	hart.Current().CurrentTask = tcb
	t.Cleanup(func() { hart.Current().CurrentTask = nil })

	restoreVectors := trap.SetTrapVectorFuncs(func() {}, func() {})
	t.Cleanup(restoreVectors)
	trap.SetCurrentTaskFuncs(
		func() *trap.TrapContext { return &trap.TrapContext{} },
		func() uint64 { return 0xabcd },
	)
	trap.SetCurrentTaskIDFunc(func() int { return tcb.ID() })

	var jumped bool
	trap.SetHardwareFuncs(func() {}, func() {}, func() {},
		func(restoreVA, trapCtxVA, token uint64) { jumped = true })

	if !tcb.HandOff.Occupied() {
		t.Fatal("HandOff should be occupied before NewUserTaskStart runs, matching Loop's pre-switch state")
	}

	NewUserTaskStart()

	if tcb.HandOff.Occupied() {
		t.Fatal("NewUserTaskStart left the HandOff guard in place; it must Take() it on first entry")
	}
	if !jumped {
		t.Fatal("NewUserTaskStart never reached trap.Return's jump back to user mode")
	}

	// HandOff.Take() unlocked tcb.mu via tcb.Unlock(); acquiring it again
	// here must not deadlock.
	tcb.Lock()
	tcb.Unlock()
}

func TestNewUserTaskStartPanicsWithNoCurrentTask(t *testing.T) {
	hart.Current().CurrentTask = nil

	defer func() {
		if recover() == nil {
			t.Fatal("NewUserTaskStart did not panic with no current task installed")
		}
	}()
	NewUserTaskStart()
}
