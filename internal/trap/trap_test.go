package trap

import "testing"

func withFakeHooks(t *testing.T, tc *TrapContext) (dispatched *struct {
	num  int64
	args [6]uint64
}) {
	t.Helper()
	dispatched = &struct {
		num  int64
		args [6]uint64
	}{}

	restoreVectors := SetTrapVectorFuncs(func() {}, func() {})
	t.Cleanup(restoreVectors)

	SetCurrentTaskFuncs(func() *TrapContext { return tc }, func() uint64 { return 0xABCD })
	SetCurrentTaskIDFunc(func() int { return 3 })

	prevEnable, prevDisable, prevTick, prevJump := enableInterruptsFunc, disableInterruptsFunc, programNextTickFunc, jumpToRestoreFunc
	enableInterruptsFunc = func() {}
	disableInterruptsFunc = func() {}
	programNextTickFunc = func() {}
	var gotRestoreVA, gotTrapCtxVA, gotToken uint64
	jumpToRestoreFunc = func(restoreVA, trapCtxVA, token uint64) {
		gotRestoreVA, gotTrapCtxVA, gotToken = restoreVA, trapCtxVA, token
	}
	t.Cleanup(func() {
		enableInterruptsFunc, disableInterruptsFunc, programNextTickFunc, jumpToRestoreFunc =
			prevEnable, prevDisable, prevTick, prevJump
	})

	prevDispatch := DispatchFunc
	DispatchFunc = func(num int64, args [6]uint64) int64 {
		dispatched.num = num
		dispatched.args = args
		return 42
	}
	t.Cleanup(func() { DispatchFunc = prevDispatch })

	prevExit := ExitCurrentFunc
	ExitCurrentFunc = func(code int) {}
	t.Cleanup(func() { ExitCurrentFunc = prevExit })

	prevYield := YieldFunc
	YieldFunc = func() {}
	t.Cleanup(func() { YieldFunc = prevYield })

	_ = gotRestoreVA
	_ = gotTrapCtxVA
	_ = gotToken
	return dispatched
}

func TestHandlerUserEnvCallDispatchesAndAdvancesSepc(t *testing.T) {
	tc := &TrapContext{Sepc: 0x1000}
	tc.X[17] = 64 // a7 = sys_write
	tc.X[10] = 7  // a0

	dispatched := withFakeHooks(t, tc)
	Handler(CauseUserEnvCall, 0)

	if tc.Sepc != 0x1004 {
		t.Fatalf("Sepc = %#x, want 0x1004", tc.Sepc)
	}
	if dispatched.num != 64 {
		t.Fatalf("dispatched syscall num = %d, want 64", dispatched.num)
	}
	if tc.X[10] != 42 {
		t.Fatalf("a0 after dispatch = %d, want 42 (dispatcher's return value)", tc.X[10])
	}
}

func TestHandlerFaultExitsCurrentTask(t *testing.T) {
	tc := &TrapContext{}
	exited := false
	withFakeHooks(t, tc)
	ExitCurrentFunc = func(code int) { exited = true }
	Handler(CauseLoadPageFault, 0xdead)
	if !exited {
		t.Fatal("expected ExitCurrentFunc to be called on a page fault")
	}
}

func TestHandlerTimerYields(t *testing.T) {
	tc := &TrapContext{}
	yielded := false
	withFakeHooks(t, tc)
	YieldFunc = func() { yielded = true }
	Handler(CauseSupervisorTimer, 0)
	if !yielded {
		t.Fatal("expected YieldFunc to be called on a timer interrupt")
	}
}

func TestHandlerUnknownCausePanics(t *testing.T) {
	tc := &TrapContext{}
	withFakeHooks(t, tc)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on an unhandled cause")
		}
	}()
	Handler(CauseOther, 0)
}
