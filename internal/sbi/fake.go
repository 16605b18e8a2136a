package sbi

// Fake is an in-memory Provider double for tests: console bytes land in
// Console, SetTimer calls are recorded in TimerCalls, and SystemReset
// calls are recorded in ResetCalls rather than ever halting the test
// process. Ground: spec.md §8's note that none of this can run against
// real SBI from go test — the same reasoning that put sbi.Fake behind
// internal/trap's and internal/syscall's own test-only wiring.
type Fake struct {
	Console    []byte
	TimerCalls []uint64
	ResetCalls [][2]uint32
}

// ConsolePutchar appends b to Console.
func (f *Fake) ConsolePutchar(b byte) { f.Console = append(f.Console, b) }

// SetTimer records the requested mtimecmp value.
func (f *Fake) SetTimer(mtimecmp uint64) { f.TimerCalls = append(f.TimerCalls, mtimecmp) }

// SystemReset records the requested reason/failure pair.
func (f *Fake) SystemReset(reason, failure uint32) {
	f.ResetCalls = append(f.ResetCalls, [2]uint32{reason, failure})
}
