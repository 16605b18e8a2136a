package sbi

// HSM is the concrete, hardware-facing Provider: every method is an
// SBI ecall trap into M-mode firmware. Ground: the same "Go stub +
// hand-written riscv64 .s body" idiom internal/swtch uses for its one
// piece of unavoidable assembly, applied here to the other place this
// kernel must cross out of pure Go — the ECALL instruction itself has
// no Go-expressible form.
//
// Legacy SBI extension IDs (console putchar 0x01, shutdown 0x08) and
// the Timer extension (0x54494D45, "TIME") are used rather than the
// newer Debug Console / System Reset extensions, matching what a
// minimal OpenSBI firmware build is guaranteed to implement.
type HSM struct{}

const (
	extConsolePutchar = 0x01
	extShutdown       = 0x08
	extSetTimer       = 0x54494D45
)

// ConsolePutchar traps into firmware via the legacy console-putchar
// extension.
func (HSM) ConsolePutchar(b byte) {
	ecall(extConsolePutchar, 0, uint64(b), 0, 0)
}

// SetTimer traps into firmware via the Timer extension, function 0
// ("set_timer").
func (HSM) SetTimer(mtimecmp uint64) {
	ecall(extSetTimer, 0, mtimecmp, 0, 0)
}

// SystemReset traps into firmware via the legacy shutdown extension.
// reason/failure are accepted for Provider-interface parity with the
// System Reset extension but are unused: the legacy extension never
// returns regardless of why the caller asked.
func (HSM) SystemReset(reason, failure uint32) {
	ecall(extShutdown, 0, 0, 0, 0)
}

// ecall traps to M-mode with the given SBI extension/function ID and
// up to three arguments, per the riscv64 ECALL calling convention
// (eid in a7, fid in a6, args in a0..a2). It never returns a value a
// caller here needs: every extension used above either doesn't return
// on success (shutdown) or has no result worth reporting.
//
//go:noescape
func ecall(eid, fid, a0, a1, a2 uint64)

// ReadTime reads the `time` CSR directly (the RDTIME pseudo-instruction),
// the wall-clock tick count boot code adds its tick interval to when
// reprogramming the timer via SetTimer.
//
//go:noescape
func ReadTime() uint64
