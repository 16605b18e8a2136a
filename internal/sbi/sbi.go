// Package sbi names the Supervisor Binary Interface collaborator
// contract this kernel relies on — console output, timer programming,
// and system reset. SBI itself is firmware the kernel runs on top of,
// out of scope per spec.md §1's "named only by their contract"
// boundary; this package only issues the ECALLs that reach it (HSM in
// ecall.go) and supplies a Fake for tests. Ground: biscuit's own hardware boundary
// packages (e.g. the SBI-level ties described alongside mem.Physmem_t)
// are consumed through a narrow interface rather than vendored, the same
// shape kept here.
package sbi

// Provider is the SBI surface this kernel's trap and syscall handlers
// reach through. On real hardware HSM (ecall.go) implements it, each
// method an ECALL serviced by M-mode firmware; Fake is the other
// in-module implementation, built for tests.
type Provider interface {
	// ConsolePutchar writes one byte to the platform console.
	ConsolePutchar(b byte)
	// SetTimer programs the next timer interrupt at the given mtimecmp
	// value, used by the trap handler's CauseSupervisorTimer path.
	SetTimer(mtimecmp uint64)
	// SystemReset requests a shutdown or reboot; reason/failure follow
	// the SBI System Reset extension's own encoding.
	SystemReset(reason, failure uint32)
}

// Current is the provider wired by boot code. It starts nil; code that
// calls through it before boot installs the real SBI binding (or a Fake,
// in tests) will panic, which is intentional — there is no safe default
// for "write to the console" on hardware that hasn't been identified yet.
var Current Provider

// SetProvider installs p as Current, returning a function that restores
// the previous provider — the same override-seam shape used throughout
// this kernel's hardware-facing packages.
func SetProvider(p Provider) (restore func()) {
	prev := Current
	Current = p
	return func() { Current = prev }
}
