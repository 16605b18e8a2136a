package syscall

import "rvkernel/internal/defs"

func init() { Register(defs.SysGetTime, sysGetTime) }

// nowMicrosFunc returns elapsed microseconds since boot. It is a
// function variable, in the same override-seam style internal/irq and
// internal/trap use for their hardware-facing hooks, because reading
// the mtime CSR has no meaning under go test; boot code wires it to a
// real CSR read scaled by the board's clock frequency.
var nowMicrosFunc = func() uint64 { return 0 }

// SetNowMicrosFunc installs the elapsed-microseconds hook and returns a
// function restoring the previous one.
func SetNowMicrosFunc(fn func() uint64) (restore func()) {
	prev := nowMicrosFunc
	nowMicrosFunc = fn
	return func() { nowMicrosFunc = prev }
}

// sysGetTime returns the elapsed time since boot in microseconds, the
// same unit the minimum handler set's sleep-loop test program expects
// (spec.md §8's yield-loop scenario: "yields until 3000 µs have
// elapsed").
func sysGetTime(args [6]uint64) int64 {
	return int64(nowMicrosFunc())
}
