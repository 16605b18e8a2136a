package kalloc

// global is the kernel heap singleton: the one Heap every other
// package's Alloc/Free calls reach, installed once at boot by
// InitGlobal. Tests that want an isolated heap construct their own
// Heap via Init instead of touching this one.
var global Heap

// InitGlobal installs arena as the kernel heap's backing store. A real
// boot sizes arena to board.Board.KernelHeapSize; go test's own heap
// exercises stay on a locally constructed Heap so one test's
// allocations can never perturb another's.
func InitGlobal(arena []byte) {
	Init(&global, arena)
}

// Alloc and Free operate on the kernel heap singleton boot installs
// via InitGlobal: the allocator a handler reaches for when it needs a
// kernel-owned buffer with a lifetime longer than the call that
// created it (internal/syscall's vendor test handler is the first such
// caller — see SPEC_FULL's cross-page scatter/gather path).
func Alloc(n int) []byte { return global.Alloc(n) }
func Free(b []byte)      { global.Free(b) }
