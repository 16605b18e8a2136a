// Package defs holds the error kinds, errno constants, and device/syscall
// numbers shared across every kernel package. It exists so that no package
// needs to import another merely to report an error.
package defs

import "fmt"

// Errno is the negative value returned to user space in a0 on syscall
// failure. Values match the subset of POSIX errno spec.md §6 enumerates.
type Errno int64

const (
	EPERM  Errno = 1  /// operation not permitted
	ENOENT Errno = 2  /// no such file or directory
	EBADF  Errno = 9  /// bad file descriptor
	ECHILD Errno = 10 /// no matching child process
	ENOMEM Errno = 12 /// out of memory
	EFAULT Errno = 14 /// bad address
	ENOSYS Errno = 38 /// function not implemented
)

// Neg returns the errno encoded as the negative isize the syscall ABI
// expects in a0.
func (e Errno) Neg() int64 {
	return -int64(e)
}

// MemKind enumerates the memory-subsystem error kinds from spec.md §7.
type MemKind int

const (
	InvalidEntry MemKind = iota
	OutOfMemory
	PermissionDenied
	AddressOutOfRange
	PageNotMapped
	Misaligned
	NonContinuous
	EmptyBuffer
)

func (k MemKind) String() string {
	switch k {
	case InvalidEntry:
		return "InvalidEntry"
	case OutOfMemory:
		return "OutOfMemory"
	case PermissionDenied:
		return "PermissionDenied"
	case AddressOutOfRange:
		return "AddressOutOfRange"
	case PageNotMapped:
		return "PageNotMapped"
	case Misaligned:
		return "Misaligned"
	case NonContinuous:
		return "NonContinuous"
	case EmptyBuffer:
		return "EmptyBuffer"
	}
	return "MemKind(?)"
}

// MemError is a memory-subsystem error value: its kind plus the optional
// address/limit/alignment/index fields. New builds one with no extra
// fields; OutOfRange, Unaligned and NonContig build the parameterized
// kinds (AddressOutOfRange, Misaligned, NonContinuous). Each returns a
// fresh *MemError; none goes through errors.New.
type MemError struct {
	Kind    MemKind
	Address uint64
	Max     uint64
	Align   uint64
	Idx     int
}

func (e *MemError) Error() string {
	switch e.Kind {
	case AddressOutOfRange:
		return fmt.Sprintf("memory: address %#x out of range (max %#x)", e.Address, e.Max)
	case Misaligned:
		return fmt.Sprintf("memory: address %#x misaligned (want multiple of %#x)", e.Address, e.Align)
	case NonContinuous:
		return fmt.Sprintf("memory: non-contiguous region at index %d", e.Idx)
	default:
		return "memory: " + e.Kind.String()
	}
}

// New builds a MemError of the given kind with no extra fields.
func New(kind MemKind) *MemError { return &MemError{Kind: kind} }

// OutOfRange builds an AddressOutOfRange MemError.
func OutOfRange(addr, max uint64) *MemError {
	return &MemError{Kind: AddressOutOfRange, Address: addr, Max: max}
}

// Unaligned builds a Misaligned MemError.
func Unaligned(addr, align uint64) *MemError {
	return &MemError{Kind: Misaligned, Address: addr, Align: align}
}

// NonContig builds a NonContinuous MemError.
func NonContig(idx int) *MemError {
	return &MemError{Kind: NonContinuous, Idx: idx}
}

// Device identifiers, ground: biscuit defs/device.go.
const (
	DevConsole int = 1
	DevNull    int = 2
	DevRawdisk int = 3
	DevStat    int = 4
)

// Syscall numbers, spec.md §6.
const (
	SysRead    = 63
	SysWrite   = 64
	SysOpen    = 56
	SysClose   = 57
	SysExit    = 93
	SysYield   = 124
	SysGetTime = 169
	SysFork    = 220
	SysExec    = 221
	SysWaitpid = 260
	SysVendor  = 511
)

// TaskID uniquely identifies a task for its lifetime.
type TaskID int

// KstackID identifies a kernel-stack slot in the kernel memory set.
type KstackID int
