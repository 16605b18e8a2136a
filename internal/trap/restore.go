package trap

// JumpToRestore is the real jumpToRestoreFunc binding: an unconditional
// jump to restoreVA (computed by Return as TRAMPOLINE+restoreOffset)
// with a0=trapCtxVA, a1=token already loaded, matching __alltraps' own
// "JMP (reg)" handoff into trap_handler. It never returns — __restore
// ends in SRET, dropping to user mode. Ground: the same Go-stub/.s-body
// shape as internal/swtch's Switch.
//
//go:noescape
func JumpToRestore(restoreVA, trapCtxVA, token uint64)
