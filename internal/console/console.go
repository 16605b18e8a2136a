// Package console implements the one file-like object this kernel's
// fd table ever holds in the absence of a real filesystem: a thin
// Fdops wrapper over the SBI console contract (spec.md's Non-goals
// exclude a block-backed filesystem, leaving the console as the only
// device a task's stdin/stdout/stderr — or an open() of it — can name).
//
// It never imports internal/task: task.Fdops is satisfied
// structurally, the same way io.Writer is satisfied by any type with
// the right Write method, so this package stays a leaf the task
// package can import without a cycle.
package console

import (
	"io"

	"rvkernel/internal/sbi"
)

// Console is a task.Fdops backed by internal/sbi's console contract.
type Console struct{}

// Write emits p one byte at a time through sbi.Current.ConsolePutchar.
func (Console) Write(p []byte) (int, error) {
	for _, b := range p {
		sbi.Current.ConsolePutchar(b)
	}
	return len(p), nil
}

// Read always reports end-of-file: this kernel has no console input
// device wired (spec.md's Non-goals exclude keyboard/input support).
func (Console) Read(p []byte) (int, error) { return 0, io.EOF }

// Close is a no-op; the console is never actually released.
func (Console) Close() error { return nil }
