// Package stats implements the kernel's cycle-counter and event-count
// telemetry: a handful of atomic counters cmd/kprof reads out and
// converts into a pprof profile.
//
// Ground: biscuit's stats/stats.go Counter_t/Cycles_t pair, kept in
// the same shape (a compile-time-ish Enabled toggle gating the atomic
// adds, Rdtsc standing in for runtime.Rdtsc, Snapshot doing by
// reflection what biscuit's Stats2String does) but widened from one
// fixed counter struct to any struct of Counter/Cycles fields a
// package declares for itself, since this kernel's
// components (scheduler, trap pipeline, syscall table) are spread
// across more packages than biscuit's single per-subsystem stats
// struct covered.
package stats

import (
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
)

// Enabled gates every Inc/Add in this package, mirroring biscuit's
// `const Stats = false` toggle — except kept as a variable rather than
// a constant so this package's tests can flip it without a build tag.
var Enabled = true

// Counter is a monotonically increasing event count.
type Counter struct{ n int64 }

// Inc increments the counter by one.
func (c *Counter) Inc() {
	if Enabled {
		atomic.AddInt64(&c.n, 1)
	}
}

// Load reads the counter's current value.
func (c *Counter) Load() int64 { return atomic.LoadInt64(&c.n) }

// Cycles accumulates elapsed CPU cycles between an Rdtsc call and a
// matching Add call.
type Cycles struct{ n int64 }

// Rdtsc reads the current cycle counter, or 0 when telemetry is
// disabled — ground: biscuit's Rdtsc wraps runtime.Rdtsc the same way;
// this kernel has no such runtime hook, so it returns whatever
// cyclesFunc reports. SetCyclesFunc replaces that hook, for example
// with an actual `rdtime`/mcycle CSR read.
func Rdtsc() uint64 {
	if !Enabled {
		return 0
	}
	return cyclesFunc()
}

// cyclesFunc is the override seam for Rdtsc, in the same style as
// internal/irq's and internal/sbi's hardware-facing hooks: go test
// has no mcycle CSR to read, so it defaults to runtime.NumGoroutine(),
// a host-safe stand-in that is neither a cycle count nor monotonic.
var cyclesFunc = func() uint64 {
	return uint64(runtime.NumGoroutine())
}

// SetCyclesFunc installs a replacement cycle-read hook (wired by boot
// code to a real `rdtime` CSR read) and returns a function restoring
// the previous one.
func SetCyclesFunc(fn func() uint64) (restore func()) {
	prev := cyclesFunc
	cyclesFunc = fn
	return func() { cyclesFunc = prev }
}

// Add adds the cycles elapsed since start (as returned by an earlier
// Rdtsc call) to the accumulator.
func (c *Cycles) Add(start uint64) {
	if Enabled {
		atomic.AddInt64(&c.n, int64(Rdtsc()-start))
	}
}

// Load reads the accumulator's current value.
func (c *Cycles) Load() int64 { return atomic.LoadInt64(&c.n) }

// Snapshot walks st's fields by reflection and returns the name and
// value of every Counter/Cycles field, the same "struct of counters"
// shape biscuit's Stats2String stringifies, generalized here to
// structured data cmd/kprof can turn into pprof samples rather than a
// single debug-print string.
func Snapshot(st any) []Sample {
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	var out []Sample
	for i := 0; i < v.NumField(); i++ {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		field := v.Field(i)
		name := v.Type().Field(i).Name
		switch c := field.Interface().(type) {
		case Counter:
			out = append(out, Sample{Name: name, Value: c.Load(), Kind: KindCounter})
		case Cycles:
			out = append(out, Sample{Name: name, Value: c.Load(), Kind: KindCycles})
		}
	}
	return out
}

// Kind distinguishes an event count from a cycle count when Snapshot's
// caller decides how to label a pprof sample type.
type Kind int

const (
	KindCounter Kind = iota
	KindCycles
)

func (k Kind) String() string {
	if k == KindCycles {
		return "cycles"
	}
	return "count"
}

// Sample is one named counter's value, as extracted by Snapshot.
type Sample struct {
	Name  string
	Value int64
	Kind  Kind
}

// String renders samples the way biscuit's Stats2String rendered a
// whole struct, for a quick console dump independent of cmd/kprof's
// pprof path.
func String(samples []Sample) string {
	var b strings.Builder
	for _, s := range samples {
		b.WriteString("\n\t#")
		b.WriteString(s.Name)
		b.WriteString(": ")
		b.WriteString(strconv.FormatInt(s.Value, 10))
	}
	b.WriteString("\n")
	return b.String()
}
