package stats

import "testing"

func TestCounterIncAccumulates(t *testing.T) {
	var c Counter
	c.Inc()
	c.Inc()
	c.Inc()
	if got := c.Load(); got != 3 {
		t.Fatalf("Load() = %d, want 3", got)
	}
}

func TestCounterDisabledIsNoop(t *testing.T) {
	prev := Enabled
	Enabled = false
	defer func() { Enabled = prev }()

	var c Counter
	c.Inc()
	c.Inc()
	if got := c.Load(); got != 0 {
		t.Fatalf("Load() = %d, want 0 while disabled", got)
	}
}

func TestCyclesAddUsesHook(t *testing.T) {
	var calls uint64
	restore := SetCyclesFunc(func() uint64 {
		calls++
		return calls * 10
	})
	defer restore()

	start := Rdtsc() // 10
	var c Cycles
	c.Add(start) // Rdtsc() now 20, delta 10
	if got := c.Load(); got != 10 {
		t.Fatalf("Load() = %d, want 10", got)
	}
}

func TestRdtscDisabledReturnsZero(t *testing.T) {
	prev := Enabled
	Enabled = false
	defer func() { Enabled = prev }()

	if got := Rdtsc(); got != 0 {
		t.Fatalf("Rdtsc() = %d, want 0 while disabled", got)
	}
}

type sampleStats struct {
	Faults  Counter
	Syscall Counter
	Idle    Cycles
	ignored int
}

func TestSnapshotWalksCounterAndCyclesFields(t *testing.T) {
	var st sampleStats
	st.Faults.Inc()
	st.Syscall.Inc()
	st.Syscall.Inc()

	restore := SetCyclesFunc(func() uint64 { return 5 })
	defer restore()
	st.Idle.Add(0)

	samples := Snapshot(&st)
	want := map[string]int64{"Faults": 1, "Syscall": 2, "Idle": 5}
	if len(samples) != len(want) {
		t.Fatalf("Snapshot() returned %d samples, want %d", len(samples), len(want))
	}
	for _, s := range samples {
		v, ok := want[s.Name]
		if !ok {
			t.Fatalf("unexpected sample %q", s.Name)
		}
		if s.Value != v {
			t.Errorf("sample %q = %d, want %d", s.Name, s.Value, v)
		}
		if s.Name == "Idle" && s.Kind != KindCycles {
			t.Errorf("sample %q kind = %v, want KindCycles", s.Name, s.Kind)
		}
		if s.Name != "Idle" && s.Kind != KindCounter {
			t.Errorf("sample %q kind = %v, want KindCounter", s.Name, s.Kind)
		}
	}
}

func TestStringRendersEverySample(t *testing.T) {
	samples := []Sample{{Name: "Faults", Value: 3, Kind: KindCounter}}
	got := String(samples)
	want := "\n\t#Faults: 3\n"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
