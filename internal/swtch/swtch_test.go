package swtch

import "testing"

func TestNewTaskContextSeedsRAAndSP(t *testing.T) {
	tc := NewTaskContext(0xdead0000, 0xbeef0000)
	if tc.RA != 0xdead0000 {
		t.Fatalf("RA = %#x, want 0xdead0000", tc.RA)
	}
	if tc.SP != 0xbeef0000 {
		t.Fatalf("SP = %#x, want 0xbeef0000", tc.SP)
	}
	for i, s := range tc.S {
		if s != 0 {
			t.Fatalf("S[%d] = %#x, want 0", i, s)
		}
	}
}
