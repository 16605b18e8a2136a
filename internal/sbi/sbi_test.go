package sbi

import "testing"

func TestFakeRecordsConsoleAndTimerAndReset(t *testing.T) {
	f := &Fake{}
	restore := SetProvider(f)
	defer restore()

	Current.ConsolePutchar('h')
	Current.ConsolePutchar('i')
	Current.SetTimer(1234)
	Current.SystemReset(0, 0)

	if string(f.Console) != "hi" {
		t.Fatalf("Console = %q, want %q", f.Console, "hi")
	}
	if len(f.TimerCalls) != 1 || f.TimerCalls[0] != 1234 {
		t.Fatalf("TimerCalls = %v, want [1234]", f.TimerCalls)
	}
	if len(f.ResetCalls) != 1 || f.ResetCalls[0] != [2]uint32{0, 0} {
		t.Fatalf("ResetCalls = %v, want [[0 0]]", f.ResetCalls)
	}
}

func TestSetProviderRestoresPrevious(t *testing.T) {
	first := &Fake{}
	restoreFirst := SetProvider(first)

	second := &Fake{}
	restoreSecond := SetProvider(second)
	if Current != Provider(second) {
		t.Fatal("Current was not updated to the second provider")
	}
	restoreSecond()
	if Current != Provider(first) {
		t.Fatal("restore did not bring back the first provider")
	}
	restoreFirst()
	if Current != nil {
		t.Fatal("restore did not bring back the original nil provider")
	}
}
