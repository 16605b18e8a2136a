package klog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFilteringDropsBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(discard{})
	SetLevel(Warn)
	defer SetLevel(Info)

	Infof("should not appear")
	Warnf("should appear: %d", 7)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatal("Infof bypassed the Warn floor")
	}
	if !strings.Contains(out, "should appear: 7") {
		t.Fatalf("Warnf output missing, got %q", out)
	}
}

func TestErrorfFormatsLevelPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(discard{})
	SetLevel(Debug)
	defer SetLevel(Info)

	Errorf("boom")
	if !strings.HasPrefix(buf.String(), "[ERROR] boom") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
