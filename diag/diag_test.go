package diag

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func Test_Push_RespectsCapacity(t *testing.T) {
	tr := NewTrace(2)
	tr.Push("a")
	tr.Push("b")
	tr.Push("c")
	if got := tr.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func Test_WriteTo_FormatsAndClears(t *testing.T) {
	tr := NewTrace(0)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.PushAt(t0, "idle->pkt_arrived")
	tr.PushAt(t0.Add(500*time.Millisecond), "pkt_arrived->pkt_read")

	var buf bytes.Buffer
	if _, err := tr.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "0.000000s: idle->pkt_arrived") {
		t.Fatalf("output missing first event: %q", out)
	}
	if !strings.Contains(out, "0.500000s: pkt_arrived->pkt_read") {
		t.Fatalf("output missing second event: %q", out)
	}
	if tr.Len() != 0 {
		t.Fatal("expected trace to be cleared after WriteTo")
	}
}

func Test_WriteTo_EmptyTrace(t *testing.T) {
	tr := NewTrace(0)
	var buf bytes.Buffer
	if _, err := tr.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), "no events were recorded") {
		t.Fatalf("expected empty-trace message, got %q", buf.String())
	}
}
