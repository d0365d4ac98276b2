// Package diag implements an in-memory event trace for the optical
// link's receiver state machine. Trace is a struct rather than package
// level globals, so a surface unit and a submerged unit under test can
// each keep their own trace without stepping on each other.
package diag

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type event struct {
	at  time.Time
	txt string
}

// Trace is a bounded, thread-safe log of receiver state-machine
// transitions (header detected, pulse and idle timeouts, error exits,
// FINISH), meant to be wired into link.Receiver via a LogPrintf closure
// for field debugging.
type Trace struct {
	mu       sync.Mutex
	events   []event
	capacity int
}

// NewTrace returns a Trace that keeps at most capacity most-recent
// events, dropping the oldest once full. A capacity of 0 means
// unbounded.
func NewTrace(capacity int) *Trace {
	return &Trace{capacity: capacity}
}

// LogPrintf is a swim.LogPrintf-shaped method value: pass t.LogPrintf as
// the Log field of link.TransmitterOpts/ReceiverOpts to capture every
// logged event into this trace.
func (t *Trace) LogPrintf(format string, v ...interface{}) {
	t.Push(fmt.Sprintf(format, v...))
}

// Push records txt with the current time.
func (t *Trace) Push(txt string) { t.PushAt(time.Now(), txt) }

// PushAt records txt with an explicit timestamp, for tests that want
// deterministic ordering against a synthetic clock.
func (t *Trace) PushAt(at time.Time, txt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event{at, txt})
	if t.capacity > 0 && len(t.events) > t.capacity {
		t.events = t.events[len(t.events)-t.capacity:]
	}
}

// Len returns the number of events currently held.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// WriteTo prints every recorded event to w, one per line, timestamped
// relative to the first event, and clears the trace.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.events) == 0 {
		n, err := fmt.Fprintf(w, "no events were recorded\n")
		return int64(n), err
	}

	var written int64
	t0 := t.events[0].at
	for _, ev := range t.events {
		n, err := fmt.Fprintf(w, "%.6fs: %s\n", ev.at.Sub(t0).Seconds(), ev.txt)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	t.events = nil
	return written, nil
}
