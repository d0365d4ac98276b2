//go:build embd

// This is an alternate swim.Pin/swim.Clock implementation built on
// embd.DigitalPin with direction-tracking-before-Out, for boards whose
// embd support covers GPIO lines periph.io's drivers don't recognize.
package hwport

import (
	"fmt"
	"os"
	"time"

	"github.com/kidoman/embd"

	"github.com/tve/swim"
)

// EmbdPin wraps an embd.DigitalPin as a swim.Pin, for boards where the
// periph.io-backed Pin doesn't have a driver.
type EmbdPin struct {
	p   embd.DigitalPin
	dir embd.Direction
}

// OpenEmbdPin opens name (board-specific, e.g. "GPIO_17") through embd.
func OpenEmbdPin(name string) (*EmbdPin, error) {
	p, err := embd.NewDigitalPin(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hwport: embd.NewDigitalPin(%s): %s\n", name, err)
		return nil, err
	}
	return &EmbdPin{p: p, dir: embd.In}, nil
}

func (g *EmbdPin) SetDirection(dir swim.Direction) error {
	if dir == swim.Output {
		g.dir = embd.Out
		return g.p.SetDirection(embd.Out)
	}
	g.dir = embd.In
	return g.p.SetDirection(embd.In)
}

// Read reports 1 when carrier is present: the receiver front end is
// active-low, so a low line level reads as 1. A read error reads as 0.
func (g *EmbdPin) Read() int {
	v, err := g.p.Read()
	if err == nil && v == 0 {
		return 1
	}
	return 0
}

// Write drives the line, switching it to output first if it was not
// already, so a caller never needs to call SetDirection before Write.
func (g *EmbdPin) Write(level int) {
	if g.dir != embd.Out {
		g.p.SetDirection(embd.Out)
		g.dir = embd.Out
	}
	g.p.Write(level)
}

// EmbdClock is the embd build's swim.Clock; it needs no embd-specific
// behavior, so it's just the real monotonic clock under another name
// for symmetry with EmbdPin.
type EmbdClock struct{ t0 time.Time }

func NewEmbdClock() *EmbdClock { return &EmbdClock{t0: time.Now()} }

func (c *EmbdClock) NowUS() uint64 { return uint64(time.Since(c.t0).Microseconds()) }
func (c *EmbdClock) NowMS() uint64 { return uint64(time.Since(c.t0).Milliseconds()) }
