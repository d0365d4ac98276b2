// Package hwport adapts periph.io GPIO pins to the swim.Pin and
// swim.Clock interfaces the link and swimproto packages are built
// against: a thin seam between a hardware-agnostic core and a specific
// host GPIO stack, here periph.io/x/conn/v3 and periph.io/x/host/v3.
package hwport

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/tve/swim"
)

// Init loads the periph.io host and driver registries. Call it once at
// process startup before OpenPin.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("hwport: host.Init: %w", err)
	}
	if _, err := driverreg.Init(); err != nil {
		return fmt.Errorf("hwport: driverreg.Init: %w", err)
	}
	return nil
}

// Pin wraps a periph.io gpio.PinIO as a swim.Pin. The optical link
// shares one line for both transmit and receive, switching direction
// with SetDirection between SendCmd/SendData and ReadCmd/ReadAll, so
// Pin must support both gpio.PinIn and gpio.PinOut on the same
// physical line.
type Pin struct {
	line gpio.PinIO
	pull gpio.Pull // applied whenever SetDirection(Input) runs
}

// OpenPin looks up a periph.io pin by name (e.g. "GPIO17") and wraps it.
// pull configures the input pull resistor; gpio.PullNoChange leaves
// whatever the board default is.
func OpenPin(name string, pull gpio.Pull) (*Pin, error) {
	line := gpioreg.ByName(name)
	if line == nil {
		return nil, fmt.Errorf("hwport: no such GPIO pin %q", name)
	}
	return &Pin{line: line, pull: pull}, nil
}

// SetDirection configures the line as a periph.io input or output.
func (p *Pin) SetDirection(dir swim.Direction) error {
	if dir == swim.Output {
		return p.line.Out(gpio.Low)
	}
	return p.line.In(p.pull, gpio.NoEdge)
}

// Read reports 1 when carrier is present and 0 when it is not. The
// receiver front end is active-low, so a Low line level reads as 1.
func (p *Pin) Read() int {
	if p.line.Read() == gpio.Low {
		return 1
	}
	return 0
}

// Write drives the line high or low. It is only meaningful after
// SetDirection(swim.Output); periph.io pins driven while configured as
// an input silently ignore Out calls on most backends.
func (p *Pin) Write(level int) {
	if level != 0 {
		_ = p.line.Out(gpio.High)
	} else {
		_ = p.line.Out(gpio.Low)
	}
}

// Clock is a swim.Clock backed by the real monotonic clock. It is the
// production counterpart to the wallClock types the link and
// swimproto tests build for loopback testing.
type Clock struct{ t0 time.Time }

// NewClock returns a Clock whose epoch is the moment it was created.
func NewClock() *Clock { return &Clock{t0: time.Now()} }

func (c *Clock) NowUS() uint64 { return uint64(time.Since(c.t0).Microseconds()) }
func (c *Clock) NowMS() uint64 { return uint64(time.Since(c.t0).Milliseconds()) }
