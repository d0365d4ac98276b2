// Package link implements the optical-carrier symbol transmitter and
// receiver: the bit-banged waveform generator, the framed-packet
// serializer, and the receive-side packet state machine with
// majority-vote repeat combining. Each side is a struct owning a Pin
// and a Clock, built with a constructor, with plain methods instead of
// the original C source's function-pointer dispatch table.
package link

import (
	"github.com/tve/swim"
	"github.com/tve/swim/thread"
	"github.com/tve/swim/timing"
)

// DefaultRepeat is the number of identical frames sent per packet.
const DefaultRepeat = 3

// TransmitterOpts configures a Transmitter beyond the pin/clock/timing
// it is built from.
type TransmitterOpts struct {
	Repeat     uint8 // 0 means DefaultRepeat
	ParityBits uint8 // number of parity bits appended to every frame
	Realtime   bool  // lock the sending goroutine's OS thread to realtime scheduling
	Log        swim.LogPrintf
}

// Transmitter bit-bangs SWIM packets: a header, R repeats of a data+parity
// frame separated by gaps.
type Transmitter struct {
	pin        swim.Pin
	clock      swim.Clock
	cfg        *timing.Config
	repeat     uint8
	parityBits uint8
	realtime   bool
	log        swim.LogPrintf
}

// NewTransmitter builds a Transmitter driving pin, timed against clock,
// using cfg's pulse counts.
func NewTransmitter(pin swim.Pin, clock swim.Clock, cfg *timing.Config, opts TransmitterOpts) *Transmitter {
	repeat := opts.Repeat
	if repeat == 0 {
		repeat = DefaultRepeat
	}
	log := opts.Log
	if log == nil {
		log = swim.NoLog
	}
	return &Transmitter{pin: pin, clock: clock, cfg: cfg, repeat: repeat, parityBits: opts.ParityBits, realtime: opts.Realtime, log: log}
}

// Init sets the shared line to OUTPUT. If the transmitter was built
// with Realtime set, it also locks the calling goroutine to its own
// kernel thread at realtime priority, so the busy-wait bit-banging in
// sendBit isn't preempted mid-symbol; Init is meant to be called from
// the same goroutine that will drive SendPacket.
func (t *Transmitter) Init() error {
	if t.realtime {
		if err := thread.Realtime(); err != nil {
			t.log("link: thread.Realtime failed: %v", err)
		}
	}
	return t.pin.SetDirection(swim.Output)
}

// PeriodUS returns the carrier's modulation period in microseconds.
func (t *Transmitter) PeriodUS() uint32 { return t.cfg.PeriodUS() }

// ModFreqHz returns the carrier's modulation frequency in Hz.
func (t *Transmitter) ModFreqHz() uint32 { return t.cfg.ModFreqHz() }

// Repeat returns the number of frames sent per packet.
func (t *Transmitter) Repeat() uint8 { return t.repeat }

// sendBit busy-bangs one symbol: burstPulses cycles of 80%-duty-cycle
// carrier followed by idlePulses cycles of silence. Timing is
// best-effort against the monotonic clock; there is no interrupt use
// and no other work happens on this goroutine while a symbol is being
// sent.
func (t *Transmitter) sendBit(burstPulses, idlePulses uint32) {
	period := t.cfg.PeriodUS()
	high := t.cfg.HighPeriodUS()

	if burstPulses > 0 {
		cycles := uint32(0)
		start := t.clock.NowUS()
		for cycles < burstPulses {
			elapsed := uint32(t.clock.NowUS() - start)
			if elapsed <= high {
				t.pin.Write(1)
			} else {
				t.pin.Write(0)
			}
			if elapsed >= period {
				cycles++
				start = t.clock.NowUS()
			}
		}
	}

	if idlePulses > 0 {
		t.pin.Write(0)
		cycles := uint32(0)
		start := t.clock.NowUS()
		for cycles < idlePulses {
			if uint32(t.clock.NowUS()-start) >= period {
				cycles++
				start = t.clock.NowUS()
			}
		}
	}
}

// SendOne sends a "1" symbol.
func (t *Transmitter) SendOne() {
	burst, idle := t.cfg.PulsesFor(timing.SymbolOne)
	t.sendBit(burst, idle)
}

// SendZero sends a "0" symbol.
func (t *Transmitter) SendZero() {
	burst, idle := t.cfg.PulsesFor(timing.SymbolZero)
	t.sendBit(burst, idle)
}

// SendHeader sends the packet header that announces an incoming packet.
func (t *Transmitter) SendHeader() {
	burst, idle := t.cfg.PulsesFor(timing.SymbolHeader)
	t.sendBit(burst, idle)
}

// SendGap sends the inter-repeat gap.
func (t *Transmitter) SendGap() {
	burst, idle := t.cfg.PulsesFor(timing.SymbolGap)
	t.sendBit(burst, idle)
}

// SendPacket frames payload's low dataBits bits with parity and emits a
// full packet: header, then Repeat() copies of the data+parity frame,
// with a gap between consecutive repeats but not after the last one.
//
// Symbol count per frame is fixed at dataBits+parityBits, per spec.md
// §9's REDESIGN FLAG 1: the source iterates one extra leading symbol
// per frame (packet_bits downto 0 inclusive, D+1 symbols); this
// implementation sends exactly D+P symbols.
func (t *Transmitter) SendPacket(dataBits uint8, payload uint64) {
	var mask uint64
	if dataBits >= 64 {
		mask = ^uint64(0)
	} else {
		mask = uint64(1)<<dataBits - 1
	}
	data := payload & mask

	parityBits := t.ParityBits()
	parity := Parity(data, dataBits, parityBits)
	frame := (data << parityBits) | parity
	width := dataBits + parityBits

	t.SendHeader()
	for rep := uint8(0); rep < t.repeat; rep++ {
		for i := int(width) - 1; i >= 0; i-- {
			if (frame>>uint(i))&1 != 0 {
				t.SendOne()
			} else {
				t.SendZero()
			}
		}
		if rep < t.repeat-1 {
			t.SendGap()
		}
	}
}

// ParityBits returns the number of parity bits this transmitter appends
// to every frame. It is fixed per transmitter instance at construction
// time, not negotiated on the wire.
func (t *Transmitter) ParityBits() uint8 {
	return t.parityBits
}
